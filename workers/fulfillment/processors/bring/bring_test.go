package bring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"packchicken-service/config"
	"packchicken-service/workers/fulfillment/models"
	"packchicken-service/workers/fulfillment/processors"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		Bring: &config.BringConfig{
			APIUID:          "uid@example.no",
			APIKey:          "key",
			CustomerNumber:  "5",
			ProductID:       "SERVICEPAKKE",
			ClientURL:       "http://localhost:8000",
			TestIndicator:   true,
			DefaultWeightKg: decimal.RequireFromString("1.1"),
			LengthCm:        23,
			WidthCm:         10,
			HeightCm:        13,
			GoodsDesc:       "Goods",
			Timeout:         5 * time.Second,
		},
		Sender: config.PartyConfig{
			Name: "PackChicken", Address: "Testveien 2", PostalCode: "0150", City: "Oslo", CountryCode: "NO",
		},
	}
}

func testOrder() models.Order {
	return models.Order{
		ID:          "5550001",
		OrderNumber: "1001",
		Email:       "kari@example.no",
		ShippingAddress: &models.Address{
			Name: "Kari Nordmann", Address1: "Storgata 1", Address2: "H0101", City: "Oslo", Zip: "0155",
			CountryCode: "no", Phone: "912 34 567",
		},
		LineItems: []models.LineItem{{Grams: 500, Quantity: 2}, {Grams: 250, Quantity: 1}},
	}
}

func TestPackageWeight(t *testing.T) {
	floor := decimal.RequireFromString("1.1")

	w := PackageWeight([]models.LineItem{{Grams: 500, Quantity: 2}, {Grams: 250, Quantity: 1}}, floor)
	assert.Equal(t, "1.25", w.String())

	w = PackageWeight([]models.LineItem{{Grams: 500, Quantity: 1}}, floor)
	assert.Equal(t, "1.1", w.String())

	// Quantity below 1 counts as 1, negative grams as 0.
	w = PackageWeight([]models.LineItem{{Grams: 1234, Quantity: 0}, {Grams: -50, Quantity: 3}}, decimal.Zero)
	assert.Equal(t, "1.234", w.String())
}

func TestBuildPayloadForward(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 750_000_000, time.UTC)

	p, err := BuildPayload(testOrder(), processors.RoleForward, testConfig(), now)
	require.NoError(t, err)
	require.NoError(t, Validate(p))

	c := p.Consignments[0]
	assert.Equal(t, "2025-03-01T12:10:00", c.ShippingDateTime)
	assert.Equal(t, "1001", c.CorrelationID)
	assert.Equal(t, Product{ID: "SERVICEPAKKE", CustomerNumber: "5"}, c.Product)
	assert.InDelta(t, 1.25, c.Packages[0].WeightInKg, 1e-9)
	assert.Equal(t, "PackChicken", c.Parties.Sender.Name)
	assert.Equal(t, "Kari Nordmann", c.Parties.Recipient.Name)
	assert.Equal(t, "Storgata 1 H0101", c.Parties.Recipient.AddressLine)
	assert.Equal(t, "NO", c.Parties.Recipient.CountryCode)
	assert.Equal(t, "+4791234567", c.Parties.Recipient.Contact.PhoneNumber)
	assert.Nil(t, c.Parties.ReturnTo)
}

func TestBuildPayloadBillingFallbackAndNameChain(t *testing.T) {
	order := models.Order{
		OrderNumber:     "1002",
		ShippingAddress: &models.Address{Name: "", CountryCode: "NO"},
		BillingAddress:  &models.Address{FirstName: "Ola", LastName: "Hansen", Address1: "Fjordveien 9", City: "Bergen", Zip: "5003"},
	}

	p, err := BuildPayload(order, processors.RoleForward, testConfig(), time.Now())
	require.NoError(t, err)
	r := p.Consignments[0].Parties.Recipient
	assert.Equal(t, "Ola Hansen", r.Name)
	assert.Equal(t, "Fjordveien 9", r.AddressLine)
	assert.Equal(t, "Bergen", r.City)
	assert.Equal(t, "5003", r.PostalCode)

	order.BillingAddress.FirstName, order.BillingAddress.LastName = "", ""
	p, err = BuildPayload(order, processors.RoleForward, testConfig(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Ukjent mottaker", p.Consignments[0].Parties.Recipient.Name)
}

func TestBuildPayloadIncompleteRecipient(t *testing.T) {
	order := models.Order{OrderNumber: "1003", ShippingAddress: &models.Address{Zip: "0155"}}

	_, err := BuildPayload(order, processors.RoleForward, testConfig(), time.Now())
	assert.ErrorIs(t, err, processors.ErrIncompleteRecipient)
}

func TestBuildPayloadReturnSwap(t *testing.T) {
	cfg := testConfig()
	cfg.ReturnTo = config.PartyConfig{
		Name: "PackChicken Retur", Address: "Returveien 1", PostalCode: "0661", City: "Oslo", CountryCode: "NO",
		Email: "retur@example.no", Phone: "+4722222222",
	}

	p, err := BuildPayload(testOrder(), processors.RoleReturn, cfg, time.Now())
	require.NoError(t, err)
	parties := p.Consignments[0].Parties
	assert.Equal(t, "Kari Nordmann", parties.Sender.Name)
	assert.Equal(t, "Storgata 1 H0101", parties.Sender.AddressLine)
	assert.Equal(t, "PackChicken Retur", parties.Recipient.Name)
	assert.Nil(t, parties.ReturnTo)

	// Forward bookings carry the return identity instead.
	p, err = BuildPayload(testOrder(), processors.RoleForward, cfg, time.Now())
	require.NoError(t, err)
	require.NotNil(t, p.Consignments[0].Parties.ReturnTo)
	assert.Equal(t, "Returveien 1", p.Consignments[0].Parties.ReturnTo.AddressLine)

	// Without a return identity the sender is used.
	p, err = BuildPayload(testOrder(), processors.RoleReturn, testConfig(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "PackChicken", p.Consignments[0].Parties.Recipient.Name)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	p, err := BuildPayload(testOrder(), processors.RoleForward, testConfig(), time.Now())
	require.NoError(t, err)

	p.CustomerNumber = ""
	p.Consignments[0].Packages[0].WeightInKg = 0
	p.Consignments[0].Parties.Sender.City = ""

	err = Validate(p)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Problems, "customerNumber is missing")
	assert.Contains(t, vErr.Problems, "consignments[0].packages[0].weightInKg must be greater than 0")
	assert.Contains(t, vErr.Problems, "consignments[0].parties.sender.city is missing")
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+4791234567", NormalizePhone("912 34 567", "NO"))
	assert.Equal(t, "+4791234567", NormalizePhone("+47 912 34 567", "NO"))
	assert.Equal(t, "", NormalizePhone("  ", "NO"))
	assert.Equal(t, "", NormalizePhone("n/a", "NO"))
}

// newBookingServer fakes the booking and label endpoints. body receives the
// server base URL so label links can point back at it.
func newBookingServer(t *testing.T, status int, body func(base string) string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var received []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "uid@example.no", r.Header.Get("X-Mybring-API-Uid"))
		assert.Equal(t, "key", r.Header.Get("X-Mybring-API-Key"))
		assert.Equal(t, "true", r.Header.Get("X-Bring-Test-Indicator"))
		assert.Equal(t, "5", r.Header.Get("X-Mybring-Customer-Number"))

		switch r.URL.Path {
		case "/booking":
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			received = append(received, payload)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body("http://" + r.Host)))
		case "/labels/1.pdf":
			_, _ = w.Write([]byte("%PDF-1.4 label"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func static(body string) func(string) string {
	return func(string) string { return body }
}

func TestBookAndFetchLabel(t *testing.T) {
	srv, received := newBookingServer(t, http.StatusOK, func(base string) string {
		return `{"consignments":[{"confirmation":{"consignmentNumber":"70438101015432113",` +
			`"links":{"labels":"` + base + `/labels/1.pdf","tracking":"https://tracking.bring.com/tracking/70438101015432113"},` +
			`"packages":[{"packageNumber":"370438101015432117"}]}}]}`
	})

	cfg := testConfig()
	cfg.Bring.BookingURL = srv.URL + "/booking"
	p, err := NewBookingProcessor(cfg, zap.NewNop())
	require.NoError(t, err)

	result, err := p.Book(context.Background(), processors.BookingRequest{JobID: 1, Order: testOrder(), Role: processors.RoleForward})
	require.NoError(t, err)
	require.Len(t, *received, 1)
	assert.Equal(t, float64(1), (*received)[0]["schemaVersion"])
	assert.Equal(t, "70438101015432113", result.TrackingNumber)
	assert.Equal(t, "370438101015432117", result.PackageNumber)
	assert.True(t, result.TestMode)
	assert.True(t, result.HasLabel())

	dest := filepath.Join(t.TempDir(), "label.pdf")
	require.NoError(t, p.FetchLabel(context.Background(), result, dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 label", string(data))
}

func TestBookCarrierErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"http error", http.StatusBadRequest,
			`{"consignments":[{"errors":[{"code":"PARTY-7","messages":[{"lang":"en","message":"Invalid postal code"}]}]}]}`,
			"PARTY-7: Invalid postal code"},
		{"no tracking number", http.StatusOK, `{"consignments":[{"confirmation":{}}]}`, "response has no consignment number"},
		{"garbage", http.StatusOK, `<html>oops</html>`, "unreadable response"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newBookingServer(t, tc.status, static(tc.body))
			cfg := testConfig()
			cfg.Bring.BookingURL = srv.URL + "/booking"
			p, err := NewBookingProcessor(cfg, zap.NewNop())
			require.NoError(t, err)

			_, err = p.Book(context.Background(), processors.BookingRequest{Order: testOrder(), Role: processors.RoleForward})
			var cErr *CarrierError
			require.ErrorAs(t, err, &cErr)
			assert.Equal(t, tc.status, cErr.StatusCode)
			assert.Equal(t, tc.body, cErr.Body)
			assert.Contains(t, cErr.Error(), tc.want)
		})
	}
}

func TestBookValidationHappensBeforeNetwork(t *testing.T) {
	srv, received := newBookingServer(t, http.StatusOK, static(`{}`))
	cfg := testConfig()
	cfg.Bring.BookingURL = srv.URL + "/booking"
	cfg.Bring.CustomerNumber = ""
	cfg.Bring.APIUID, cfg.Bring.APIKey = "uid@example.no", "key"

	p, err := NewBookingProcessor(cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = p.Book(context.Background(), processors.BookingRequest{Order: testOrder()})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Empty(t, *received)
}

func TestNewBookingProcessorRequiresCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Bring.APIKey = ""
	_, err := NewBookingProcessor(cfg, zap.NewNop())
	assert.ErrorIs(t, err, config.ErrMissingConfig)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	body := "abcæøå"
	assert.Equal(t, "abc…", truncate(body, 4))
	assert.Equal(t, "abcæ…", truncate(body, 5))
	assert.Equal(t, body, truncate(body, len(body)))
	assert.True(t, utf8.ValidString(truncate("Ugyldig postnummer for mottaker på Ålesund", 33)))
}
