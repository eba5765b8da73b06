package normalize

import (
	"os"
	"packchicken-service/storefront"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const exportCSV = `Name,Email,Id,Phone,Lineitem name,Lineitem quantity,Lineitem price,Lineitem sku,Lineitem requires shipping,Lineitem grams,Shipping Name,Shipping Address1,Shipping Address2,Shipping City,Shipping Zip,Shipping Country,Shipping Phone,Billing Name,Billing Address1,Billing City,Billing Zip
#1001,kari@example.no,5550001,+4791234567,Kyllingfôr,2,199.00,FEED-1,true,500,Kari Nordmann,Storgata 1,H0101,Oslo,0155,NO,,Kari Nordmann,Storgata 1,Oslo,0155
#1001,,5550001,,Eggekartong,1,49.00,EGG-6,yes,250,,,,,,,,,,,
#1002,ola@example.no,,,Strø,,89.00,STRAW,no,,,,,,,,,Ola Hansen,Fjordveien 9,Bergen,5003
,,,,orphan,1,1,X,true,1,,,,,,,,,,,
`

func TestCSVGroupingAndAddressPick(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(exportCSV))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	groups := GroupRows(rows)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)

	first, err := Normalize(CSVRows{Rows: groups[0], LocationID: "655441491"})
	require.NoError(t, err)
	assert.Equal(t, "5550001", first.OrderID)
	assert.Equal(t, SourceCSV, first.Source)
	assert.Equal(t, "#1001", first.Order.OrderNumber)
	assert.Equal(t, "655441491", first.Order.LocationID)
	require.NotNil(t, first.Order.ShippingAddress)
	assert.Equal(t, "Storgata 1", first.Order.ShippingAddress.Address1)
	assert.Equal(t, "+4791234567", first.Order.ShippingAddress.Phone)
	require.Len(t, first.Order.LineItems, 2)
	assert.Equal(t, 2, first.Order.LineItems[0].Quantity)
	assert.Equal(t, 500, first.Order.LineItems[0].Grams)
	assert.True(t, first.Order.LineItems[1].RequiresShipping)

	// No Id column value: grouped by Name, shipping missing, billing present.
	second, err := Normalize(CSVRows{Rows: groups[1]})
	require.NoError(t, err)
	assert.Equal(t, "#1002", second.OrderID)
	assert.False(t, second.Order.ShippingAddress.HasLocation())
	assert.Equal(t, "NO", second.Order.ShippingAddress.CountryCode)
	assert.Equal(t, "#1002", second.Order.ShippingAddress.Name)
	assert.Equal(t, "Bergen", second.Order.BillingAddress.City)
	assert.Equal(t, 1, second.Order.LineItems[0].Quantity)
	assert.Equal(t, 0, second.Order.LineItems[0].Grams)
	assert.False(t, second.Order.LineItems[0].RequiresShipping)
}

func TestLoadOrderFileXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	header := []any{"Name", "Id", "Shipping Address1", "Shipping City", "Shipping Zip", "Lineitem quantity", "Lineitem grams"}
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	row := []any{"#2001", "7770001", "Kirkegata 5", "Trondheim", "7011", 3, 400}
	require.NoError(t, f.SetSheetRow(sheet, "A2", &row))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	results, err := LoadOrderFile(path, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, SourceXLSX, results[0].Source)
	assert.Equal(t, "7770001", results[0].OrderID)
	assert.Equal(t, "7011", results[0].Order.ShippingAddress.Zip)
	assert.Equal(t, 3, results[0].Order.LineItems[0].Quantity)
	assert.Equal(t, 400, results[0].Order.LineItems[0].Grams)
}

func TestLoadOrderFileRejectsOtherExtensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := LoadOrderFile(path, "")
	assert.Error(t, err)
}

func TestEmailParsing(t *testing.T) {
	html := `<html><head><style>p{}</style></head><body>
		<h1>Takk for bestillingen!</h1>
		<p>Ordre #4711</p>
		<table><tr><td>Kari Nordmann</td></tr>
		<tr><td>Storgata&nbsp;12</td></tr>
		<tr><td>0155 Oslo</td></tr>
		<tr><td>Tlf: +47 912 34 567</td></tr>
		<tr><td>kari@example.no</td></tr></table>
	</body></html>`

	res, err := Normalize(EmailMessage{MessageID: "<m1@mail>", Subject: "Ny bestilling", From: "shop@example.no", HTML: html})
	require.NoError(t, err)
	assert.Equal(t, "4711", res.OrderID)
	assert.Equal(t, SourceEmail, res.Source)
	assert.Equal(t, "kari@example.no", res.Order.Email)
	assert.Equal(t, "+47 912 34 567", res.Order.Phone)
	assert.Equal(t, "0155", res.Order.ShippingAddress.Zip)
	assert.Equal(t, "Oslo", res.Order.ShippingAddress.City)
	assert.Equal(t, "Storgata 12", res.Order.ShippingAddress.Address1)
	assert.Equal(t, "Ny bestilling", res.EmailMeta["subject"])
}

func TestEmailOrderNumberFromSubjectAndFallbackID(t *testing.T) {
	res, err := Normalize(EmailMessage{Subject: "Bestilling #900", Text: "Hei\n5003 Bergen"})
	require.NoError(t, err)
	assert.Equal(t, "900", res.OrderID)
	assert.Equal(t, "Bergen", res.Order.ShippingAddress.City)

	res, err = Normalize(EmailMessage{Seq: "17", Text: "Hei"})
	require.NoError(t, err)
	assert.Equal(t, "email-17", res.OrderID)
	assert.Empty(t, res.Order.ShippingAddress.Zip)

	_, err = Normalize(EmailMessage{MessageID: "<empty@mail>"})
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestStorefrontOrder(t *testing.T) {
	loc := int64(42)
	res, err := Normalize(StorefrontOrder{
		LocationID: "1",
		Order: storefront.Order{
			ID:          450789469,
			OrderNumber: 1001,
			Customer:    &storefront.Customer{FirstName: "Kari", LastName: "Nordmann", Email: "kari@example.no"},
			ShippingAddress: &storefront.Address{
				FirstName: "Kari", LastName: "Nordmann", Address1: "Storgata 1", City: "Oslo", Zip: "0155", CountryCode: "NO",
			},
			LineItems:  []storefront.LineItem{{Title: "Fôr", Quantity: 2, Grams: 625}},
			LocationID: &loc,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "450789469", res.OrderID)
	assert.Equal(t, "1001", res.Order.OrderNumber)
	assert.Equal(t, "Kari Nordmann", res.Order.Name)
	assert.Equal(t, "kari@example.no", res.Order.Email)
	assert.Equal(t, "42", res.Order.LocationID)
	assert.Nil(t, res.Order.BillingAddress)
}

func TestAPIOrder(t *testing.T) {
	qty, price := 3, 12950
	res, err := Normalize(APIOrder{
		Source:    "email-worker",
		MessageID: "<m2@mail>",
		Order: &APIOrderDoc{
			Name:            "Ola Hansen",
			ShippingAddress: &APIAddress{Address1: "Fjordveien 9", Zip: " 5003 ", City: "Bergen", Country: "NO"},
			Lines:           []APILine{{SKU: "FEED", Qty: &qty, Price: &price}, {SKU: "EGG"}},
		},
		RawEmailMeta: map[string]any{"subject": "Ordre"},
	})
	require.NoError(t, err)
	assert.Equal(t, "<m2@mail>", res.OrderID)
	assert.Equal(t, SourceAPI, res.Source)
	assert.Equal(t, "5003", res.Order.ShippingAddress.Zip)
	assert.Equal(t, "Ola Hansen", res.Order.ShippingAddress.Name)
	assert.Equal(t, 3, res.Order.LineItems[0].Quantity)
	assert.Equal(t, "129.50", res.Order.LineItems[0].Price)
	assert.Equal(t, 1, res.Order.LineItems[1].Quantity)
	assert.Equal(t, "email-worker", res.EmailMeta["ingress_source"])
	assert.Equal(t, "Ordre", res.EmailMeta["subject"])

	doc := res.Document()
	assert.Equal(t, res.OrderID, doc.ID)
	assert.Equal(t, SourceAPI, doc.Source)
}

func TestAPIOrderWithoutAddress(t *testing.T) {
	_, err := Normalize(APIOrder{Source: "x"})
	assert.ErrorIs(t, err, ErrEmptySource)

	_, err = Normalize(APIOrder{Source: "x", Order: &APIOrderDoc{OrderNumber: "1"}})
	assert.ErrorIs(t, err, ErrEmptySource)
}
