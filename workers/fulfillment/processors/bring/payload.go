package bring

import (
	"fmt"
	"packchicken-service/config"
	"packchicken-service/workers/fulfillment/models"
	"packchicken-service/workers/fulfillment/processors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

const (
	shippingDelay    = 10 * time.Minute
	unknownRecipient = "Ukjent mottaker"
)

type Payload struct {
	SchemaVersion  int           `json:"schemaVersion" validate:"eq=1"`
	TestIndicator  bool          `json:"testIndicator"`
	CustomerNumber string        `json:"customerNumber" validate:"required"`
	Consignments   []Consignment `json:"consignments" validate:"min=1,dive"`
}

type Consignment struct {
	ShippingDateTime string    `json:"shippingDateTime" validate:"required"`
	CorrelationID    string    `json:"correlationId,omitempty"`
	Product          Product   `json:"product"`
	Packages         []Package `json:"packages" validate:"min=1,dive"`
	Parties          Parties   `json:"parties"`
}

type Product struct {
	ID             string `json:"id" validate:"required"`
	CustomerNumber string `json:"customerNumber" validate:"required"`
}

type Package struct {
	WeightInKg       float64     `json:"weightInKg" validate:"gt=0"`
	Dimensions       *Dimensions `json:"dimensions" validate:"required"`
	GoodsDescription string      `json:"goodsDescription,omitempty"`
	CorrelationID    string      `json:"correlationId,omitempty"`
}

type Dimensions struct {
	LengthInCm int `json:"lengthInCm" validate:"gt=0"`
	WidthInCm  int `json:"widthInCm" validate:"gt=0"`
	HeightInCm int `json:"heightInCm" validate:"gt=0"`
}

type Parties struct {
	Sender    Party  `json:"sender"`
	Recipient Party  `json:"recipient"`
	ReturnTo  *Party `json:"returnTo,omitempty"`
}

type Party struct {
	Name         string   `json:"name" validate:"required"`
	AddressLine  string   `json:"addressLine" validate:"required"`
	AddressLine2 string   `json:"addressLine2,omitempty"`
	PostalCode   string   `json:"postalCode" validate:"required"`
	City         string   `json:"city" validate:"required"`
	CountryCode  string   `json:"countryCode" validate:"required"`
	Reference    string   `json:"reference,omitempty"`
	Contact      *Contact `json:"contact,omitempty"`
}

type Contact struct {
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

func (p *Party) complete() bool {
	return p.AddressLine != "" && p.City != "" && p.PostalCode != ""
}

func (p *Party) hasEmailAndPhone() bool {
	return p.Contact != nil && p.Contact.Email != "" && p.Contact.PhoneNumber != ""
}

// BuildPayload maps an order to a booking request for the given role. It
// returns an error wrapping processors.ErrIncompleteRecipient when the
// customer address cannot be shipped to.
func BuildPayload(order models.Order, role processors.Role, cfg *config.Config, now time.Time) (*Payload, error) {
	customer := customerParty(order)
	if !customer.complete() {
		return nil, fmt.Errorf("%w: order %s needs addressLine, city and postalCode (got %q, %q, %q)",
			processors.ErrIncompleteRecipient, order.Reference(), customer.AddressLine, customer.City, customer.PostalCode)
	}

	ours := configParty(cfg.Sender)
	var returnTo *Party
	if cfg.ReturnTo.IsSet() {
		r := configParty(cfg.ReturnTo)
		returnTo = &r
	}

	parties := Parties{Sender: ours, Recipient: customer, ReturnTo: returnTo}
	if role == processors.RoleReturn {
		back := ours
		if returnTo != nil {
			back = *returnTo
		}
		parties = Parties{Sender: customer, Recipient: back}
	}

	correlationID := order.Reference()
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	bc := cfg.Bring
	return &Payload{
		SchemaVersion:  1,
		TestIndicator:  bc.TestIndicator,
		CustomerNumber: bc.CustomerNumber,
		Consignments: []Consignment{{
			ShippingDateTime: now.Add(shippingDelay).UTC().Truncate(time.Second).Format("2006-01-02T15:04:05"),
			CorrelationID:    correlationID,
			Product: Product{
				ID:             bc.ProductID,
				CustomerNumber: bc.CustomerNumber,
			},
			Packages: []Package{{
				WeightInKg: PackageWeight(order.LineItems, bc.DefaultWeightKg).InexactFloat64(),
				Dimensions: &Dimensions{
					LengthInCm: bc.LengthCm,
					WidthInCm:  bc.WidthCm,
					HeightInCm: bc.HeightCm,
				},
				GoodsDescription: bc.GoodsDesc,
				CorrelationID:    correlationID,
			}},
			Parties: parties,
		}},
	}, nil
}

// PackageWeight is the summed line weight in kg, rounded to 3 decimals, but
// never below the configured default.
func PackageWeight(items []models.LineItem, minimum decimal.Decimal) decimal.Decimal {
	grams := decimal.Zero
	for _, li := range items {
		g := decimal.NewFromInt(int64(max(li.Grams, 0)))
		q := decimal.NewFromInt(int64(max(li.Quantity, 1)))
		grams = grams.Add(g.Mul(q))
	}
	kg := grams.Div(decimal.NewFromInt(1000)).Round(3)
	return decimal.Max(kg, minimum)
}

// customerParty resolves the shipping address, falling back to billing.
func customerParty(order models.Order) Party {
	addr := order.ShippingAddress
	if !addr.HasLocation() && order.BillingAddress.HasLocation() {
		addr = order.BillingAddress
	}
	if addr == nil {
		addr = &models.Address{}
	}

	country := strings.ToUpper(strings.TrimSpace(addr.CountryCode))
	if country == "" {
		country = "NO"
	}

	name := firstNonEmpty(
		addr.Name,
		order.Name,
		strings.TrimSpace(addr.FirstName+" "+addr.LastName),
		unknownRecipient,
	)

	return Party{
		Name:        name,
		AddressLine: strings.TrimSpace(strings.TrimSpace(addr.Address1) + " " + strings.TrimSpace(addr.Address2)),
		PostalCode:  strings.TrimSpace(addr.Zip),
		City:        strings.TrimSpace(addr.City),
		CountryCode: country,
		Reference:   order.Reference(),
		Contact: &Contact{
			Name:        name,
			Email:       firstNonEmpty(order.Email, addr.Email),
			PhoneNumber: NormalizePhone(firstNonEmpty(addr.Phone, order.Phone), country),
		},
	}
}

func configParty(p config.PartyConfig) Party {
	party := Party{
		Name:         p.Name,
		AddressLine:  p.Address,
		AddressLine2: p.Address2,
		PostalCode:   p.PostalCode,
		City:         p.City,
		CountryCode:  firstNonEmpty(p.CountryCode, "NO"),
		Reference:    p.Reference,
	}
	if p.ContactName != "" || p.Email != "" || p.Phone != "" {
		party.Contact = &Contact{
			Name:        firstNonEmpty(p.ContactName, p.Name),
			Email:       p.Email,
			PhoneNumber: NormalizePhone(p.Phone, party.CountryCode),
		}
	}
	return party
}

// NormalizePhone formats a number as E.164. Numbers libphonenumber cannot
// parse are reduced to their digits.
func NormalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if num, err := libphonenumber.Parse(raw, region); err == nil {
		return libphonenumber.Format(num, libphonenumber.E164)
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
