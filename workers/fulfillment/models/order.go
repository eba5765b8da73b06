package models

import "strings"

// Address is shared by shipping and billing. Every field is optional.
type Address struct {
	Name        string `json:"name,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Address1    string `json:"address1,omitempty"`
	Address2    string `json:"address2,omitempty"`
	City        string `json:"city,omitempty"`
	Zip         string `json:"zip,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
}

// HasLocation reports whether any of address1, city or zip is present.
func (a *Address) HasLocation() bool {
	if a == nil {
		return false
	}
	return strings.TrimSpace(a.Address1) != "" ||
		strings.TrimSpace(a.City) != "" ||
		strings.TrimSpace(a.Zip) != ""
}

type LineItem struct {
	Title            string `json:"title,omitempty"`
	Quantity         int    `json:"quantity"`
	Price            string `json:"price,omitempty"`
	SKU              string `json:"sku,omitempty"`
	RequiresShipping bool   `json:"requires_shipping"`
	Grams            int    `json:"grams"`
}

// Order is the canonical order every ingestion path produces.
type Order struct {
	ID              string     `json:"id,omitempty"`
	OrderNumber     string     `json:"order_number,omitempty"`
	Email           string     `json:"email,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Name            string     `json:"name,omitempty"`
	ShippingAddress *Address   `json:"shipping_address,omitempty"`
	BillingAddress  *Address   `json:"billing_address,omitempty"`
	LineItems       []LineItem `json:"line_items,omitempty"`
	LocationID      string     `json:"location_id,omitempty"`
}

// Reference is what we print on the consignment: the order number, else the id.
func (o *Order) Reference() string {
	if o.OrderNumber != "" {
		return o.OrderNumber
	}
	return o.ID
}
