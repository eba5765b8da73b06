package normalize

import (
	"packchicken-service/storefront"
	"packchicken-service/workers/fulfillment/models"
	"strconv"
	"strings"
)

// StorefrontOrder is an order fetched from the Shopify Admin API.
// LocationID is used when the order itself carries none.
type StorefrontOrder struct {
	Order      storefront.Order
	LocationID string
}

func (StorefrontOrder) sourceTag() string { return SourceStorefront }

func fromStorefront(src StorefrontOrder) (Result, error) {
	o := src.Order
	if o.ID == 0 {
		return Result{}, ErrEmptySource
	}

	id := strconv.FormatInt(o.ID, 10)
	order := models.Order{
		ID:              id,
		Email:           o.Email,
		Phone:           o.Phone,
		ShippingAddress: mapStorefrontAddress(o.ShippingAddress),
		BillingAddress:  mapStorefrontAddress(o.BillingAddress),
		LocationID:      src.LocationID,
	}
	if o.OrderNumber > 0 {
		order.OrderNumber = strconv.FormatInt(o.OrderNumber, 10)
	}
	if o.LocationID != nil {
		order.LocationID = strconv.FormatInt(*o.LocationID, 10)
	}
	if c := o.Customer; c != nil {
		order.Name = strings.TrimSpace(c.FirstName + " " + c.LastName)
		order.Email = firstNonEmpty(order.Email, c.Email)
		order.Phone = firstNonEmpty(order.Phone, c.Phone)
	}

	for _, li := range o.LineItems {
		order.LineItems = append(order.LineItems, models.LineItem{
			Title:            li.Title,
			Quantity:         li.Quantity,
			Price:            li.Price,
			SKU:              li.SKU,
			RequiresShipping: li.RequiresShipping,
			Grams:            li.Grams,
		})
	}

	return Result{OrderID: id, Source: SourceStorefront, Order: order}, nil
}

func mapStorefrontAddress(a *storefront.Address) *models.Address {
	if a == nil {
		return nil
	}
	return &models.Address{
		Name:        a.Name,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		Address1:    a.Address1,
		Address2:    a.Address2,
		City:        a.City,
		Zip:         a.Zip,
		CountryCode: a.CountryCode,
		Phone:       a.Phone,
	}
}
