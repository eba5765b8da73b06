package normalize

import (
	"maps"
	"packchicken-service/workers/fulfillment/models"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// APIAddress and friends are the document posted to the ingress endpoint.
type APIAddress struct {
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	Zip      string `json:"zip" binding:"omitempty,min=2,max=10"`
	City     string `json:"city"`
	Country  string `json:"country"`
}

type APILine struct {
	SKU   string `json:"sku"`
	Title string `json:"title"`
	Qty   *int   `json:"qty" binding:"omitempty,min=1"`
	// Price is in øre.
	Price *int `json:"price" binding:"omitempty,min=0"`
}

type APIOrderDoc struct {
	OrderNumber     string      `json:"order_number"`
	Email           string      `json:"email"`
	Name            string      `json:"name"`
	Phone           string      `json:"phone"`
	ShippingAddress *APIAddress `json:"shipping_address" binding:"required"`
	Lines           []APILine   `json:"lines" binding:"dive"`
}

// APIOrder is a pushed order, typically from the mail parser running
// elsewhere.
type APIOrder struct {
	Source       string         `json:"source" binding:"required"`
	MessageID    string         `json:"message_id"`
	Order        *APIOrderDoc   `json:"order" binding:"required"`
	RawEmailMeta map[string]any `json:"raw_email_meta"`
}

func (APIOrder) sourceTag() string { return SourceAPI }

func fromAPI(src APIOrder) (Result, error) {
	in := src.Order
	if in == nil || in.ShippingAddress == nil {
		return Result{}, ErrEmptySource
	}

	orderID := firstNonEmpty(in.OrderNumber, src.MessageID)
	if orderID == "" {
		orderID = "api-" + uuid.NewString()
	}

	order := models.Order{
		OrderNumber: in.OrderNumber,
		Email:       in.Email,
		Phone:       in.Phone,
		Name:        in.Name,
		ShippingAddress: &models.Address{
			Name:        in.Name,
			Address1:    in.ShippingAddress.Address1,
			Address2:    in.ShippingAddress.Address2,
			City:        in.ShippingAddress.City,
			Zip:         strings.TrimSpace(in.ShippingAddress.Zip),
			CountryCode: in.ShippingAddress.Country,
		},
	}
	for _, line := range in.Lines {
		item := models.LineItem{SKU: line.SKU, Title: line.Title, Quantity: 1, RequiresShipping: true}
		if line.Qty != nil {
			item.Quantity = *line.Qty
		}
		if line.Price != nil {
			item.Price = decimal.New(int64(*line.Price), -2).StringFixed(2)
		}
		order.LineItems = append(order.LineItems, item)
	}

	meta := maps.Clone(src.RawEmailMeta)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["ingress_source"] = src.Source
	if src.MessageID != "" {
		meta["message_id"] = src.MessageID
	}

	return Result{OrderID: orderID, Source: SourceAPI, Order: order, EmailMeta: meta}, nil
}
