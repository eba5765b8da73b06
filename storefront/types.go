package storefront

// Shapes follow the Shopify Admin REST API. Only the fields we map are kept.

type Address struct {
	Name        string `json:"name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	City        string `json:"city"`
	Zip         string `json:"zip"`
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
}

type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type LineItem struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Quantity         int    `json:"quantity"`
	Price            string `json:"price"`
	SKU              string `json:"sku"`
	RequiresShipping bool   `json:"requires_shipping"`
	Grams            int    `json:"grams"`
}

type Order struct {
	ID              int64      `json:"id"`
	OrderNumber     int64      `json:"order_number"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	ShippingAddress *Address   `json:"shipping_address"`
	BillingAddress  *Address   `json:"billing_address"`
	Customer        *Customer  `json:"customer"`
	LineItems       []LineItem `json:"line_items"`
	LocationID      *int64     `json:"location_id"`
}

type FulfillmentOrderLineItem struct {
	ID                 int64 `json:"id"`
	FulfillmentOrderID int64 `json:"fulfillment_order_id"`
	LineItemID         int64 `json:"line_item_id"`
	Quantity           int   `json:"quantity"`
}

type FulfillmentOrder struct {
	ID                 int64                      `json:"id"`
	OrderID            int64                      `json:"order_id"`
	AssignedLocationID int64                      `json:"assigned_location_id"`
	Status             string                     `json:"status"`
	LineItems          []FulfillmentOrderLineItem `json:"line_items"`
}

// FulfillmentRequest is the minimal fulfillment we create: one line of one
// fulfillment order plus tracking metadata.
type FulfillmentRequest struct {
	FulfillmentOrderID int64
	LineItemID         int64
	Quantity           int
	TrackingNumber     string
	TrackingURL        string
	Company            string
	NotifyCustomer     bool
	LocationID         string
}

type Fulfillment struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type orderEnvelope struct {
	Order Order `json:"order"`
}

type ordersEnvelope struct {
	Orders []Order `json:"orders"`
}

type fulfillmentOrdersEnvelope struct {
	FulfillmentOrders []FulfillmentOrder `json:"fulfillment_orders"`
}

type fulfillmentEnvelope struct {
	Fulfillment Fulfillment `json:"fulfillment"`
}

type trackingInfo struct {
	Number  string `json:"number"`
	URL     string `json:"url,omitempty"`
	Company string `json:"company"`
}

type fulfillmentOrderLine struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity,omitempty"`
}

type lineItemsByFulfillmentOrder struct {
	FulfillmentOrderID        int64                  `json:"fulfillment_order_id"`
	FulfillmentOrderLineItems []fulfillmentOrderLine `json:"fulfillment_order_line_items"`
}

type createFulfillmentBody struct {
	Fulfillment struct {
		NotifyCustomer              bool                          `json:"notify_customer"`
		TrackingInfo                trackingInfo                  `json:"tracking_info"`
		LineItemsByFulfillmentOrder []lineItemsByFulfillmentOrder `json:"line_items_by_fulfillment_order"`
		LocationID                  string                        `json:"location_id,omitempty"`
	} `json:"fulfillment"`
}
