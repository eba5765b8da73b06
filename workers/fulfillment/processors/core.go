package processors

import (
	"context"
	"errors"
	"packchicken-service/workers/fulfillment/models"
)

// ErrIncompleteRecipient means the customer address lacks a street line,
// city or postal code. The pipeline may re-fetch the order once on this error.
var ErrIncompleteRecipient = errors.New("recipient address is incomplete")

type Role string

const (
	RoleForward Role = "forward"
	RoleReturn  Role = "return"
)

type BookingRequest struct {
	JobID uint
	Order models.Order
	Role  Role
}

type BookingResult struct {
	TrackingNumber string
	PackageNumber  string
	LabelsURL      string
	TrackingURL    string
	RawBody        []byte
	TestMode       bool
	Simulated      bool

	// Summary for rendered labels.
	OrderRef      string
	WeightKg      string
	RecipientName string
	RecipientLine string
}

func (r *BookingResult) HasLabel() bool {
	return r.LabelsURL != "" || r.Simulated
}

// BookingProcessor books one consignment with a carrier and fetches its label.
type BookingProcessor interface {
	Name() string
	Book(ctx context.Context, req BookingRequest) (*BookingResult, error)
	FetchLabel(ctx context.Context, result *BookingResult, dest string) error
}
