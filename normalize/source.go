// Package normalize turns every ingestion format into the canonical order.
//
// Each input family is its own Source type. Normalize dispatches on the
// concrete type and produces exactly one order per call.
package normalize

import (
	"errors"
	"fmt"
	"packchicken-service/workers/fulfillment/models"
)

const (
	SourceCSV        = "csv"
	SourceXLSX       = "xlsx"
	SourceEmail      = "email"
	SourceStorefront = "storefront"
	SourceAPI        = "api"
)

var ErrEmptySource = errors.New("source holds no order data")

// Source is implemented by CSVRows, EmailMessage, StorefrontOrder and APIOrder.
type Source interface {
	sourceTag() string
}

// Result is one normalized order ready to be enqueued.
type Result struct {
	OrderID   string
	Source    string
	Order     models.Order
	EmailMeta map[string]any
}

func (r Result) Document() models.JobDocument {
	return models.JobDocument{
		ID:        r.OrderID,
		Source:    r.Source,
		Order:     r.Order,
		EmailMeta: r.EmailMeta,
	}
}

func Normalize(src Source) (Result, error) {
	switch s := src.(type) {
	case CSVRows:
		return fromRows(s)
	case *CSVRows:
		return fromRows(*s)
	case EmailMessage:
		return fromEmail(s)
	case *EmailMessage:
		return fromEmail(*s)
	case StorefrontOrder:
		return fromStorefront(s)
	case *StorefrontOrder:
		return fromStorefront(*s)
	case APIOrder:
		return fromAPI(s)
	case *APIOrder:
		return fromAPI(*s)
	default:
		return Result{}, fmt.Errorf("unsupported order source %T", src)
	}
}
