package simulated

import (
	"context"
	"fmt"
	"packchicken-service/config"
	"packchicken-service/labels"
	"packchicken-service/workers/fulfillment/processors"
	"packchicken-service/workers/fulfillment/processors/bring"
	"time"

	"go.uber.org/zap"
)

// BookingProcessor stands in for Bring when DRY_RUN is set. It builds and
// validates the real payload but never calls the network, and renders its own
// label.
type BookingProcessor struct {
	logger *zap.Logger
	cfg    *config.Config
	now    func() time.Time
}

func NewBookingProcessor(cfg *config.Config, logger *zap.Logger) *BookingProcessor {
	return &BookingProcessor{logger: logger, cfg: cfg, now: time.Now}
}

func (p *BookingProcessor) Name() string {
	return "simulated"
}

func (p *BookingProcessor) Book(_ context.Context, req processors.BookingRequest) (*processors.BookingResult, error) {
	now := p.now()
	payload, err := bring.BuildPayload(req.Order, req.Role, p.cfg, now)
	if err != nil {
		return nil, err
	}
	if err := bring.Validate(payload); err != nil {
		return nil, err
	}

	recipient := payload.Consignments[0].Parties.Recipient
	tracking := fmt.Sprintf("SIM-%s-%d", req.Order.Reference(), now.Unix())
	p.logger.Info("DRY_RUN: simulated Bring booking",
		zap.Uint("job_id", req.JobID),
		zap.String("tracking_number", tracking),
	)

	return &processors.BookingResult{
		TrackingNumber: tracking,
		TestMode:       true,
		Simulated:      true,
		OrderRef:       req.Order.Reference(),
		WeightKg:       fmt.Sprintf("%.3f", payload.Consignments[0].Packages[0].WeightInKg),
		RecipientName:  recipient.Name,
		RecipientLine:  recipient.AddressLine + ", " + recipient.PostalCode + " " + recipient.City,
	}, nil
}

func (p *BookingProcessor) FetchLabel(_ context.Context, result *processors.BookingResult, dest string) error {
	sender := p.cfg.Sender
	return labels.Render(dest, labels.LabelData{
		TrackingNumber: result.TrackingNumber,
		OrderRef:       result.OrderRef,
		WeightKg:       result.WeightKg,
		SenderName:     sender.Name,
		SenderLine:     sender.Address + ", " + sender.PostalCode + " " + sender.City,
		RecipientName:  result.RecipientName,
		RecipientLine:  result.RecipientLine,
		Test:           true,
	})
}
