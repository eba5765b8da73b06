package fulfillment

import (
	"context"
	"fmt"
	"packchicken-service/config"
	"packchicken-service/normalize"
	"packchicken-service/storefront"
	"packchicken-service/workers/fulfillment/repositories"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Intake is the single entry point for new orders. Every ingestion path
// (files, inbox, HTTP, storefront import) goes through Submit so the
// duplicate policy is applied in one place.
type Intake struct {
	logger *zap.Logger
	cfg    *config.Config
	jobs   *repositories.JobRepository
}

func NewIntake(cfg *config.Config, logger *zap.Logger, db *gorm.DB) *Intake {
	return &Intake{
		logger: logger,
		cfg:    cfg,
		jobs:   repositories.NewJobRepository(db),
	}
}

// Submit enqueues one normalized order. It returns the new job id, or
// enqueued=false when the skip-pending policy found a pending job for the
// same order.
func (i *Intake) Submit(ctx context.Context, res normalize.Result) (jobID uint, enqueued bool, err error) {
	if i.cfg.DedupePolicy == config.DedupeSkipPending && res.OrderID != "" {
		pending, err := i.jobs.HasPending(ctx, res.OrderID)
		if err != nil {
			return 0, false, err
		}
		if pending {
			i.logger.Info("Order already pending, not enqueued again",
				zap.String("order_id", res.OrderID),
				zap.String("source", res.Source),
			)
			return 0, false, nil
		}
	}

	id, err := i.jobs.Enqueue(ctx, res.Document())
	if err != nil {
		return 0, false, err
	}
	i.logger.Info("Order enqueued",
		zap.Uint("job_id", id),
		zap.String("order_id", res.OrderID),
		zap.String("source", res.Source),
	)
	return id, true, nil
}

// SubmitFile loads a .csv or .xlsx order file and enqueues every order in
// it. It returns the order ids that were enqueued.
func (i *Intake) SubmitFile(ctx context.Context, path string) ([]string, error) {
	results, err := normalize.LoadOrderFile(path, i.cfg.Shopify.LocationID)
	if err != nil {
		return nil, err
	}

	added := make([]string, 0, len(results))
	for _, res := range results {
		_, ok, err := i.Submit(ctx, res)
		if err != nil {
			return added, fmt.Errorf("enqueue order %s from %s: %w", res.OrderID, path, err)
		}
		if ok {
			added = append(added, res.OrderID)
		}
	}
	return added, nil
}

// OrderLister is the storefront call used by ImportStorefront.
type OrderLister interface {
	ListUnfulfilledOrders(ctx context.Context, limit int, updatedAtMin string) ([]storefront.Order, error)
}

// ImportStorefront enqueues every open, unfulfilled storefront order.
func (i *Intake) ImportStorefront(ctx context.Context, store OrderLister, limit int, updatedAtMin string) ([]string, error) {
	orders, err := store.ListUnfulfilledOrders(ctx, limit, updatedAtMin)
	if err != nil {
		return nil, err
	}

	var added []string
	for _, so := range orders {
		res, err := normalize.Normalize(normalize.StorefrontOrder{Order: so, LocationID: i.cfg.Shopify.LocationID})
		if err != nil {
			i.logger.Warn("Skipping storefront order", zap.Int64("storefront_id", so.ID), zap.Error(err))
			continue
		}
		_, ok, err := i.Submit(ctx, res)
		if err != nil {
			return added, err
		}
		if ok {
			added = append(added, res.OrderID)
		}
	}
	return added, nil
}
