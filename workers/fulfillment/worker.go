package fulfillment

import (
	"context"
	"errors"
	"packchicken-service/config"
	"packchicken-service/core"
	"packchicken-service/storefront"
	"packchicken-service/workers/fulfillment/processors"
	"packchicken-service/workers/fulfillment/processors/bring"
	"packchicken-service/workers/fulfillment/processors/simulated"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewProcessor picks the simulated processor under DRY_RUN and Bring
// otherwise. Missing Bring credentials are an error.
func NewProcessor(cfg *config.Config, logger *zap.Logger) (processors.BookingProcessor, error) {
	if cfg.Bring.DryRun {
		return simulated.NewBookingProcessor(cfg, logger), nil
	}
	return bring.NewBookingProcessor(cfg, logger)
}

// NewStorefront returns the storefront client, or nil when it is not
// configured.
func NewStorefront(cfg *config.Config, logger *zap.Logger) Storefront {
	if !cfg.ShopifyEnabled() {
		return nil
	}
	client, err := storefront.NewClient(cfg.Shopify, logger)
	if err != nil {
		logger.Warn("Storefront client disabled", zap.Error(err))
		return nil
	}
	return client
}

// Worker runs the pipeline on the fulfillment cron schedule.
type Worker struct {
	logger   *zap.Logger
	pipeline *Pipeline
	schedule string
	busy     atomic.Bool
}

func NewWorker(cfg *config.Config, logger *zap.Logger, db *gorm.DB, lock core.RunLocker) (*Worker, error) {
	processor, err := NewProcessor(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Worker{
		logger:   logger,
		pipeline: NewPipeline(cfg, logger, db, processor, NewStorefront(cfg, logger), lock),
		schedule: cfg.Schedules.Fulfillment,
	}, nil
}

func (w *Worker) Name() string {
	return "fulfillment"
}

func (w *Worker) Schedule() string {
	return w.schedule
}

func (w *Worker) Ready(time.Time) bool {
	return !w.busy.Load()
}

func (w *Worker) Execute(ctx context.Context) {
	if !w.busy.CompareAndSwap(false, true) {
		return
	}
	defer w.busy.Store(false)

	report, err := w.pipeline.Run(ctx, RunOptions{})
	if errors.Is(err, core.ErrRunInProgress) {
		w.logger.Info("Another run is in progress, skipping tick")
		return
	}
	if err != nil {
		w.logger.Error("Fulfillment run aborted", zap.Error(err))
		return
	}
	if report.ProcessedJobs == 0 {
		w.logger.Info("No pending jobs. Fulfillment work completed 😴")
	}
}

// Pipeline is shared with the dashboard so both use the same run lock.
func (w *Worker) Pipeline() *Pipeline {
	return w.pipeline
}
