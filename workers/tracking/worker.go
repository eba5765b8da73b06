package tracking

import (
	"context"
	"packchicken-service/config"
	"packchicken-service/workers/fulfillment/models"
	"packchicken-service/workers/fulfillment/repositories"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Worker struct {
	logger    *zap.Logger
	repo      *repositories.ShipmentRepository
	processor *Processor
	schedule  string
	now       func() time.Time
	mu        sync.Mutex
	busy      atomic.Bool
}

func NewWorker(cfg *config.Config, logger *zap.Logger, db *gorm.DB) *Worker {
	return &Worker{
		logger:    logger,
		repo:      repositories.NewShipmentRepository(db),
		processor: NewProcessor(logger),
		schedule:  cfg.Schedules.Tracking,
		now:       time.Now,
	}
}

func (w *Worker) Name() string {
	return "tracking"
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

	if _, err := w.RunOnce(ctx); err != nil {
		w.logger.Error("Tracking pass failed", zap.Error(err))
	}
}

// RunOnce refreshes every open shipment that is due and returns how many
// were updated.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	w.logger.Info("Starting shipment tracking.")

	shipments, err := w.repo.GetOpenShipments(ctx)
	if err != nil {
		return 0, err
	}

	var due []models.Shipment
	for _, s := range shipments {
		if w.shouldCheck(s) {
			due = append(due, s)
		}
	}
	if len(due) == 0 {
		w.logger.Info("No shipments are due. Tracking work completed 😴")
		return 0, nil
	}

	var updated atomic.Int32
	var wg sync.WaitGroup
	for _, shipment := range due {
		wg.Add(1)
		go func(sh models.Shipment) {
			defer wg.Done()
			if w.processShipment(ctx, sh) {
				updated.Add(1)
			}
		}(shipment)
	}
	wg.Wait()

	w.logger.Info("Tracking work completed 😴", zap.Int32("updated", updated.Load()))
	return int(updated.Load()), nil
}

// shouldCheck: never-checked shipments always, others once a day, or every
// 15 minutes when delivery is expected within two hours.
func (w *Worker) shouldCheck(shipment models.Shipment) bool {
	const (
		day           = 24 * time.Hour
		soonThreshold = 2 * time.Hour
		recheckDelay  = 15 * time.Minute
	)

	if shipment.Status.IsFinal() || shipment.TrackingURL == "" {
		return false
	}
	if shipment.LastCheckedAt == nil {
		return true
	}

	now := w.now()
	sinceLastCheck := now.Sub(*shipment.LastCheckedAt)
	if sinceLastCheck > day {
		return true
	}
	if shipment.ExpectedAt == nil {
		return false
	}
	return shipment.ExpectedAt.Sub(now) < soonThreshold && sinceLastCheck > recheckDelay
}

func (w *Worker) processShipment(ctx context.Context, sh models.Shipment) bool {
	result, err := w.processor.Process(sh)
	if err != nil {
		w.logger.Error("Failed to scrape tracking page",
			zap.String("tracking_number", sh.TrackingNumber),
			zap.Error(err),
		)
		return false
	}

	if result.Status != models.ShipmentUnknown || sh.Status == "" {
		sh.Status = result.Status
	}
	sh.LastLocation = result.LastLocation
	sh.ExpectedAt = result.ExpectedAt
	checked := result.CheckedAt
	sh.LastCheckedAt = &checked

	// Saves are serialized.
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.repo.SaveShipment(ctx, &sh); err != nil {
		w.logger.Error("Failed to save shipment",
			zap.String("tracking_number", sh.TrackingNumber),
			zap.Error(err),
		)
		return false
	}

	w.logger.Info("Shipment tracking updated",
		zap.String("tracking_number", sh.TrackingNumber),
		zap.String("status", string(sh.Status)),
		zap.String("headline", result.Headline),
	)
	return true
}
