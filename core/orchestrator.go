package core

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Orchestrator struct {
	logger  *zap.Logger
	workers []Worker
}

func NewOrchestrator(logger *zap.Logger, workers []Worker) *Orchestrator {
	return &Orchestrator{logger: logger, workers: workers}
}

// Start registers every scheduled worker and starts the cron runner. The
// returned cron must be stopped by the caller.
func (o *Orchestrator) Start(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()

	for _, worker := range o.workers {
		if worker.Schedule() == "" {
			o.logger.Info("Worker disabled (no schedule)", zap.String("worker", worker.Name()))
			continue
		}

		w := worker
		_, err := c.AddFunc(w.Schedule(), func() {
			if !w.Ready(time.Now()) {
				o.logger.Debug("Worker busy, skipping tick", zap.String("worker", w.Name()))
				return
			}
			w.Execute(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("schedule worker %s (%q): %w", w.Name(), w.Schedule(), err)
		}

		o.logger.Info("Worker scheduled",
			zap.String("worker", w.Name()),
			zap.String("schedule", w.Schedule()),
		)
	}

	c.Start()
	return c, nil
}
