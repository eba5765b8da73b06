package core

import (
	"context"
	"time"
)

// Worker is a unit of background work run by the Orchestrator on a cron
// schedule. An empty Schedule disables the worker.
type Worker interface {
	Name() string
	Schedule() string
	Ready(now time.Time) bool
	Execute(ctx context.Context)
}
