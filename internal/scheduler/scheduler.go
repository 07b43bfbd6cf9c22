// Package scheduler runs reindex requests off the request path.
package scheduler

import (
	"context"

	"go.uber.org/zap"
)

// Scheduler owns a single-slot queue of pending reindex requests and a
// runner loop that drains it. Scheduling never blocks the caller: while a
// run is already pending, further requests coalesce into it.
type Scheduler struct {
	pending chan struct{}
	run     func(ctx context.Context) error
	logger  *zap.Logger
}

// New constructs a Scheduler around the given run function.
func New(run func(ctx context.Context) error, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		pending: make(chan struct{}, 1),
		run:     run,
		logger:  logger,
	}
}

// Schedule queues one run and returns immediately. The outcome of the run
// is observable only through the store and logs.
func (s *Scheduler) Schedule() {
	select {
	case s.pending <- struct{}{}:
		s.logger.Info("reindex scheduled")
	default:
		// A run is already pending; this request rides along with it.
		s.logger.Info("reindex already pending, coalesced")
	}
}

// Run blocks, consuming scheduled requests until the context finishes.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.pending:
			if err := s.run(ctx); err != nil {
				s.logger.Error("reindex run failed", zap.Error(err))
			}
		}
	}
}
