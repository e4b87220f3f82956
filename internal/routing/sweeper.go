// ABOUTME: Periodic timeout sweeper driving SweepTimeouts
// ABOUTME: Ticker loop with graceful stop via context

package routing

import (
	"context"
	"log/slog"
	"time"
)

const defaultSweepInterval = 10 * time.Second

// Sweeper runs SweepTimeouts on a fixed interval until its context is
// cancelled.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper. interval <= 0 uses the default. logger
// may be nil.
func NewSweeper(svc *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		service:  svc,
		interval: interval,
		logger:   logger.With("component", "sweeper"),
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval. Sweep
// errors are logged; the loop keeps going.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.service.SweepTimeouts(ctx); err != nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}
