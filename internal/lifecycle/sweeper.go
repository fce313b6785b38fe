package lifecycle

import (
	"context"
	"log/slog"
	"time"
)

// Default sweep schedule.
const (
	DefaultInterval = 30 * time.Minute
	DefaultMaxAge   = 2 * time.Hour
)

// Sweeper runs SweepExpired on a fixed interval.
type Sweeper struct {
	// manager performs each sweep.
	manager *Manager
	// interval is the time between sweeps.
	interval time.Duration
	// maxAge is the retention age for temporary chunks.
	maxAge time.Duration
	// log records sweep results.
	log *slog.Logger
}

// NewSweeper constructs a Sweeper. Non-positive durations select the defaults.
func NewSweeper(manager *Manager, interval, maxAge time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{manager: manager, interval: interval, maxAge: maxAge, log: log}
}

// Run sweeps once per interval until ctx is cancelled. Sweeps run on this
// goroutine, so a slow sweep delays the next tick instead of overlapping it.
// Failures are logged and retried with a fresh scan on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("lifecycle: sweeper started",
		slog.Duration("interval", s.interval),
		slog.Duration("max_age", s.maxAge),
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("lifecycle: sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and logs its outcome.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.manager.SweepExpired(ctx, s.maxAge)
	if err != nil {
		s.log.Error("lifecycle: sweep failed",
			slog.Int("deleted", n),
			slog.String("error", err.Error()),
		)
		return n, err
	}
	s.log.Info("lifecycle: sweep complete",
		slog.Int("deleted", n),
		slog.Duration("duration", time.Since(start)),
	)
	return n, nil
}
