package storage

import (
	"context"
	"log/slog"
	"time"

	"filedrop/internal/server/metrics"
)

// SweepService periodically removes staged uploads that were abandoned by a
// crash or a killed request and never published or discarded.
type SweepService struct {
	store    Store
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

// NewSweepService creates a new sweeper.
func NewSweepService(store Store, interval, maxAge time.Duration) *SweepService {
	return &SweepService{
		store:    store,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *SweepService) Run(ctx context.Context) error {
	slog.Info("sweep service started", "interval", s.interval, "max_age", s.maxAge)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			slog.Info("sweep service stopping")
			return nil
		}
	}
}

func (s *SweepService) sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.maxAge)

	removed, err := s.store.SweepStaged(ctx, cutoff)
	if removed > 0 {
		metrics.StagedFilesSweptTotal.Add(float64(removed))
	}
	if err != nil {
		slog.Error("failed to sweep staged uploads", "error", err, "removed", removed)
		return removed
	}

	if removed > 0 {
		slog.Info("swept abandoned uploads", "removed", removed, "cutoff", cutoff)
	}
	return removed
}
