package widget

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/aran-respon/internal/store"
)

const defaultSweepInterval = 5 * time.Minute

// SweepConfig controls the background sweeper.
type SweepConfig struct {
	Interval  time.Duration
	IdleTTL   time.Duration // controller eviction
	Retention time.Duration // persisted record purge
}

// StartSweeper runs a background goroutine that periodically evicts idle
// controllers and purges persisted records nobody touched within Retention.
// It stops when ctx is cancelled; the returned channel is closed on exit.
func StartSweeper(ctx context.Context, m *Manager, backend store.Store, cfg SweepConfig) <-chan struct{} {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	done := make(chan struct{})
	ticker := time.NewTicker(cfg.Interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Widget sweeper started", "interval", cfg.Interval, "idle_ttl", cfg.IdleTTL, "retention", cfg.Retention)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, m, backend, cfg)
			case <-ctx.Done():
				slog.Info("Widget sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func sweep(ctx context.Context, m *Manager, backend store.Store, cfg SweepConfig) {
	if cfg.IdleTTL > 0 {
		if n := m.EvictIdle(cfg.IdleTTL); n > 0 {
			slog.Info("Widget sweeper evicted idle instances", "count", n, "remaining", m.Len())
		}
	}

	if cfg.Retention <= 0 || backend == nil {
		return
	}
	deleted, err := backend.DeleteStale(ctx, cfg.Retention)
	if err != nil {
		slog.Error("Widget sweeper failed to purge stale records", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Widget sweeper purged stale records", "count", deleted)
	}
}
