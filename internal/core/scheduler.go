package core

// scheduler.go provides background scheduling for recurring source work.
//
// Two kinds of work are scheduled:
//  1. Imports for sources configured with a Schedule interval.
//  2. Expire passes for sources configured with an ExpireAfter retention,
//     removing entities whose last import is older than the window.
//
// The scheduler is designed to be long-running and context-aware for
// graceful shutdown. It logs progress and errors but does not fail the
// application if individual runs fail; the source is retried on its next
// interval.

import (
	"context"
	"time"
)

// SchedulerConfig holds configuration for the source scheduler.
// All fields have sensible defaults if zero values are provided.
type SchedulerConfig struct {
	CheckInterval  time.Duration // How often to look for due work (default: 1m)
	ExpireInterval time.Duration // How often to run expire passes (default: 24h)
}

// StartScheduler starts a background goroutine that periodically triggers
// imports for scheduled sources and expire passes for sources with a
// retention window. Due work runs immediately on start, then every
// CheckInterval. The scheduler stops when the context is cancelled.
func (s *Service) StartScheduler(ctx context.Context, cfg SchedulerConfig) {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.ExpireInterval <= 0 {
		cfg.ExpireInterval = 24 * time.Hour
	}

	now := time.Now()
	nextImport := make(map[string]time.Time)
	nextExpire := make(map[string]time.Time)
	for _, spec := range s.Sources() {
		if spec.Schedule > 0 {
			nextImport[spec.Name] = now
		}
		if spec.ExpireAfter > 0 {
			nextExpire[spec.Name] = now.Add(cfg.ExpireInterval)
		}
	}

	s.log.Info("scheduler started",
		"scheduled_sources", len(nextImport),
		"expiring_sources", len(nextExpire),
		"check_interval", cfg.CheckInterval.String(),
	)

	// Run due work immediately on startup
	s.runDueWork(ctx, cfg, nextImport, nextExpire)

	// Then run periodically
	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runDueWork(ctx, cfg, nextImport, nextExpire)
		}
	}
}

// runDueWork starts a background driver for every source whose next import
// or expire time has passed, then advances that source's next-run time. A
// run that cannot start (already running, limiter full) is skipped and the
// interval advances anyway; steady state catches up on the next cycle.
func (s *Service) runDueWork(ctx context.Context, cfg SchedulerConfig, nextImport, nextExpire map[string]time.Time) {
	now := time.Now()

	for name, due := range nextImport {
		if now.Before(due) {
			continue
		}
		if err := s.StartOperation(ctx, name, OpImport); err != nil {
			s.log.Debug("scheduled import skipped", "source", name, "reason", err)
		} else {
			s.log.Info("scheduled import started", "source", name)
		}
		nextImport[name] = now.Add(s.sources[name].Schedule)
	}

	for name, due := range nextExpire {
		if now.Before(due) {
			continue
		}
		if err := s.StartOperation(ctx, name, OpExpire); err != nil {
			s.log.Debug("scheduled expire skipped", "source", name, "reason", err)
		} else {
			s.log.Info("scheduled expire started", "source", name)
		}
		nextExpire[name] = now.Add(cfg.ExpireInterval)
	}
}
