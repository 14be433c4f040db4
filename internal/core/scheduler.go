package core

// scheduler.go runs audit log retention in the background.
//
// The job deletes audit events older than the retention window. Ledger
// entries, item states and history are never touched. Failures are logged
// and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig holds configuration for the audit retention job.
type RetentionConfig struct {
	RetentionDays int           // Days to keep audit events; 0 disables the job
	CheckInterval time.Duration // How often to run (default: 24h)
}

// DefaultRetentionInterval is used when CheckInterval is zero.
const DefaultRetentionInterval = 24 * time.Hour

// StartAuditRetention purges old audit events now and then every
// CheckInterval until ctx is cancelled. It returns immediately when
// retention is disabled or the store cannot purge.
func (s *Service) StartAuditRetention(ctx context.Context, cfg RetentionConfig) {
	purger, ok := s.store.(AuditPurger)
	if !ok || cfg.RetentionDays <= 0 {
		slog.Info("audit retention disabled", "retention_days", cfg.RetentionDays, "supported", ok)
		return
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultRetentionInterval
	}

	slog.Info("audit retention started",
		"retention_days", cfg.RetentionDays,
		"check_interval", cfg.CheckInterval,
	)

	s.runRetentionJob(ctx, purger, cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("audit retention stopped")
			return
		case <-ticker.C:
			s.runRetentionJob(ctx, purger, cfg)
		}
	}
}

// runRetentionJob performs one purge cycle and returns the number of
// events removed.
func (s *Service) runRetentionJob(ctx context.Context, purger AuditPurger, cfg RetentionConfig) int64 {
	start := time.Now()
	cutoff := s.now().AddDate(0, 0, -cfg.RetentionDays)

	purged, err := purger.PurgeAudit(ctx, cutoff)
	if err != nil {
		slog.Error("audit purge failed", "error", err)
		return 0
	}

	slog.Info("purged audit events",
		"events_purged", purged,
		"cutoff", cutoff.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return purged
}
