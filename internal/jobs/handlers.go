package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/geocoder89/replayhub/internal/domain/job"
)

// Narrow interfaces so tests can fake the stores easily.

type Pinger interface {
	Ping(ctx context.Context) error
}

type SnapshotPruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type MetricsRoller interface {
	RollupSince(ctx context.Context, since time.Time) (int64, error)
}

// RegisterDefaults wires the built-in handlers into the registry.
func RegisterDefaults(r *Registry, log *slog.Logger, db Pinger, snapshots SnapshotPruner, metrics MetricsRoller) error {
	err := r.Register(Metadata{
		Type:        JobHealthCheck,
		Name:        "Health check",
		Description: "Probes database connectivity from inside the worker.",
		Category:    "system",
	}, func(ctx context.Context, payload json.RawMessage) error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := db.Ping(pingCtx); err != nil {
			return err
		}

		log.InfoContext(ctx, "health check ok")
		return nil
	})

	if err != nil {
		return err
	}

	err = r.Register(Metadata{
		Type:        JobCleanupSnapshots,
		Name:        "Cleanup snapshots",
		Description: "Hard-deletes request snapshots past the retention window.",
		Category:    "maintenance",
		DefaultOptions: job.Options{
			MaxAttempts: 2,
		},
	}, func(ctx context.Context, payload json.RawMessage) error {
		decoded, err := DecodePayload(JobCleanupSnapshots, payload)

		if err != nil {
			return err
		}

		p := decoded.(CleanupSnapshotsPayload)

		days := p.OlderThanDays
		if days <= 0 {
			days = 30
		}

		limit := p.BatchSize
		if limit <= 0 {
			limit = 1000
		}

		cutoff := time.Now().UTC().AddDate(0, 0, -days)

		n, err := snapshots.PruneOlderThan(ctx, cutoff, limit)

		if err != nil {
			return err
		}

		log.InfoContext(ctx, "snapshots pruned", "count", n, "cutoff", cutoff)
		return nil
	})

	if err != nil {
		return err
	}

	return r.Register(Metadata{
		Type:        JobMetricsRollup,
		Name:        "Metrics rollup",
		Description: "Aggregates raw metric rows into hourly buckets.",
		Category:    "maintenance",
	}, func(ctx context.Context, payload json.RawMessage) error {
		decoded, err := DecodePayload(JobMetricsRollup, payload)

		if err != nil {
			return err
		}

		p := decoded.(MetricsRollupPayload)

		hours := p.WindowHours
		if hours <= 0 {
			hours = 24
		}

		since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

		n, err := metrics.RollupSince(ctx, since)

		if err != nil {
			return err
		}

		log.InfoContext(ctx, "metrics rolled up", "rows", n, "since", since)
		return nil
	})
}
