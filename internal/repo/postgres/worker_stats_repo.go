package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/replayhub/internal/observability"
	"github.com/geocoder89/replayhub/internal/worker"
)

var ErrWorkerStatsNotFound = errors.New("worker stats not found")

type WorkerStatsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewWorkerStatsRepo(pool *pgxpool.Pool, prom *observability.Prom) *WorkerStatsRepo {
	return &WorkerStatsRepo{pool: pool, prom: prom}
}

func (r *WorkerStatsRepo) Upsert(ctx context.Context, row worker.StatsRow) error {
	scheduled, err := json.Marshal(row.ScheduledJobs)

	if err != nil {
		return err
	}

	available, err := json.Marshal(row.AvailableJobs)

	if err != nil {
		return err
	}

	return r.observe("worker_stats.upsert", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO worker_stats
				(id, worker_mode, queue_size, processing_count,
				 scheduled_jobs_count, available_jobs_count,
				 scheduled_jobs, available_jobs, last_heartbeat, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
			ON CONFLICT (id) DO UPDATE SET
				worker_mode = EXCLUDED.worker_mode,
				queue_size = EXCLUDED.queue_size,
				processing_count = EXCLUDED.processing_count,
				scheduled_jobs_count = EXCLUDED.scheduled_jobs_count,
				available_jobs_count = EXCLUDED.available_jobs_count,
				scheduled_jobs = EXCLUDED.scheduled_jobs,
				available_jobs = EXCLUDED.available_jobs,
				last_heartbeat = EXCLUDED.last_heartbeat,
				updated_at = now()`,
			row.ID, row.WorkerMode, row.QueueSize, row.ProcessingCount,
			row.ScheduledJobsCount, row.AvailableJobsCount,
			scheduled, available, row.LastHeartbeat,
		)
		return err
	})
}

// Latest returns the most recent heartbeat row across workers.
func (r *WorkerStatsRepo) Latest(ctx context.Context) (worker.StatsRow, error) {
	var row worker.StatsRow
	var scheduled, available []byte

	err := r.observe("worker_stats.latest", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, worker_mode, queue_size, processing_count,
			       scheduled_jobs_count, available_jobs_count,
			       scheduled_jobs, available_jobs, last_heartbeat
			FROM worker_stats
			ORDER BY last_heartbeat DESC
			LIMIT 1`,
		).Scan(
			&row.ID, &row.WorkerMode, &row.QueueSize, &row.ProcessingCount,
			&row.ScheduledJobsCount, &row.AvailableJobsCount,
			&scheduled, &available, &row.LastHeartbeat,
		)
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return worker.StatsRow{}, ErrWorkerStatsNotFound
	}
	if err != nil {
		return worker.StatsRow{}, err
	}

	if err := json.Unmarshal(scheduled, &row.ScheduledJobs); err != nil {
		return worker.StatsRow{}, err
	}
	if err := json.Unmarshal(available, &row.AvailableJobs); err != nil {
		return worker.StatsRow{}, err
	}

	return row, nil
}

// Stale reports whether the latest heartbeat is older than maxAge.
// No row at all counts as stale.
func (r *WorkerStatsRepo) Stale(ctx context.Context, maxAge time.Duration) (bool, error) {
	row, err := r.Latest(ctx)

	if errors.Is(err, ErrWorkerStatsNotFound) {
		return true, nil
	}
	if err != nil {
		return true, err
	}

	return time.Since(row.LastHeartbeat) > maxAge, nil
}

func (r *WorkerStatsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}
