package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/replayhub/internal/observability"
)

type MetricsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewMetricsRepo(pool *pgxpool.Pool, prom *observability.Prom) *MetricsRepo {
	return &MetricsRepo{pool: pool, prom: prom}
}

// RollupSince aggregates raw metric rows since the cutoff into hourly
// buckets. Re-running over the same window overwrites the buckets, so
// the rollup job is safe to retry.
func (r *MetricsRepo) RollupSince(ctx context.Context, since time.Time) (int64, error) {
	var rows int64

	err := r.observe("metrics.rollup", func() error {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO metric_rollups (name, bucket, count, sum, min, max)
			SELECT name,
			       date_trunc('hour', created_at) AS bucket,
			       count(*),
			       sum(value),
			       min(value),
			       max(value)
			FROM metrics
			WHERE created_at >= $1 AND deleted_at IS NULL
			GROUP BY name, date_trunc('hour', created_at)
			ON CONFLICT (name, bucket) DO UPDATE SET
				count = EXCLUDED.count,
				sum = EXCLUDED.sum,
				min = EXCLUDED.min,
				max = EXCLUDED.max`,
			since,
		)

		if err != nil {
			return err
		}

		rows = tag.RowsAffected()
		return nil
	})

	return rows, err
}

func (r *MetricsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}
