package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/replayhub/internal/domain/snapshot"
	"github.com/geocoder89/replayhub/internal/observability"
)

const snapshotColumns = `id, method, path, query, headers, body, body_truncated,
	user_id, ts, version, stage,
	status_code, response_headers, response_body, response_truncated, duration_ms,
	geo_country, geo_region, geo_city, geo_lat, geo_lon, geo_src,
	created_at, updated_at, deleted_at`

type SnapshotsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewSnapshotsRepo(pool *pgxpool.Pool, prom *observability.Prom) *SnapshotsRepo {
	return &SnapshotsRepo{pool: pool, prom: prom}
}

func (r *SnapshotsRepo) Insert(ctx context.Context, s snapshot.Snapshot) (int64, error) {
	var id int64

	err := r.observe("snapshots.insert", func() error {
		return r.pool.QueryRow(ctx, `
			INSERT INTO request_snapshots
				(method, path, query, headers, body, body_truncated,
				 user_id, ts, version, stage,
				 status_code, response_headers, response_body, response_truncated, duration_ms,
				 geo_country, geo_region, geo_city, geo_lat, geo_lon, geo_src)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
			RETURNING id`,
			s.Method, s.Path, s.Query, s.Headers, []byte(s.Body), s.BodyTruncated,
			s.UserID, s.Timestamp, s.Version, s.Stage,
			s.StatusCode, s.ResponseHeaders, []byte(s.ResponseBody), s.ResponseTruncated, s.DurationMs,
			s.Geo.Country, s.Geo.Region, s.Geo.City, s.Geo.Lat, s.Geo.Lon, string(s.Geo.Source),
		).Scan(&id)
	})

	return id, err
}

func (r *SnapshotsRepo) GetByID(ctx context.Context, id int64) (snapshot.Snapshot, error) {
	var s snapshot.Snapshot

	err := r.observe("snapshots.get", func() error {
		row := r.pool.QueryRow(ctx,
			`SELECT `+snapshotColumns+` FROM request_snapshots WHERE id = $1 AND deleted_at IS NULL`, id)

		return scanSnapshot(row, &s)
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return snapshot.Snapshot{}, snapshot.ErrNotFound
	}

	return s, err
}

func (r *SnapshotsRepo) List(ctx context.Context, f snapshot.ListFilter) ([]snapshot.Snapshot, int, error) {
	qb := NewQueryBuilder([]string{"method", "path", "status_code", "ts"})

	if f.Method != nil {
		_ = qb.Apply(Filter{Column: "method", Op: "eq", Value: *f.Method})
	}
	if f.Path != nil {
		_ = qb.Apply(Filter{Column: "path", Op: "startswith", Value: *f.Path})
	}
	if f.StatusCode != nil {
		_ = qb.Apply(Filter{Column: "status_code", Op: "eq", Value: *f.StatusCode})
	}
	if f.StartDate != nil {
		_ = qb.Apply(Filter{Column: "ts", Op: "gte", Value: *f.StartDate})
	}
	if f.EndDate != nil {
		_ = qb.Apply(Filter{Column: "ts", Op: "lte", Value: *f.EndDate})
	}
	qb.ExcludeDeleted()

	page := f.Page
	if page < 1 {
		page = 1
	}
	size := f.PageSize
	if size < 1 || size > 100 {
		size = 20
	}

	var out []snapshot.Snapshot
	var total int

	err := r.observe("snapshots.list", func() error {
		if err := r.pool.QueryRow(ctx,
			"SELECT count(*) FROM request_snapshots"+qb.Where(), qb.Args()...).Scan(&total); err != nil {
			return err
		}

		sql := "SELECT " + snapshotColumns + " FROM request_snapshots" + qb.Where() +
			" ORDER BY ts DESC LIMIT $" + strconv.Itoa(qb.ArgOffset()+1) + " OFFSET $" + strconv.Itoa(qb.ArgOffset()+2)

		args := append(qb.Args(), size, (page-1)*size)

		rows, err := r.pool.Query(ctx, sql, args...)

		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var s snapshot.Snapshot

			if err := scanSnapshot(rows, &s); err != nil {
				return err
			}
			out = append(out, s)
		}

		return rows.Err()
	})

	return out, total, err
}

func (r *SnapshotsRepo) SoftDelete(ctx context.Context, id int64) error {
	return r.observe("snapshots.soft_delete", func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE request_snapshots SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)

		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return snapshot.ErrNotFound
		}
		return nil
	})
}

func (r *SnapshotsRepo) HardDelete(ctx context.Context, id int64) error {
	return r.observe("snapshots.hard_delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM request_snapshots WHERE id = $1`, id)

		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return snapshot.ErrNotFound
		}
		return nil
	})
}

// PruneOlderThan hard-deletes snapshots past the retention window, at
// most limit rows per call. Used by the cleanup job.
func (r *SnapshotsRepo) PruneOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}

	var pruned int64

	err := r.observe("snapshots.prune", func() error {
		tag, err := r.pool.Exec(ctx, `
			DELETE FROM request_snapshots
			WHERE id IN (
				SELECT id FROM request_snapshots WHERE ts < $1 ORDER BY ts LIMIT $2
			)`, cutoff, limit)

		if err != nil {
			return err
		}

		pruned = tag.RowsAffected()
		return nil
	})

	return pruned, err
}

func (r *SnapshotsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func scanSnapshot(row pgx.Row, s *snapshot.Snapshot) error {
	var (
		geoSrc   string
		reqBody  []byte
		respBody []byte
	)

	err := row.Scan(
		&s.ID, &s.Method, &s.Path, &s.Query, &s.Headers, &reqBody, &s.BodyTruncated,
		&s.UserID, &s.Timestamp, &s.Version, &s.Stage,
		&s.StatusCode, &s.ResponseHeaders, &respBody, &s.ResponseTruncated, &s.DurationMs,
		&s.Geo.Country, &s.Geo.Region, &s.Geo.City, &s.Geo.Lat, &s.Geo.Lon, &geoSrc,
		&s.CreatedAt, &s.UpdatedAt, &s.DeletedAt,
	)

	s.Body = snapshot.Body(reqBody)
	s.ResponseBody = snapshot.Body(respBody)
	s.Geo.Source = snapshot.GeoSource(geoSrc)

	return err
}
