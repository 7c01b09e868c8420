package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/replayhub/internal/observability"
)

var ErrUnknownTable = errors.New("unknown table")
var ErrRowNotFound = errors.New("row not found")
var ErrNoWritableFields = errors.New("no writable fields in payload")

// TableDef describes one admin-manageable table: which columns filters
// may reference, which columns clients may write, and which text columns
// feed the row embedding.
type TableDef struct {
	Name          string
	FilterColumns []string
	WriteColumns  []string
	EmbedColumns  []string
}

// AdminTables is the closed set of tables the generic CRUD surface
// exposes. Snapshots have their own repo; users never expose hashes.
var AdminTables = []TableDef{
	{
		Name:          "logs",
		FilterColumns: []string{"id", "level", "message", "source", "created_at", "updated_at", "deleted_at"},
		WriteColumns:  []string{"level", "message", "source", "attributes"},
		EmbedColumns:  []string{"level", "message", "source"},
	},
	{
		Name:          "metrics",
		FilterColumns: []string{"id", "name", "value", "created_at", "updated_at", "deleted_at"},
		WriteColumns:  []string{"name", "value", "tags"},
		EmbedColumns:  []string{"name"},
	},
	{
		Name:          "users",
		FilterColumns: []string{"id", "email", "name", "role", "created_at", "updated_at", "deleted_at"},
		WriteColumns:  []string{"email", "name", "role"},
		EmbedColumns:  []string{"email", "name"},
	},
}

type TablesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
	defs map[string]TableDef
}

func NewTablesRepo(pool *pgxpool.Pool, prom *observability.Prom) *TablesRepo {
	defs := make(map[string]TableDef, len(AdminTables))

	for _, d := range AdminTables {
		defs[d.Name] = d
	}

	return &TablesRepo{pool: pool, prom: prom, defs: defs}
}

func (r *TablesRepo) def(table string) (TableDef, error) {
	d, ok := r.defs[table]

	if !ok {
		return TableDef{}, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return d, nil
}

// Tables lists the exposed table names, sorted.
func (r *TablesRepo) Tables() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *TablesRepo) Def(table string) (TableDef, error) {
	return r.def(table)
}

type ListResult struct {
	Rows  []map[string]any
	Total int
}

func (r *TablesRepo) List(ctx context.Context, table string, filters []Filter, limit, offset int, includeDeleted bool) (ListResult, error) {
	d, err := r.def(table)

	if err != nil {
		return ListResult{}, err
	}

	qb := NewQueryBuilder(d.FilterColumns)

	for _, f := range filters {
		if err := qb.Apply(f); err != nil {
			return ListResult{}, err
		}
	}

	if !includeDeleted {
		qb.ExcludeDeleted()
	}

	var res ListResult

	err = r.observe("tables.list", func() error {
		countSQL := "SELECT count(*) FROM " + d.Name + qb.Where()

		if err := r.pool.QueryRow(ctx, countSQL, qb.Args()...).Scan(&res.Total); err != nil {
			return err
		}

		sql := fmt.Sprintf("SELECT * FROM %s%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
			d.Name, qb.Where(), qb.ArgOffset()+1, qb.ArgOffset()+2)

		args := append(qb.Args(), limit, offset)

		rows, err := r.pool.Query(ctx, sql, args...)

		if err != nil {
			return err
		}
		defer rows.Close()

		res.Rows, err = collectRows(rows, d)
		return err
	})

	return res, err
}

func (r *TablesRepo) Get(ctx context.Context, table string, id string) (map[string]any, error) {
	d, err := r.def(table)

	if err != nil {
		return nil, err
	}

	var row map[string]any

	err = r.observe("tables.get", func() error {
		rows, err := r.pool.Query(ctx, "SELECT * FROM "+d.Name+" WHERE id::text = $1 AND deleted_at IS NULL", id)

		if err != nil {
			return err
		}
		defer rows.Close()

		collected, err := collectRows(rows, d)

		if err != nil {
			return err
		}
		if len(collected) == 0 {
			return ErrRowNotFound
		}

		row = collected[0]
		return nil
	})

	return row, err
}

func (r *TablesRepo) Create(ctx context.Context, table string, fields map[string]any) (map[string]any, error) {
	d, err := r.def(table)

	if err != nil {
		return nil, err
	}

	cols, args := writable(d, fields)

	if len(cols) == 0 {
		return nil, ErrNoWritableFields
	}

	cols = append(cols, "embedding")
	args = append(args, Embed(embedText(d, fields)))

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		d.Name, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	var row map[string]any

	err = r.observe("tables.create", func() error {
		rows, err := r.pool.Query(ctx, sql, args...)

		if err != nil {
			return err
		}
		defer rows.Close()

		collected, err := collectRows(rows, d)

		if err != nil {
			return err
		}
		if len(collected) == 0 {
			return ErrRowNotFound
		}

		row = collected[0]
		return nil
	})

	return row, err
}

func (r *TablesRepo) Update(ctx context.Context, table string, id string, fields map[string]any) (map[string]any, error) {
	d, err := r.def(table)

	if err != nil {
		return nil, err
	}

	cols, args := writable(d, fields)

	if len(cols) == 0 {
		return nil, ErrNoWritableFields
	}

	sets := make([]string, 0, len(cols)+2)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+1))
	}

	// any change to an embedded column invalidates the old vector
	if touchesEmbedColumns(d, fields) {
		args = append(args, Embed(embedText(d, fields)))
		sets = append(sets, fmt.Sprintf("embedding = $%d", len(args)))
	}

	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	args = append(args, id)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id::text = $%d AND deleted_at IS NULL RETURNING *",
		d.Name, strings.Join(sets, ", "), len(args))

	var row map[string]any

	err = r.observe("tables.update", func() error {
		rows, err := r.pool.Query(ctx, sql, args...)

		if err != nil {
			return err
		}
		defer rows.Close()

		collected, err := collectRows(rows, d)

		if err != nil {
			return err
		}
		if len(collected) == 0 {
			return ErrRowNotFound
		}

		row = collected[0]
		return nil
	})

	return row, err
}

func (r *TablesRepo) SoftDelete(ctx context.Context, table string, id string) error {
	d, err := r.def(table)

	if err != nil {
		return err
	}

	return r.observe("tables.soft_delete", func() error {
		tag, err := r.pool.Exec(ctx,
			"UPDATE "+d.Name+" SET deleted_at = now() WHERE id::text = $1 AND deleted_at IS NULL", id)

		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrRowNotFound
		}
		return nil
	})
}

func (r *TablesRepo) HardDelete(ctx context.Context, table string, id string) error {
	d, err := r.def(table)

	if err != nil {
		return err
	}

	return r.observe("tables.hard_delete", func() error {
		tag, err := r.pool.Exec(ctx, "DELETE FROM "+d.Name+" WHERE id::text = $1", id)

		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrRowNotFound
		}
		return nil
	})
}

type ScoredRow struct {
	Row   map[string]any `json:"row"`
	Score float64        `json:"score"`
}

// SearchEmbedding ranks rows by cosine similarity to the query text.
// Ranking happens in process over a bounded candidate window.
func (r *TablesRepo) SearchEmbedding(ctx context.Context, table string, query string, limit int) ([]ScoredRow, error) {
	d, err := r.def(table)

	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 10
	}

	queryVec := Embed(query)

	var scored []ScoredRow

	err = r.observe("tables.search", func() error {
		rows, err := r.pool.Query(ctx,
			"SELECT * FROM "+d.Name+" WHERE embedding IS NOT NULL AND deleted_at IS NULL ORDER BY created_at DESC LIMIT 1000")

		if err != nil {
			return err
		}
		defer rows.Close()

		collected, err := collectRows(rows, d)

		if err != nil {
			return err
		}

		for _, row := range collected {
			vec := toFloat64Slice(row["embedding"])
			if vec == nil {
				continue
			}

			scored = append(scored, ScoredRow{Row: row, Score: Cosine(queryVec, vec)})
		}

		sort.SliceStable(scored, func(i, j int) bool {
			return scored[i].Score > scored[j].Score
		})

		if len(scored) > limit {
			scored = scored[:limit]
		}
		return nil
	})

	return scored, err
}

func (r *TablesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// hidden columns are stripped from results regardless of table
var hiddenColumns = map[string]struct{}{
	"password_hash": {},
}

func collectRows(rows pgx.Rows, d TableDef) ([]map[string]any, error) {
	out := []map[string]any{}

	fds := rows.FieldDescriptions()

	for rows.Next() {
		values, err := rows.Values()

		if err != nil {
			return nil, err
		}

		row := make(map[string]any, len(fds))

		for i, fd := range fds {
			if _, hidden := hiddenColumns[fd.Name]; hidden {
				continue
			}
			row[fd.Name] = normalizeValue(values[i])
		}

		out = append(out, row)
	}

	return out, rows.Err()
}

// normalizeValue flattens pgx array types so rows marshal cleanly.
func normalizeValue(v any) any {
	switch vals := v.(type) {
	case []any:
		return vals
	case []float64:
		return vals
	default:
		return v
	}
}

// toFloat64Slice tolerates both decodings pgx may produce for float8[].
func toFloat64Slice(v any) []float64 {
	switch vals := v.(type) {
	case []float64:
		return vals
	case []any:
		out := make([]float64, 0, len(vals))
		for _, raw := range vals {
			f, ok := raw.(float64)
			if !ok {
				return nil
			}
			out = append(out, f)
		}
		return out
	default:
		return nil
	}
}

func writable(d TableDef, fields map[string]any) (cols []string, args []any) {
	for _, c := range d.WriteColumns {
		if v, ok := fields[c]; ok {
			cols = append(cols, c)
			args = append(args, v)
		}
	}
	return cols, args
}

func touchesEmbedColumns(d TableDef, fields map[string]any) bool {
	for _, c := range d.EmbedColumns {
		if _, ok := fields[c]; ok {
			return true
		}
	}
	return false
}

func embedText(d TableDef, fields map[string]any) string {
	parts := make([]string, 0, len(d.EmbedColumns))

	for _, c := range d.EmbedColumns {
		if v, ok := fields[c]; ok {
			parts = append(parts, fmt.Sprintf("%v", v))
		}
	}

	return strings.Join(parts, " ")
}
