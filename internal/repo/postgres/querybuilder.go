package postgres

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownOperator = errors.New("unknown filter operator")
var ErrUnknownColumn = errors.New("unknown filter column")
var ErrBadFilterValue = errors.New("bad filter value")

// operators maps the filter suffix to a SQL fragment builder. The set is
// closed; anything else is rejected before it reaches the database.
var operators = map[string]struct{}{
	"eq": {}, "ne": {}, "gt": {}, "gte": {}, "lt": {}, "lte": {},
	"like": {}, "ilike": {}, "startswith": {}, "endswith": {},
	"isnull": {}, "isnotnull": {},
	"in": {}, "notin": {}, "between": {},
	"arraycontains": {}, "arraycontained": {}, "arrayoverlaps": {},
}

// Filter is one parsed `column__op=value` query parameter.
type Filter struct {
	Column string
	Op     string
	Value  any
}

// ParseFilterKey splits `created_at__gte` into column and operator.
// A bare key means equality.
func ParseFilterKey(key string) (column, op string, err error) {
	column, op, found := strings.Cut(key, "__")

	if !found {
		return key, "eq", nil
	}

	if _, ok := operators[op]; !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}

	return column, op, nil
}

// QueryBuilder accumulates WHERE clauses with positional args. Columns
// are validated against an allow list so user input never reaches SQL
// as an identifier.
type QueryBuilder struct {
	columns map[string]struct{}

	clauses []string
	args    []any
}

func NewQueryBuilder(allowedColumns []string) *QueryBuilder {
	cols := make(map[string]struct{}, len(allowedColumns))

	for _, c := range allowedColumns {
		cols[c] = struct{}{}
	}

	return &QueryBuilder{columns: cols}
}

func (qb *QueryBuilder) next() string {
	return fmt.Sprintf("$%d", len(qb.args)+1)
}

func (qb *QueryBuilder) Apply(f Filter) error {
	if _, ok := qb.columns[f.Column]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, f.Column)
	}

	col := f.Column

	switch f.Op {
	case "eq":
		qb.clause(col+" = "+qb.next(), f.Value)
	case "ne":
		qb.clause(col+" <> "+qb.next(), f.Value)
	case "gt":
		qb.clause(col+" > "+qb.next(), f.Value)
	case "gte":
		qb.clause(col+" >= "+qb.next(), f.Value)
	case "lt":
		qb.clause(col+" < "+qb.next(), f.Value)
	case "lte":
		qb.clause(col+" <= "+qb.next(), f.Value)
	case "like":
		qb.clause(col+" LIKE "+qb.next(), f.Value)
	case "ilike":
		qb.clause(col+" ILIKE "+qb.next(), f.Value)
	case "startswith":
		qb.clause(col+" LIKE "+qb.next(), fmt.Sprintf("%v%%", f.Value))
	case "endswith":
		qb.clause(col+" LIKE "+qb.next(), fmt.Sprintf("%%%v", f.Value))
	case "isnull":
		qb.clauses = append(qb.clauses, col+" IS NULL")
	case "isnotnull":
		qb.clauses = append(qb.clauses, col+" IS NOT NULL")
	case "in":
		qb.clause(col+" = ANY("+qb.next()+")", toSlice(f.Value))
	case "notin":
		qb.clause("NOT ("+col+" = ANY("+qb.next()+"))", toSlice(f.Value))
	case "between":
		vals := toSlice(f.Value)
		if len(vals) != 2 {
			return fmt.Errorf("%w: between needs exactly two values", ErrBadFilterValue)
		}
		lo := qb.next()
		qb.args = append(qb.args, vals[0])
		hi := qb.next()
		qb.args = append(qb.args, vals[1])
		qb.clauses = append(qb.clauses, col+" BETWEEN "+lo+" AND "+hi)
	case "arraycontains":
		qb.clause(col+" @> "+qb.next(), toSlice(f.Value))
	case "arraycontained":
		qb.clause(col+" <@ "+qb.next(), toSlice(f.Value))
	case "arrayoverlaps":
		qb.clause(col+" && "+qb.next(), toSlice(f.Value))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperator, f.Op)
	}

	return nil
}

func (qb *QueryBuilder) clause(sql string, arg any) {
	qb.clauses = append(qb.clauses, sql)
	qb.args = append(qb.args, arg)
}

// ExcludeDeleted appends the soft-delete guard.
func (qb *QueryBuilder) ExcludeDeleted() {
	qb.clauses = append(qb.clauses, "deleted_at IS NULL")
}

// Where renders the accumulated clauses, or "" when none apply.
func (qb *QueryBuilder) Where() string {
	if len(qb.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(qb.clauses, " AND ")
}

func (qb *QueryBuilder) Args() []any {
	return qb.args
}

// ArgOffset is the next positional placeholder index, for callers that
// append LIMIT/OFFSET args after the filters.
func (qb *QueryBuilder) ArgOffset() int {
	return len(qb.args)
}

func toSlice(v any) []any {
	switch vals := v.(type) {
	case []any:
		return vals
	case []string:
		out := make([]any, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}
