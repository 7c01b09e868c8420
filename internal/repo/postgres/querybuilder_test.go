package postgres

import (
	"errors"
	"testing"
)

func TestParseFilterKey(t *testing.T) {
	cases := []struct {
		key    string
		column string
		op     string
	}{
		{"level", "level", "eq"},
		{"created_at__gte", "created_at", "gte"},
		{"path__startswith", "path", "startswith"},
		{"deleted_at__isnull", "deleted_at", "isnull"},
	}

	for _, tc := range cases {
		column, op, err := ParseFilterKey(tc.key)
		if err != nil {
			t.Fatalf("ParseFilterKey(%q) error = %v", tc.key, err)
		}
		if column != tc.column || op != tc.op {
			t.Errorf("ParseFilterKey(%q) = (%q, %q), want (%q, %q)", tc.key, column, op, tc.column, tc.op)
		}
	}
}

func TestParseFilterKeyRejectsUnknownOperator(t *testing.T) {
	if _, _, err := ParseFilterKey("level__regex"); !errors.Is(err, ErrUnknownOperator) {
		t.Fatalf("expected ErrUnknownOperator, got %v", err)
	}
}

func TestQueryBuilderRendersClauses(t *testing.T) {
	qb := NewQueryBuilder([]string{"level", "created_at"})

	if err := qb.Apply(Filter{Column: "level", Op: "eq", Value: "error"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := qb.Apply(Filter{Column: "created_at", Op: "gte", Value: "2026-01-01"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	qb.ExcludeDeleted()

	want := " WHERE level = $1 AND created_at >= $2 AND deleted_at IS NULL"
	if got := qb.Where(); got != want {
		t.Errorf("Where() = %q, want %q", got, want)
	}
	if len(qb.Args()) != 2 {
		t.Errorf("Args() len = %d, want 2", len(qb.Args()))
	}
	if qb.ArgOffset() != 2 {
		t.Errorf("ArgOffset() = %d, want 2", qb.ArgOffset())
	}
}

func TestQueryBuilderRejectsUnknownColumn(t *testing.T) {
	qb := NewQueryBuilder([]string{"level"})

	err := qb.Apply(Filter{Column: "password_hash", Op: "eq", Value: "x"})
	if !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestQueryBuilderBetween(t *testing.T) {
	qb := NewQueryBuilder([]string{"value"})

	err := qb.Apply(Filter{Column: "value", Op: "between", Value: []string{"1", "10"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := " WHERE value BETWEEN $1 AND $2"
	if got := qb.Where(); got != want {
		t.Errorf("Where() = %q, want %q", got, want)
	}

	err = qb.Apply(Filter{Column: "value", Op: "between", Value: []string{"1"}})
	if !errors.Is(err, ErrBadFilterValue) {
		t.Fatalf("expected ErrBadFilterValue, got %v", err)
	}
}

func TestQueryBuilderEmptyWhere(t *testing.T) {
	qb := NewQueryBuilder(nil)

	if got := qb.Where(); got != "" {
		t.Errorf("Where() = %q, want empty", got)
	}
}
