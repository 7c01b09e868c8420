package jobs

import (
	"context"
	"encoding/json"
	"testing"
)

func noopHandler(ctx context.Context, payload json.RawMessage) error {
	return nil
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	err := r.Register(Metadata{Type: JobHealthCheck, Name: "Health check"}, noopHandler)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	meta, h, err := r.Lookup(JobHealthCheck)
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if h == nil {
		t.Fatalf("expected handler")
	}
	if meta.Name != "Health check" {
		t.Fatalf("expected metadata name, got %q", meta.Name)
	}
}

func TestRegistry_DoubleRegister(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Metadata{Type: JobHealthCheck}, noopHandler); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	err := r.Register(Metadata{Type: JobHealthCheck}, noopHandler)
	if err != ErrAlreadyRegistered {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := NewRegistry()

	_, _, err := r.Lookup(JobMetricsRollup)
	if err != ErrNotRegistered {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry()

	for _, typ := range []JobType{JobMetricsRollup, JobCleanupSnapshots, JobHealthCheck} {
		if err := r.Register(Metadata{Type: typ}, noopHandler); err != nil {
			t.Fatalf("Register(%s) error: %v", typ, err)
		}
	}

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(list))
	}

	for i := 1; i < len(list); i++ {
		if list[i-1].Type >= list[i].Type {
			t.Fatalf("list not sorted: %v", list)
		}
	}
}
