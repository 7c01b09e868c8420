package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/geocoder89/replayhub/internal/domain/job"
)

// Handler executes one job. Errors drive the dispatcher's retry policy;
// handlers are expected to be idempotent (delivery is at-least-once).
type Handler func(ctx context.Context, payload json.RawMessage) error

// Metadata describes a registered handler for introspection endpoints.
type Metadata struct {
	Type           JobType     `json:"type"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Category       string      `json:"category,omitempty"`
	DefaultOptions job.Options `json:"-"`
}

type registration struct {
	meta    Metadata
	handler Handler
}

// Registry maps job-type tags to handlers. Constructed at startup and
// treated as read-mostly afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[JobType]registration
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[JobType]registration),
	}
}

func (r *Registry) Register(meta Metadata, h Handler) error {
	if !meta.Type.IsValid() {
		return ErrInvalidJobType
	}
	if h == nil {
		return ErrInvalidJobPayload
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[meta.Type]; exists {
		return ErrAlreadyRegistered
	}

	r.entries[meta.Type] = registration{meta: meta, handler: h}
	return nil
}

func (r *Registry) Lookup(t JobType) (Metadata, Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[t]

	if !ok {
		return Metadata{}, nil, ErrNotRegistered
	}

	return reg.meta, reg.handler, nil
}

// List returns metadata for every registered type, sorted for stable
// introspection output.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Metadata, 0, len(r.entries))

	for _, reg := range r.entries {
		out = append(out, reg.meta)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })

	return out
}
