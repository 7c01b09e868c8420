package scheduler

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// External reflects cron entries whose ticking is owned by a managed
// scheduler (EventBridge targeting the worker Lambda). Nothing fires
// locally; List returns the statically declared entries, not whatever
// the managed service currently holds.
type External struct {
	mu      sync.Mutex
	entries map[string]CronEntry
}

func NewExternal() *External {
	return &External{entries: make(map[string]CronEntry)}
}

func (s *External) Schedule(expr string, jobType string, payload json.RawMessage) (string, error) {
	if err := ValidateExpr(expr); err != nil {
		return "", err
	}

	id := uuid.NewString()

	s.mu.Lock()
	s.entries[id] = CronEntry{
		ID:             id,
		CronExpression: expr,
		JobType:        jobType,
		Payload:        payload,
		Enabled:        true,
	}
	s.mu.Unlock()

	return id, nil
}

func (s *External) Unschedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return ErrEntryNotFound
	}

	delete(s.entries, id)
	return nil
}

func (s *External) List() []CronEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CronEntry, 0, len(s.entries))

	for _, e := range s.entries {
		out = append(out, e)
	}

	return out
}

func (s *External) StopAll() {
	// no local tickers to stop
}

var _ Scheduler = (*External)(nil)
