package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/geocoder89/replayhub/internal/domain/job"
	"github.com/geocoder89/replayhub/internal/queue"
)

// InProc runs a cron engine inside the worker process and enqueues a job
// on every fire. Entry table is mutex-guarded; the cron engine owns the
// tickers.
type InProc struct {
	cron  *cron.Cron
	queue queue.Queue
	log   *slog.Logger

	mu      sync.Mutex
	entries map[string]inprocEntry
}

type inprocEntry struct {
	cronID cron.EntryID
	entry  CronEntry
}

func NewInProc(q queue.Queue, log *slog.Logger) *InProc {
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
	)
	c.Start()

	return &InProc{
		cron:    c,
		queue:   q,
		log:     log,
		entries: make(map[string]inprocEntry),
	}
}

func (s *InProc) Schedule(expr string, jobType string, payload json.RawMessage) (string, error) {
	if err := ValidateExpr(expr); err != nil {
		return "", err
	}

	id := uuid.NewString()

	cronID, err := s.cron.AddFunc(expr, func() {
		s.fire(id, jobType, payload)
	})

	if err != nil {
		return "", ErrInvalidCronExpr
	}

	s.mu.Lock()
	s.entries[id] = inprocEntry{
		cronID: cronID,
		entry: CronEntry{
			ID:             id,
			CronExpression: expr,
			JobType:        jobType,
			Payload:        payload,
			Enabled:        true,
		},
	}
	s.mu.Unlock()

	return id, nil
}

// fire errors are logged and skipped; the next tick proceeds regardless.
func (s *InProc) fire(id string, jobType string, payload json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	jobID, err := s.queue.Enqueue(ctx, jobType, payload, job.Options{})

	if err != nil {
		s.log.Error("cron fire enqueue failed", "entry_id", id, "job_type", jobType, "err", err)
		return
	}

	s.log.Debug("cron fired", "entry_id", id, "job_type", jobType, "job_id", jobID)
}

func (s *InProc) Unschedule(id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if !ok {
		return ErrEntryNotFound
	}

	s.cron.Remove(e.cronID)
	return nil
}

func (s *InProc) List() []CronEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CronEntry, 0, len(s.entries))

	for _, e := range s.entries {
		out = append(out, e.entry)
	}

	return out
}

func (s *InProc) StopAll() {
	stopCtx := s.cron.Stop()

	// wait for any in-flight fire callbacks
	<-stopCtx.Done()

	s.mu.Lock()
	s.entries = make(map[string]inprocEntry)
	s.mu.Unlock()
}

var _ Scheduler = (*InProc)(nil)
