package inproc

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/replayhub/internal/domain/job"
	"github.com/geocoder89/replayhub/internal/queue"
)

// Queue is the volatile in-process variant: an ordered pending list plus
// an in-flight set, all behind one mutex. Intentionally not durable
// across restarts; local mode runs a single worker instance.
type Queue struct {
	mu       sync.Mutex
	pending  []job.Job
	inflight map[string]job.Job

	log *slog.Logger
	now func() time.Time
}

func New(log *slog.Logger) *Queue {
	return &Queue{
		inflight: make(map[string]job.Job),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (q *Queue) Enqueue(ctx context.Context, jobType string, payload json.RawMessage, opts job.Options) (string, error) {
	j := job.New(jobType, payload, opts)

	q.push(j)

	return j.ID, nil
}

// push inserts immediate jobs in arrival order and future jobs sorted by
// ScheduledFor, so the dequeue scan sees earlier-scheduled work first.
func (q *Queue) push(j job.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if j.ScheduledFor == nil || !j.ScheduledFor.After(q.now()) {
		q.pending = append(q.pending, j)
		return
	}

	at := len(q.pending)

	for i, p := range q.pending {
		if p.ScheduledFor != nil && p.ScheduledFor.After(*j.ScheduledFor) {
			at = i
			break
		}
	}

	q.pending = append(q.pending, job.Job{})
	copy(q.pending[at+1:], q.pending[at:])
	q.pending[at] = j
}

func (q *Queue) Dequeue(ctx context.Context) (*job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()

	// O(n) scan on depth is fine for the intended local use.
	for i, j := range q.pending {
		if !j.Eligible(now) {
			continue
		}

		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		q.inflight[j.ID] = j

		out := j
		return &out, nil
	}

	return nil, nil
}

func (q *Queue) Acknowledge(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inflight, id)
	return nil
}

func (q *Queue) Reject(ctx context.Context, id string, cause error) error {
	q.mu.Lock()

	_, ok := q.inflight[id]
	delete(q.inflight, id)

	q.mu.Unlock()

	if ok && cause != nil && q.log != nil {
		q.log.Warn("job rejected", "job_id", id, "err", cause)
	}

	return nil
}

func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return queue.Stats{
		Depth:      len(q.pending),
		Processing: len(q.inflight),
	}, nil
}

// Pending returns a copy of the pending list for introspection.
func (q *Queue) Pending() []job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]job.Job, len(q.pending))
	copy(out, q.pending)
	return out
}

var _ queue.Queue = (*Queue)(nil)
