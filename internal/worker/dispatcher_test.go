package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/replayhub/internal/domain/job"
	"github.com/geocoder89/replayhub/internal/jobs"
	"github.com/geocoder89/replayhub/internal/queue"
)

type fakeQueue struct {
	mu         sync.Mutex
	pending    []job.Job
	enqueued   []job.Job
	acked      []string
	rejected   []string
	ackCtxErrs []error
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobType string, payload json.RawMessage, opts job.Options) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j := job.New(jobType, payload, opts)
	q.enqueued = append(q.enqueued, j)
	q.pending = append(q.pending, j)
	return j.ID, nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (*job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, nil
	}

	j := q.pending[0]
	q.pending = q.pending[1:]
	return &j, nil
}

func (q *fakeQueue) Acknowledge(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, id)
	q.ackCtxErrs = append(q.ackCtxErrs, ctx.Err())
	return nil
}

func (q *fakeQueue) Reject(ctx context.Context, id string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rejected = append(q.rejected, id)
	return nil
}

func (q *fakeQueue) Stats(ctx context.Context) (queue.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return queue.Stats{Depth: len(q.pending)}, nil
}

func testRegistry(t *testing.T, h jobs.Handler) *jobs.Registry {
	t.Helper()

	r := jobs.NewRegistry()
	if err := r.Register(jobs.Metadata{Type: jobs.JobHealthCheck}, h); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	return r
}

func TestRetryBackoff(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{30, 5 * time.Minute},
	}

	for _, tc := range cases {
		if got := RetryBackoff(tc.attempts); got != tc.want {
			t.Fatalf("RetryBackoff(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}
}

func TestProcess_SuccessAcks(t *testing.T) {
	q := &fakeQueue{}
	reg := testRegistry(t, func(ctx context.Context, payload json.RawMessage) error { return nil })
	d := NewDispatcher(Config{}, q, reg, slog.Default(), nil)

	j := job.New(string(jobs.JobHealthCheck), nil, job.Options{})
	d.process(context.Background(), j)

	if len(q.acked) != 1 || q.acked[0] != j.ID {
		t.Fatalf("expected ack of %s, got %v", j.ID, q.acked)
	}
	if len(q.enqueued) != 0 {
		t.Fatalf("expected no retry, got %d", len(q.enqueued))
	}
}

func TestProcess_AckSurvivesCancelledContext(t *testing.T) {
	q := &fakeQueue{}
	reg := testRegistry(t, func(ctx context.Context, payload json.RawMessage) error { return nil })
	d := NewDispatcher(Config{}, q, reg, slog.Default(), nil)

	// a job finishing inside the shutdown grace acks after the run
	// context is already cancelled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	j := job.New(string(jobs.JobHealthCheck), nil, job.Options{})
	d.process(ctx, j)

	if len(q.acked) != 1 {
		t.Fatalf("expected 1 ack, got %v", q.acked)
	}
	if len(q.ackCtxErrs) != 1 || q.ackCtxErrs[0] != nil {
		t.Fatalf("ack ran on a cancelled context: %v", q.ackCtxErrs)
	}
}

func TestProcess_FailureSchedulesBackoffRetry(t *testing.T) {
	q := &fakeQueue{}
	reg := testRegistry(t, func(ctx context.Context, payload json.RawMessage) error {
		return errors.New("boom")
	})
	d := NewDispatcher(Config{}, q, reg, slog.Default(), nil)

	j := job.New(string(jobs.JobHealthCheck), nil, job.Options{MaxAttempts: 5})
	j.Attempts = 2

	before := time.Now().UTC()
	d.process(context.Background(), j)

	if len(q.enqueued) != 1 {
		t.Fatalf("expected one retry enqueue, got %d", len(q.enqueued))
	}

	retry := q.enqueued[0]
	if retry.Attempts != 3 {
		t.Fatalf("expected attempts 3, got %d", retry.Attempts)
	}
	if retry.MaxAttempts != 5 {
		t.Fatalf("expected maxAttempts carried over, got %d", retry.MaxAttempts)
	}
	if retry.ID == j.ID {
		t.Fatalf("retry must be a new job record")
	}

	// 2^2 = 4s backoff
	wantAt := before.Add(4 * time.Second)
	if retry.ScheduledFor == nil {
		t.Fatalf("expected scheduledFor on retry")
	}
	if diff := retry.ScheduledFor.Sub(wantAt); diff < -time.Second || diff > time.Second {
		t.Fatalf("retry scheduled at %v, want ~%v", retry.ScheduledFor, wantAt)
	}

	// original is acked so the queue does not re-surface it
	if len(q.acked) != 1 || q.acked[0] != j.ID {
		t.Fatalf("expected original acked, got %v", q.acked)
	}
}

func TestProcess_ExhaustedAcksWithoutRetry(t *testing.T) {
	q := &fakeQueue{}
	reg := testRegistry(t, func(ctx context.Context, payload json.RawMessage) error {
		return errors.New("boom")
	})
	d := NewDispatcher(Config{}, q, reg, slog.Default(), nil)

	j := job.New(string(jobs.JobHealthCheck), nil, job.Options{MaxAttempts: 3})
	j.Attempts = 2

	d.process(context.Background(), j)

	if len(q.enqueued) != 0 {
		t.Fatalf("expected no retry after exhaustion, got %d", len(q.enqueued))
	}
	if len(q.acked) != 1 {
		t.Fatalf("expected ack, got %v", q.acked)
	}
}

func TestProcess_UnknownTypeIsPoison(t *testing.T) {
	q := &fakeQueue{}
	invoked := 0
	reg := testRegistry(t, func(ctx context.Context, payload json.RawMessage) error {
		invoked++
		return nil
	})
	d := NewDispatcher(Config{}, q, reg, slog.Default(), nil)

	j := job.New("no_such_type", nil, job.Options{})
	d.process(context.Background(), j)

	if invoked != 0 {
		t.Fatalf("handler must not run for unknown type")
	}
	if len(q.acked) != 1 {
		t.Fatalf("poison job must be acked, got %v", q.acked)
	}
}

func TestProcess_PanicBecomesFailure(t *testing.T) {
	q := &fakeQueue{}
	reg := testRegistry(t, func(ctx context.Context, payload json.RawMessage) error {
		panic("handler exploded")
	})
	d := NewDispatcher(Config{}, q, reg, slog.Default(), nil)

	j := job.New(string(jobs.JobHealthCheck), nil, job.Options{MaxAttempts: 2})
	d.process(context.Background(), j)

	// attempt 0 of 2 -> one retry scheduled, original acked
	if len(q.enqueued) != 1 {
		t.Fatalf("expected retry after panic, got %d", len(q.enqueued))
	}
	if len(q.acked) != 1 {
		t.Fatalf("expected ack after panic, got %v", q.acked)
	}
}

func TestRun_AlwaysFailingJobInvokedExactlyMaxAttempts(t *testing.T) {
	q := &fakeQueue{}

	var mu sync.Mutex
	invocations := 0

	reg := testRegistry(t, func(ctx context.Context, payload json.RawMessage) error {
		mu.Lock()
		invocations++
		mu.Unlock()
		return errors.New("always fails")
	})

	d := NewDispatcher(Config{PollInterval: 5 * time.Millisecond}, q, reg, slog.Default(), nil)

	if _, err := q.Enqueue(context.Background(), string(jobs.JobHealthCheck), nil, job.Options{MaxAttempts: 3}); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if invocations != 3 {
		t.Fatalf("expected exactly 3 invocations, got %d", invocations)
	}
}

func TestRun_SecondStartIsNoOp(t *testing.T) {
	q := &fakeQueue{}
	reg := testRegistry(t, func(ctx context.Context, payload json.RawMessage) error { return nil })
	d := NewDispatcher(Config{PollInterval: 5 * time.Millisecond}, q, reg, slog.Default(), nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()

	// give the first loop time to start
	time.Sleep(20 * time.Millisecond)

	if err := d.Run(ctx); err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}

	cancel()
	<-done
}
