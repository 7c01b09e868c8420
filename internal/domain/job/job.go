package job

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrUnknownType = errors.New("unknown job type")
)

const DefaultMaxAttempts = 3

// a Job is one unit of asynchronous work handed to the worker.
// Immutable once enqueued; a retry produces a fresh Job with attempts+1.

type Job struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"maxAttempts"`
	CreatedAt    time.Time       `json:"createdAt"`
	ScheduledFor *time.Time      `json:"scheduledFor,omitempty"`

	// ReceiptHandle carries the broker's receipt token so ack can delete
	// the underlying message. Unset on the in-process queue.
	ReceiptHandle string `json:"-"`
}

// Options tunes a single enqueue. Zero values mean defaults.
// ScheduledFor wins when both Delay and ScheduledFor are set.
type Options struct {
	MaxAttempts  int
	Delay        time.Duration
	ScheduledFor *time.Time
}

func New(jobType string, payload json.RawMessage, opts Options) Job {
	now := time.Now().UTC()

	maxA := opts.MaxAttempts

	if maxA <= 0 {
		maxA = DefaultMaxAttempts
	}

	scheduledFor := opts.ScheduledFor

	if scheduledFor == nil && opts.Delay > 0 {
		at := now.Add(opts.Delay)
		scheduledFor = &at
	}

	return Job{
		ID:           uuid.NewString(),
		Type:         jobType,
		Payload:      payload,
		Attempts:     0,
		MaxAttempts:  maxA,
		CreatedAt:    now,
		ScheduledFor: scheduledFor,
	}
}

// Retry builds the follow-up job for a failed attempt. Attempts carries
// over incremented; the delay pushes ScheduledFor into the future.
func (j Job) Retry(delay time.Duration) Job {
	now := time.Now().UTC()
	at := now.Add(delay)

	return Job{
		ID:           uuid.NewString(),
		Type:         j.Type,
		Payload:      j.Payload,
		Attempts:     j.Attempts + 1,
		MaxAttempts:  j.MaxAttempts,
		CreatedAt:    now,
		ScheduledFor: &at,
	}
}

// Eligible reports whether the job may be dequeued at the given instant.
func (j Job) Eligible(now time.Time) bool {
	return j.ScheduledFor == nil || !j.ScheduledFor.After(now)
}
