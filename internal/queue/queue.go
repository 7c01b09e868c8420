package queue

import (
	"context"
	"encoding/json"

	"github.com/geocoder89/replayhub/internal/domain/job"
)

// Queue is the pluggable job transport. Two implementations exist: the
// in-process queue used in local mode and the SQS-backed queue used when
// the worker is driven by the managed dispatcher.
//
// Delivery is at-least-once. The dispatcher owns an in-flight job until
// it calls Acknowledge or Reject.
type Queue interface {
	// Enqueue constructs a fresh job and makes it pending. Never blocks
	// on handler work.
	Enqueue(ctx context.Context, jobType string, payload json.RawMessage, opts job.Options) (string, error)

	// Dequeue returns the earliest eligible pending job and marks it
	// in-flight, or (nil, nil) when none is eligible.
	Dequeue(ctx context.Context) (*job.Job, error)

	// Acknowledge removes a job from the in-flight set. Idempotent.
	Acknowledge(ctx context.Context, id string) error

	// Reject removes a job from the in-flight set without re-enqueueing.
	// Retry policy lives in the dispatcher, not here.
	Reject(ctx context.Context, id string, cause error) error

	// Stats reports queue depth and in-flight count.
	Stats(ctx context.Context) (Stats, error)
}

type Stats struct {
	Depth      int `json:"depth"`
	Processing int `json:"processing"`
}
