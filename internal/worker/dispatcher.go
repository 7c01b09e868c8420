package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/geocoder89/replayhub/internal/domain/job"
	"github.com/geocoder89/replayhub/internal/jobs"
	"github.com/geocoder89/replayhub/internal/observability"
	"github.com/geocoder89/replayhub/internal/queue"
)

type Config struct {
	PollInterval  time.Duration
	ShutdownGrace time.Duration
}

// Dispatcher is the single logical consumer of a queue binding: pull one
// job, resolve its handler through the registry, run it, ack. Failed jobs
// are re-enqueued as fresh jobs with exponential backoff while attempts
// remain.
type Dispatcher struct {
	cfg      Config
	queue    queue.Queue
	registry *jobs.Registry
	log      *slog.Logger
	prom     *observability.Prom
	metrics  *observability.JobMetrics

	// onProcessed fires after every ack; lambda mode hooks the stats
	// push here since there is no ticker in a frozen container.
	onProcessed func(ctx context.Context)

	running atomic.Bool
}

func NewDispatcher(cfg Config, q queue.Queue, registry *jobs.Registry, log *slog.Logger, prom *observability.Prom) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}

	return &Dispatcher{
		cfg:      cfg,
		queue:    q,
		registry: registry,
		log:      log,
		prom:     prom,
		metrics:  observability.NewJobMetrics(),
	}
}

// Metrics exposes per-process job counters for introspection.
func (d *Dispatcher) Metrics() observability.JobMetricsSnapShot {
	return d.metrics.Snapshot()
}

func (d *Dispatcher) OnProcessed(fn func(ctx context.Context)) {
	d.onProcessed = fn
}

// Run polls until ctx is cancelled. Starting a second loop on the same
// dispatcher is a no-op with a warning.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		d.log.Warn("dispatcher already running, ignoring second start")
		return nil
	}
	defer d.running.Store(false)

	d.log.Info("dispatcher started", "poll_interval", d.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher received shutdown signal")
			return nil
		default:
		}

		j, err := d.queue.Dequeue(ctx)

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.log.Error("dequeue failed", "err", err)
		}

		if j != nil {
			d.dispatch(ctx, *j)
			continue
		}

		select {
		case <-ctx.Done():
			d.log.Info("dispatcher received shutdown signal")
			return nil
		case <-time.After(d.cfg.PollInterval):
		}
	}
}

// dispatch runs one job, bounding the wait for the handler once shutdown
// begins. If the grace period lapses the broker's visibility timeout
// returns the message to the queue.
func (d *Dispatcher) dispatch(ctx context.Context, j job.Job) {
	done := make(chan struct{})

	go func() {
		defer close(done)
		d.process(ctx, j)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	select {
	case <-done:
	case <-time.After(d.cfg.ShutdownGrace):
		d.log.Error("handler exceeded shutdown grace, abandoning job", "job_id", j.ID, "job_type", j.Type)
	}
}

func (d *Dispatcher) process(ctx context.Context, j job.Job) {
	log := d.log.With("job_id", j.ID, "job_type", j.Type, "attempts", j.Attempts)

	d.metrics.IncClaimed()

	// A job that already burned its attempts is a leftover; drop it.
	if j.Attempts >= j.MaxAttempts {
		log.Warn("job has no attempts left, dropping")
		d.metrics.IncDeadLettered()
		d.ack(ctx, j.ID)
		return
	}

	_, handler, err := d.registry.Lookup(jobs.JobType(j.Type))

	if err != nil {
		// poison: an unknown type cannot succeed on retry either
		log.Error("no handler registered, dropping job")
		d.metrics.IncDeadLettered()
		d.ack(ctx, j.ID)
		return
	}

	start := time.Now()
	if d.prom != nil {
		d.prom.JobsInFlight.Inc()
	}

	err = d.invoke(ctx, handler, j)

	if d.prom != nil {
		d.prom.JobsInFlight.Dec()
	}

	d.metrics.ObserveDuration(time.Since(start))

	if err == nil {
		d.metrics.IncDone()
		if d.prom != nil {
			d.prom.JobResults.WithLabelValues(j.Type, "done").Inc()
			d.prom.JobDuration.WithLabelValues(j.Type, "done").Observe(time.Since(start).Seconds())
		}
		d.ack(ctx, j.ID)
		return
	}

	if j.Attempts+1 < j.MaxAttempts {
		delay := RetryBackoff(j.Attempts)

		retry := j.Retry(delay)

		_, enqErr := d.queue.Enqueue(ctx, retry.Type, retry.Payload, job.Options{
			MaxAttempts:  retry.MaxAttempts,
			ScheduledFor: retry.ScheduledFor,
		})

		if enqErr != nil {
			// Could not schedule the retry; reject so the broker can
			// resurface the original after its visibility timeout.
			log.Error("retry enqueue failed", "err", enqErr)
			_ = d.queue.Reject(ctx, j.ID, enqErr)
			return
		}

		d.metrics.IncRetried()
		if d.prom != nil {
			d.prom.JobResults.WithLabelValues(j.Type, "retry").Inc()
			d.prom.JobDuration.WithLabelValues(j.Type, "retry").Observe(time.Since(start).Seconds())
		}

		log.Warn("job failed, retry scheduled", "err", err, "delay", delay)

		// ack the original so the queue does not re-surface it
		d.ack(ctx, j.ID)
		return
	}

	d.metrics.IncFailed()
	if d.prom != nil {
		d.prom.JobResults.WithLabelValues(j.Type, "failed").Inc()
		d.prom.JobDuration.WithLabelValues(j.Type, "failed").Observe(time.Since(start).Seconds())
	}

	log.Error("job failed, attempts exhausted", "err", err)
	d.ack(ctx, j.ID)
}

// invoke shields the dispatcher from handler panics; they become errors
// that feed the retry policy instead of killing the loop.
func (d *Dispatcher) invoke(ctx context.Context, handler jobs.Handler, j job.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return handler(ctx, j.Payload)
}

// ack must survive shutdown: a job finishing inside the grace period
// arrives here with the run context already cancelled, and a failed
// broker delete would redeliver work that completed.
func (d *Dispatcher) ack(ctx context.Context, id string) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := d.queue.Acknowledge(ackCtx, id); err != nil {
		d.log.Error("ack failed", "job_id", id, "err", err)
	}

	if d.onProcessed != nil {
		d.onProcessed(ackCtx)
	}
}
