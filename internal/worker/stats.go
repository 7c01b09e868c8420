package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/replayhub/internal/jobs"
	"github.com/geocoder89/replayhub/internal/queue"
	"github.com/geocoder89/replayhub/internal/scheduler"
)

// StatsRow is the single heartbeat row this worker upserts. One row per
// worker identity; readers treat LastHeartbeat older than 300s as stale.
type StatsRow struct {
	ID                 string                `json:"id"`
	WorkerMode         string                `json:"workerMode"`
	QueueSize          int                   `json:"queueSize"`
	ProcessingCount    int                   `json:"processingCount"`
	ScheduledJobsCount int                   `json:"scheduledJobsCount"`
	AvailableJobsCount int                   `json:"availableJobsCount"`
	ScheduledJobs      []scheduler.CronEntry `json:"scheduledJobs"`
	AvailableJobs      []jobs.Metadata       `json:"availableJobs"`
	LastHeartbeat      time.Time             `json:"lastHeartbeat"`
}

type StatsRepo interface {
	Upsert(ctx context.Context, row StatsRow) error
}

// StatsPublisher snapshots queue and scheduler state and upserts it into
// worker_stats. Local mode runs the interval loop; lambda mode calls
// Push per processed event instead, because the container is frozen
// between invocations.
type StatsPublisher struct {
	repo     StatsRepo
	queue    queue.Queue
	sched    scheduler.Scheduler
	registry *jobs.Registry
	mode     string
	interval time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	lastBeat time.Time
	latest   StatsRow
}

func NewStatsPublisher(repo StatsRepo, q queue.Queue, sched scheduler.Scheduler, registry *jobs.Registry, mode string, interval time.Duration, log *slog.Logger) *StatsPublisher {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &StatsPublisher{
		repo:     repo,
		queue:    q,
		sched:    sched,
		registry: registry,
		mode:     mode,
		interval: interval,
		log:      log,
	}
}

func (p *StatsPublisher) Run(ctx context.Context) error {
	// push once at startup so the health endpoint sees us immediately
	p.Push(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Push(ctx)
		}
	}
}

// Push computes the current snapshot and upserts it. LastHeartbeat is
// strictly monotonic per worker even if the wall clock stalls.
func (p *StatsPublisher) Push(ctx context.Context) {
	qstats, err := p.queue.Stats(ctx)

	if err != nil {
		p.log.Error("queue stats failed", "err", err)
	}

	scheduled := p.sched.List()
	available := p.registry.List()

	p.mu.Lock()

	beat := time.Now().UTC()
	if !beat.After(p.lastBeat) {
		beat = p.lastBeat.Add(time.Nanosecond)
	}
	p.lastBeat = beat

	row := StatsRow{
		ID:                 p.mode,
		WorkerMode:         p.mode,
		QueueSize:          qstats.Depth,
		ProcessingCount:    qstats.Processing,
		ScheduledJobsCount: len(scheduled),
		AvailableJobsCount: len(available),
		ScheduledJobs:      scheduled,
		AvailableJobs:      available,
		LastHeartbeat:      beat,
	}
	p.latest = row

	p.mu.Unlock()

	upsertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := p.repo.Upsert(upsertCtx, row); err != nil {
		p.log.Error("worker stats upsert failed", "err", err)
	}
}

// Latest returns the most recently pushed row for introspection.
func (p *StatsPublisher) Latest() StatsRow {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}
