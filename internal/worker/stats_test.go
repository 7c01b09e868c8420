package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/replayhub/internal/domain/job"
	"github.com/geocoder89/replayhub/internal/jobs"
	"github.com/geocoder89/replayhub/internal/scheduler"
)

func noop(ctx context.Context, payload json.RawMessage) error { return nil }

func jobOptions() job.Options { return job.Options{} }

type recordingStatsRepo struct {
	mu   sync.Mutex
	rows []StatsRow
}

func (r *recordingStatsRepo) Upsert(ctx context.Context, row StatsRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
	return nil
}

func TestPush_HeartbeatStrictlyMonotonic(t *testing.T) {
	repo := &recordingStatsRepo{}
	q := &fakeQueue{}
	sched := scheduler.NewExternal()
	reg := jobs.NewRegistry()

	p := NewStatsPublisher(repo, q, sched, reg, "local", time.Second, slog.Default())

	for i := 0; i < 5; i++ {
		p.Push(context.Background())
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()

	if len(repo.rows) != 5 {
		t.Fatalf("expected 5 upserts, got %d", len(repo.rows))
	}

	for i := 1; i < len(repo.rows); i++ {
		if !repo.rows[i].LastHeartbeat.After(repo.rows[i-1].LastHeartbeat) {
			t.Fatalf("heartbeat not strictly increasing at %d: %v vs %v",
				i, repo.rows[i-1].LastHeartbeat, repo.rows[i].LastHeartbeat)
		}
	}
}

func TestPush_SnapshotsQueueAndScheduler(t *testing.T) {
	repo := &recordingStatsRepo{}
	q := &fakeQueue{}
	sched := scheduler.NewExternal()
	reg := jobs.NewRegistry()

	if err := reg.Register(jobs.Metadata{Type: jobs.JobHealthCheck, Name: "Health check"}, noop); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := sched.Schedule("* * * * *", string(jobs.JobHealthCheck), nil); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if _, err := q.Enqueue(context.Background(), string(jobs.JobHealthCheck), nil, jobOptions()); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	p := NewStatsPublisher(repo, q, sched, reg, "local", time.Second, slog.Default())
	p.Push(context.Background())

	row := p.Latest()

	if row.WorkerMode != "local" || row.ID != "local" {
		t.Fatalf("unexpected identity: %+v", row)
	}
	if row.QueueSize != 1 {
		t.Fatalf("expected queue size 1, got %d", row.QueueSize)
	}
	if row.ScheduledJobsCount != 1 || row.AvailableJobsCount != 1 {
		t.Fatalf("unexpected counts: %+v", row)
	}
}
