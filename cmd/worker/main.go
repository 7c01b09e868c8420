package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/geocoder89/replayhub/internal/config"
	"github.com/geocoder89/replayhub/internal/db"
	"github.com/geocoder89/replayhub/internal/jobs"
	"github.com/geocoder89/replayhub/internal/observability"
	"github.com/geocoder89/replayhub/internal/queue"
	"github.com/geocoder89/replayhub/internal/queue/inproc"
	"github.com/geocoder89/replayhub/internal/queue/sqsqueue"
	"github.com/geocoder89/replayhub/internal/repo/postgres"
	"github.com/geocoder89/replayhub/internal/scheduler"
	"github.com/geocoder89/replayhub/internal/worker"
)

// defaultCronEntries seed the scheduler on startup. In lambda mode the
// managed scheduler owns the ticking; the entries are declared so the
// introspection surface can still list them.
var defaultCronEntries = []struct {
	expr    string
	jobType jobs.JobType
}{
	{"*/5 * * * *", jobs.JobHealthCheck},
	{"0 3 * * *", jobs.JobCleanupSnapshots},
	{"0 * * * *", jobs.JobMetricsRollup},
}

func main() {
	cfg, err := config.Load()

	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(cfg.DatabaseURL, cfg.Worker.Mode == config.WorkerModeLambda)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	registry := prometheus.NewRegistry()
	prom := observability.NewProm(registry)

	jobRegistry := jobs.NewRegistry()

	snapshotsRepo := postgres.NewSnapshotsRepo(pool, prom)
	metricsRepo := postgres.NewMetricsRepo(pool, prom)
	statsRepo := postgres.NewWorkerStatsRepo(pool, prom)

	if err := jobs.RegisterDefaults(jobRegistry, log, pool, snapshotsRepo, metricsRepo); err != nil {
		log.Error("job registration failed", "err", err)
		os.Exit(1)
	}

	q, err := buildQueue(ctx, cfg, log)

	if err != nil {
		log.Error("queue init failed", "err", err)
		os.Exit(1)
	}

	sched := buildScheduler(cfg, q, log)
	defer sched.StopAll()

	for _, entry := range defaultCronEntries {
		if _, err := sched.Schedule(entry.expr, string(entry.jobType), nil); err != nil {
			log.Error("cron seed failed", "job_type", entry.jobType, "err", err)
			os.Exit(1)
		}
	}

	dispatcher := worker.NewDispatcher(worker.Config{
		PollInterval:  cfg.Worker.PollInterval,
		ShutdownGrace: 10 * time.Second,
	}, q, jobRegistry, log, prom)

	stats := worker.NewStatsPublisher(statsRepo, q, sched, jobRegistry, cfg.Worker.Mode, cfg.Worker.StatsInterval, log)

	if cfg.Worker.Mode == config.WorkerModeLambda {
		// the container freezes between events, so heartbeats ride on
		// job completion instead of a ticker
		dispatcher.OnProcessed(func(ctx context.Context) {
			stats.Push(ctx)
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	if cfg.Worker.Mode == config.WorkerModeLocal {
		g.Go(func() error {
			return stats.Run(gctx)
		})

		g.Go(func() error {
			return runIntrospectionServer(gctx, cfg, worker.ServerDeps{
				Queue:      q,
				Scheduler:  sched,
				Registry:   jobRegistry,
				Stats:      stats,
				Dispatcher: dispatcher,
				Ping:       pool.Ping,
				Gatherer:   registry,
				IsShuttingDown: func() bool {
					return gctx.Err() != nil
				},
			}, log)
		})
	}

	log.Info("worker started", "mode", cfg.Worker.Mode, "poll_interval", cfg.Worker.PollInterval)

	if err := g.Wait(); err != nil {
		log.Error("worker stopped with error", "err", err)
		os.Exit(1)
	}

	log.Info("worker shutdown complete")
}

func buildQueue(ctx context.Context, cfg config.Config, log *slog.Logger) (queue.Queue, error) {
	if cfg.Worker.Mode == config.WorkerModeLocal {
		return inproc.New(log), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Worker.AWSRegion))

	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	return sqsqueue.New(sqs.NewFromConfig(awsCfg), cfg.Worker.SQSQueueURL), nil
}

func buildScheduler(cfg config.Config, q queue.Queue, log *slog.Logger) scheduler.Scheduler {
	if cfg.Worker.Mode == config.WorkerModeLocal {
		return scheduler.NewInProc(q, log)
	}
	return scheduler.NewExternal()
}

func runIntrospectionServer(ctx context.Context, cfg config.Config, deps worker.ServerDeps, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.Port),
		Handler:           worker.NewServer(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("introspection server starting", "port", cfg.Worker.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(sctx)
}
