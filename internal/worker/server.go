package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geocoder89/replayhub/internal/jobs"
	"github.com/geocoder89/replayhub/internal/queue"
	"github.com/geocoder89/replayhub/internal/scheduler"
)

type ServerDeps struct {
	Queue      queue.Queue
	Scheduler  scheduler.Scheduler
	Registry   *jobs.Registry
	Stats      *StatsPublisher
	Dispatcher *Dispatcher
	Ping       func(ctx context.Context) error
	Gatherer   prometheus.Gatherer

	IsShuttingDown func() bool
}

// NewServer builds the local introspection server the API process calls
// over WORKER_URL. Local mode only; lambda mode has no resident process
// to serve it.
func NewServer(deps ServerDeps) http.Handler {
	r := gin.New()

	r.Use(gin.Recovery())

	// liveness: process is up
	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// readiness: able to claim + process
	r.GET("/readyz", func(ctx *gin.Context) {
		if deps.IsShuttingDown != nil && deps.IsShuttingDown() {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}

		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 500*time.Millisecond)
		defer cancel()

		if deps.Ping != nil {
			if err := deps.Ping(pingCtx); err != nil {
				ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready"})
				return
			}
		}

		ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/worker/jobs", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"jobs": deps.Registry.List()})
	})

	r.GET("/worker/queue/stats", func(ctx *gin.Context) {
		stats, err := deps.Queue.Stats(ctx.Request.Context())

		if err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}

		ctx.JSON(http.StatusOK, stats)
	})

	r.GET("/worker/scheduler/jobs", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"entries": deps.Scheduler.List()})
	})

	r.GET("/worker/stats", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, deps.Stats.Latest())
	})

	if deps.Dispatcher != nil {
		r.GET("/worker/metrics/jobs", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, deps.Dispatcher.Metrics())
		})
	}

	r.POST("/jobs/enqueue", func(ctx *gin.Context) {
		var req enqueueRequest

		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		jobType := jobs.JobType(req.Type)
		meta, _, err := deps.Registry.Lookup(jobType)

		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "unknown job type"})
			return
		}

		// Reject malformed payloads here instead of letting the job fail
		// every attempt inside the handler. The round trip through the
		// typed codec also canonicalizes what gets enqueued.
		decoded, err := jobs.DecodePayload(jobType, req.Payload)

		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload for job type " + req.Type})
			return
		}

		payload, err := jobs.EncodePayload(jobType, decoded)

		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload for job type " + req.Type})
			return
		}

		opts := meta.DefaultOptions

		if req.MaxAttempts > 0 {
			opts.MaxAttempts = req.MaxAttempts
		}
		if req.DelaySeconds > 0 {
			opts.Delay = time.Duration(req.DelaySeconds) * time.Second
		}
		if req.ScheduledFor != nil {
			opts.ScheduledFor = req.ScheduledFor
		}

		id, err := deps.Queue.Enqueue(ctx.Request.Context(), req.Type, payload, opts)

		if err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}

		ctx.JSON(http.StatusAccepted, gin.H{"jobId": id})
	})

	return r
}

type enqueueRequest struct {
	Type         string          `json:"type" binding:"required"`
	Payload      json.RawMessage `json:"payload"`
	MaxAttempts  int             `json:"maxAttempts"`
	DelaySeconds int             `json:"delaySeconds"`
	ScheduledFor *time.Time      `json:"scheduledFor"`
}
