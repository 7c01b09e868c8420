package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/replayhub/internal/cache"
	"github.com/geocoder89/replayhub/internal/workerclient"
)

const workerCacheTTL = 5 * time.Second

// WorkerProxy surfaces the worker's introspection endpoints through the
// admin API. The circuit breaker inside the client turns a dead worker
// into a fast 503; a short-TTL cache keeps dashboard polling off the
// worker's back.
type WorkerProxy struct {
	client WorkerCaller
	cache  cache.Store
}

type WorkerCaller interface {
	Stats(ctx context.Context) (json.RawMessage, error)
	QueueStats(ctx context.Context) (json.RawMessage, error)
	Jobs(ctx context.Context) (json.RawMessage, error)
	SchedulerJobs(ctx context.Context) (json.RawMessage, error)
	Enqueue(ctx context.Context, body json.RawMessage) (json.RawMessage, error)
}

func NewWorkerProxy(client WorkerCaller, store cache.Store) *WorkerProxy {
	if store == nil {
		store = cache.NewMemory()
	}
	return &WorkerProxy{client: client, cache: store}
}

func (p *WorkerProxy) Stats(ctx *gin.Context) {
	p.forwardCached(ctx, cache.WorkerStatsKey(), p.client.Stats)
}

func (p *WorkerProxy) QueueStats(ctx *gin.Context) {
	p.forwardCached(ctx, cache.WorkerQueueStatsKey(), p.client.QueueStats)
}

func (p *WorkerProxy) Jobs(ctx *gin.Context) {
	p.forward(ctx, p.client.Jobs)
}

func (p *WorkerProxy) SchedulerJobs(ctx *gin.Context) {
	p.forward(ctx, p.client.SchedulerJobs)
}

func (p *WorkerProxy) Enqueue(ctx *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, 1<<20))

	if err != nil {
		RespondBadRequest(ctx, "Could not read request body")
		return
	}

	raw, err := p.client.Enqueue(ctx.Request.Context(), body)

	if err != nil {
		p.respondProxyError(ctx, raw, err)
		return
	}

	RespondData(ctx, http.StatusAccepted, json.RawMessage(raw))
}

func (p *WorkerProxy) forwardCached(ctx *gin.Context, key string, call func(ctx context.Context) (json.RawMessage, error)) {
	if raw, ok := p.cache.Get(ctx.Request.Context(), key); ok {
		RespondData(ctx, http.StatusOK, json.RawMessage(raw))
		return
	}

	raw, err := call(ctx.Request.Context())

	if err != nil {
		p.respondProxyError(ctx, raw, err)
		return
	}

	p.cache.Set(ctx.Request.Context(), key, raw, workerCacheTTL)

	RespondData(ctx, http.StatusOK, json.RawMessage(raw))
}

func (p *WorkerProxy) forward(ctx *gin.Context, call func(ctx context.Context) (json.RawMessage, error)) {
	raw, err := call(ctx.Request.Context())

	if err != nil {
		p.respondProxyError(ctx, raw, err)
		return
	}

	RespondData(ctx, http.StatusOK, json.RawMessage(raw))
}

func (p *WorkerProxy) respondProxyError(ctx *gin.Context, raw json.RawMessage, err error) {
	if errors.Is(err, workerclient.ErrCircuitOpen) {
		RespondDependency(ctx, "Worker is unavailable")
		return
	}

	// 4xx from the worker carries a usable body; pass its message on
	if raw != nil {
		var workerErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &workerErr) == nil && workerErr.Error != "" {
			RespondValidation(ctx, workerErr.Error, nil)
			return
		}
	}

	RespondDependency(ctx, "Worker request failed")
}
