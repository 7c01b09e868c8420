package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const workerStaleAfter = 300 * time.Second

type HeartbeatReader interface {
	Stale(ctx context.Context, maxAge time.Duration) (bool, error)
}

type HealthHandler struct {
	ping       func(ctx context.Context) error
	heartbeats HeartbeatReader
}

func NewHealthHandler(ping func(ctx context.Context) error, heartbeats HeartbeatReader) *HealthHandler {
	return &HealthHandler{ping: ping, heartbeats: heartbeats}
}

// Health is the detailed admin view: database reachability plus worker
// heartbeat freshness. A stale worker degrades the report but the API
// itself still answers 200.
func (h *HealthHandler) Health(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := h.ping(cctx); err != nil {
		dbStatus = "unhealthy"
	}

	workerStatus := "healthy"
	stale, err := h.heartbeats.Stale(cctx, workerStaleAfter)
	if err != nil || stale {
		workerStatus = "unhealthy"
	}

	status := "healthy"
	if dbStatus != "healthy" || workerStatus != "healthy" {
		status = "degraded"
	}

	RespondData(ctx, http.StatusOK, gin.H{
		"status":   status,
		"database": gin.H{"status": dbStatus},
		"worker":   gin.H{"status": workerStatus},
	})
}

func (h *HealthHandler) Liveness(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readiness(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 500*time.Millisecond)
	defer cancel()

	if err := h.ping(cctx); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}
