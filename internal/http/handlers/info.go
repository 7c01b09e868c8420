package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

type InfoHandler struct {
	env       string
	version   string
	startedAt time.Time
}

func NewInfoHandler(env, version string) *InfoHandler {
	return &InfoHandler{env: env, version: version, startedAt: time.Now().UTC()}
}

func (h *InfoHandler) Info(ctx *gin.Context) {
	RespondData(ctx, http.StatusOK, gin.H{
		"name":      "replayhub",
		"env":       h.env,
		"version":   h.version,
		"goVersion": runtime.Version(),
		"uptimeSec": int64(time.Since(h.startedAt).Seconds()),
	})
}
