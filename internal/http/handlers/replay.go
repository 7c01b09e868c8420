package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/replayhub/internal/config"
	"github.com/geocoder89/replayhub/internal/domain/snapshot"
	"github.com/geocoder89/replayhub/internal/replay"
)

type SnapshotReader interface {
	GetByID(ctx context.Context, id int64) (snapshot.Snapshot, error)
	List(ctx context.Context, f snapshot.ListFilter) ([]snapshot.Snapshot, int, error)
	SoftDelete(ctx context.Context, id int64) error
	HardDelete(ctx context.Context, id int64) error
}

type Replayer interface {
	Replay(ctx context.Context, id int64, authorization string) (replay.Result, error)
}

type ReplayHandler struct {
	snapshots SnapshotReader
	engine    Replayer
}

func NewReplayHandler(snapshots SnapshotReader, engine Replayer) *ReplayHandler {
	return &ReplayHandler{snapshots: snapshots, engine: engine}
}

func (h *ReplayHandler) List(ctx *gin.Context) {
	var f snapshot.ListFilter

	if v := ctx.Query("method"); v != "" {
		f.Method = &v
	}
	if v := ctx.Query("path"); v != "" {
		f.Path = &v
	}
	if v := ctx.Query("statusCode"); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil {
			RespondValidation(ctx, "statusCode must be an integer", nil)
			return
		}
		f.StatusCode = &code
	}
	if v := ctx.Query("startDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			RespondValidation(ctx, "startDate must be RFC3339", nil)
			return
		}
		f.StartDate = &t
	}
	if v := ctx.Query("endDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			RespondValidation(ctx, "endDate must be RFC3339", nil)
			return
		}
		f.EndDate = &t
	}

	f.Page, f.PageSize = pagination(ctx)

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	snaps, total, err := h.snapshots.List(cctx, f)

	if err != nil {
		RespondInternal(ctx, "Could not list snapshots")
		return
	}

	// bodies stay out of the listing; fetch the detail for those
	type listItem struct {
		ID         int64     `json:"id"`
		Method     string    `json:"method"`
		Path       string    `json:"path"`
		StatusCode int       `json:"statusCode"`
		DurationMs int64     `json:"duration"`
		Timestamp  time.Time `json:"timestamp"`
		GeoCountry string    `json:"geoCountry,omitempty"`
	}

	items := make([]listItem, 0, len(snaps))
	for _, s := range snaps {
		items = append(items, listItem{
			ID:         s.ID,
			Method:     s.Method,
			Path:       s.Path,
			StatusCode: s.StatusCode,
			DurationMs: s.DurationMs,
			Timestamp:  s.Timestamp,
			GeoCountry: s.Geo.Country,
		})
	}

	RespondPage(ctx, items, f.Page, f.PageSize, total)
}

func (h *ReplayHandler) Get(ctx *gin.Context) {
	id, ok := snapshotID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	s, err := h.snapshots.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			RespondNotFound(ctx, "Snapshot not found")
			return
		}
		RespondInternal(ctx, "Could not load snapshot")
		return
	}

	// snapshots are immutable, so the ETag lets clients cache the detail
	RespondJSONWithETag(ctx, http.StatusOK, s)
}

func (h *ReplayHandler) Replay(ctx *gin.Context) {
	id, ok := snapshotID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	// the stored snapshot carries no credentials; the caller's token
	// authenticates the re-issued request
	result, err := h.engine.Replay(cctx, id, ctx.GetHeader("Authorization"))

	if err != nil {
		switch {
		case errors.Is(err, snapshot.ErrNotFound):
			RespondNotFound(ctx, "Snapshot not found")
		case errors.Is(err, replay.ErrMethodNotAllowed):
			RespondForbidden(ctx, "Method not allowed for replay")
		case errors.Is(err, replay.ErrPathRefused):
			RespondForbidden(ctx, "Path refused for replay")
		default:
			RespondInternal(ctx, "Replay failed")
		}
		return
	}

	RespondData(ctx, http.StatusOK, result)
}

func (h *ReplayHandler) Delete(ctx *gin.Context) {
	id, ok := snapshotID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	var err error
	if ctx.Query("hard") == "true" {
		err = h.snapshots.HardDelete(cctx, id)
	} else {
		err = h.snapshots.SoftDelete(cctx, id)
	}

	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			RespondNotFound(ctx, "Snapshot not found")
			return
		}
		RespondInternal(ctx, "Could not delete snapshot")
		return
	}

	ctx.Status(http.StatusNoContent)
}

func snapshotID(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)

	if err != nil || id < 1 {
		RespondValidation(ctx, "id must be a positive integer", nil)
		return 0, false
	}

	return id, true
}
