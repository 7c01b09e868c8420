package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/geocoder89/replayhub/internal/config"
	"github.com/geocoder89/replayhub/internal/repo/postgres"
)

// TableStore is the slice of TablesRepo the handler needs; tests fake it.
type TableStore interface {
	Tables() []string
	List(ctx context.Context, table string, filters []postgres.Filter, limit, offset int, includeDeleted bool) (postgres.ListResult, error)
	Get(ctx context.Context, table string, id string) (map[string]any, error)
	Create(ctx context.Context, table string, fields map[string]any) (map[string]any, error)
	Update(ctx context.Context, table string, id string, fields map[string]any) (map[string]any, error)
	SoftDelete(ctx context.Context, table string, id string) error
	HardDelete(ctx context.Context, table string, id string) error
	SearchEmbedding(ctx context.Context, table string, query string, limit int) ([]postgres.ScoredRow, error)
}

type TablesHandler struct {
	store TableStore
}

func NewTablesHandler(store TableStore) *TablesHandler {
	return &TablesHandler{store: store}
}

// query keys with meaning of their own, never treated as column filters
var reservedQueryKeys = map[string]struct{}{
	"page": {}, "pageSize": {}, "search": {}, "includeDeleted": {}, "hard": {},
}

// multi-value operators take comma-separated values
var multiValueOps = map[string]struct{}{
	"in": {}, "notin": {}, "between": {},
	"arraycontains": {}, "arraycontained": {}, "arrayoverlaps": {},
}

func (h *TablesHandler) List(ctx *gin.Context) {
	table := ctx.Param("table")

	if search := ctx.Query("search"); search != "" {
		h.search(ctx, table, search)
		return
	}

	filters, err := parseFilters(ctx)

	if err != nil {
		RespondValidation(ctx, "Invalid filter", []Issue{{Path: "query", Code: "filter", Message: err.Error()}})
		return
	}

	page, pageSize := pagination(ctx)
	includeDeleted := ctx.Query("includeDeleted") == "true"

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	res, err := h.store.List(cctx, table, filters, pageSize, (page-1)*pageSize, includeDeleted)

	if err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	RespondPage(ctx, res.Rows, page, pageSize, res.Total)
}

func (h *TablesHandler) search(ctx *gin.Context, table, query string) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("pageSize", "10"))

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	scored, err := h.store.SearchEmbedding(cctx, table, query, limit)

	if err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	RespondData(ctx, http.StatusOK, scored)
}

func (h *TablesHandler) Get(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	row, err := h.store.Get(cctx, ctx.Param("table"), ctx.Param("id"))

	if err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	RespondData(ctx, http.StatusOK, row)
}

func (h *TablesHandler) Create(ctx *gin.Context) {
	var fields map[string]any

	if !BindJSON(ctx, &fields) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	row, err := h.store.Create(cctx, ctx.Param("table"), fields)

	if err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	RespondData(ctx, http.StatusCreated, row)
}

func (h *TablesHandler) Update(ctx *gin.Context) {
	var fields map[string]any

	if !BindJSON(ctx, &fields) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	row, err := h.store.Update(cctx, ctx.Param("table"), ctx.Param("id"), fields)

	if err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	RespondData(ctx, http.StatusOK, row)
}

// Delete soft-deletes by default; ?hard=true removes the row.
func (h *TablesHandler) Delete(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	var err error
	if ctx.Query("hard") == "true" {
		err = h.store.HardDelete(cctx, ctx.Param("table"), ctx.Param("id"))
	} else {
		err = h.store.SoftDelete(cctx, ctx.Param("table"), ctx.Param("id"))
	}

	if err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *TablesHandler) respondStoreError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, postgres.ErrUnknownTable):
		RespondNotFound(ctx, "Unknown table")
	case errors.Is(err, postgres.ErrRowNotFound):
		RespondNotFound(ctx, "Row not found")
	case errors.Is(err, postgres.ErrUnknownColumn),
		errors.Is(err, postgres.ErrUnknownOperator),
		errors.Is(err, postgres.ErrBadFilterValue),
		errors.Is(err, postgres.ErrNoWritableFields):
		RespondValidation(ctx, err.Error(), nil)
	case isUniqueViolation(err):
		RespondConflict(ctx, "Row violates a uniqueness constraint")
	default:
		RespondInternal(ctx, "Storage operation failed")
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func parseFilters(ctx *gin.Context) ([]postgres.Filter, error) {
	var filters []postgres.Filter

	for key, vals := range ctx.Request.URL.Query() {
		if _, reserved := reservedQueryKeys[key]; reserved {
			continue
		}
		if len(vals) == 0 {
			continue
		}

		column, op, err := postgres.ParseFilterKey(key)

		if err != nil {
			return nil, err
		}

		var value any = vals[0]

		if _, multi := multiValueOps[op]; multi {
			value = strings.Split(vals[0], ",")
		}

		filters = append(filters, postgres.Filter{Column: column, Op: op, Value: value})
	}

	return filters, nil
}

func pagination(ctx *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(ctx.DefaultQuery("pageSize", "20"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
