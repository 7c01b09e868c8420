package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Every response wraps its payload in the same envelope so clients never
// branch on shape.
type Envelope struct {
	Data     any       `json:"data"`
	Error    *APIError `json:"error"`
	Metadata Metadata  `json:"metadata"`
}

type APIError struct {
	Name    string  `json:"name"`
	Message string  `json:"message"`
	Issues  []Issue `json:"issues,omitempty"`
}

type Issue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type Metadata struct {
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Page      int       `json:"page,omitempty"`
	PageSize  int       `json:"pageSize,omitempty"`
	Total     *int      `json:"total,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func metadataFrom(ctx *gin.Context) Metadata {
	return Metadata{
		RequestID: requestIDFrom(ctx),
		Timestamp: time.Now().UTC(),
	}
}

func RespondData(ctx *gin.Context, status int, data any) {
	ctx.JSON(status, Envelope{Data: data, Metadata: metadataFrom(ctx)})
}

// RespondPage adds pagination to the metadata block.
func RespondPage(ctx *gin.Context, data any, page, pageSize, total int) {
	md := metadataFrom(ctx)
	md.Page = page
	md.PageSize = pageSize
	md.Total = &total

	ctx.JSON(http.StatusOK, Envelope{Data: data, Metadata: md})
}

func RespondError(ctx *gin.Context, status int, name, message string, issues []Issue) {
	ctx.JSON(status, Envelope{
		Error: &APIError{
			Name:    name,
			Message: message,
			Issues:  issues,
		},
		Metadata: metadataFrom(ctx),
	})
}

func RespondValidation(ctx *gin.Context, message string, issues []Issue) {
	RespondError(ctx, http.StatusUnprocessableEntity, "ValidationError", message, issues)
}

func RespondBadRequest(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusBadRequest, "ValidationError", message, nil)
}

func RespondUnauthorized(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusUnauthorized, "AuthError", message, nil)
}

func RespondForbidden(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusForbidden, "AuthError", message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "NotFoundError", message, nil)
}

func RespondConflict(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusConflict, "ConflictError", message, nil)
}

func RespondDependency(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusServiceUnavailable, "DependencyError", message, nil)
}

// RespondInternal hides the detail outside production-safe contexts;
// callers pass the user-facing message only.
func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "InternalError", message, nil)
}
