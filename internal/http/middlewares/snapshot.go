package middlewares

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/replayhub/internal/capture"
	"github.com/geocoder89/replayhub/internal/domain/snapshot"
	"github.com/geocoder89/replayhub/internal/geo"
	"github.com/geocoder89/replayhub/internal/replay"
)

type SnapshotConfig struct {
	Prefix       string
	MaxBodyBytes int
	Version      string
	Stage        string
}

// Snapshot records every request under the API prefix as a replayable
// snapshot. The record is handed to the async writer after the response
// is committed, so capture cost off the hot path is one body copy.
//
// Requests carrying the replay marker header are served normally but
// never recorded; a replay must not spawn new snapshots.
func Snapshot(cfg SnapshotConfig, writer *capture.Writer, resolver *geo.Resolver, deny capture.DenySet) gin.HandlerFunc {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 * 1024
	}

	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, prefix) {
			c.Next()
			return
		}

		if c.GetHeader(replay.OriginHeader) != "" {
			c.Set(CtxIsReplay, true)
			c.Next()
			return
		}

		start := time.Now()

		// tee the request body, bounded
		var reqBody []byte
		var reqTruncated bool

		if c.Request.Body != nil {
			limited := io.LimitReader(c.Request.Body, int64(maxBody)+1)
			buf, err := io.ReadAll(limited)

			if err == nil {
				if len(buf) > maxBody {
					reqTruncated = true
					reqBody = buf[:maxBody]
				} else {
					reqBody = buf
				}
				// the handler still needs the full stream
				c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(buf), c.Request.Body))
			}
		}

		g := resolver.Resolve(c.Request)
		c.Set(CtxGeo, g)

		rec := &responseRecorder{ResponseWriter: c.Writer, max: maxBody}
		c.Writer = rec

		// a panicking handler still gets recorded as a 500 before the
		// outer recovery middleware takes over
		defer func() {
			if r := recover(); r != nil {
				enqueueSnapshot(c, cfg, writer, deny, g, reqBody, reqTruncated, rec, start, http.StatusInternalServerError)
				panic(r)
			}

			enqueueSnapshot(c, cfg, writer, deny, g, reqBody, reqTruncated, rec, start, 0)
		}()

		c.Next()
	}
}

func enqueueSnapshot(c *gin.Context, cfg SnapshotConfig, writer *capture.Writer, deny capture.DenySet, g snapshot.Geo, reqBody []byte, reqTruncated bool, rec *responseRecorder, start time.Time, forcedStatus int) {
	status := forcedStatus
	if status == 0 {
		status = c.Writer.Status()
	}

	query := make(map[string]string)
	for k, vals := range c.Request.URL.Query() {
		query[k] = strings.Join(vals, ",")
	}

	var userID *string
	if id, ok := UserIDFromContext(c); ok && id != "" {
		userID = &id
	}

	writer.Enqueue(snapshot.Snapshot{
		Method:            c.Request.Method,
		Path:              c.Request.URL.Path,
		Query:             query,
		Headers:           deny.Redact(c.Request.Header),
		Body:              reqBody,
		BodyTruncated:     reqTruncated,
		UserID:            userID,
		Timestamp:         start.UTC(),
		Version:           cfg.Version,
		Stage:             cfg.Stage,
		StatusCode:        status,
		ResponseHeaders:   deny.Redact(rec.Header()),
		ResponseBody:      rec.body.Bytes(),
		ResponseTruncated: rec.truncated,
		DurationMs:        time.Since(start).Milliseconds(),
		Geo:               g,
	})
}

// GeoFromContext returns the geo resolved by the Snapshot middleware.
func GeoFromContext(c *gin.Context) (snapshot.Geo, bool) {
	v, ok := c.Get(CtxGeo)
	if !ok {
		return snapshot.Geo{}, false
	}
	g, ok := v.(snapshot.Geo)
	return g, ok
}

// responseRecorder copies at most max bytes of the response while
// passing everything through to the client untouched.
type responseRecorder struct {
	gin.ResponseWriter

	max       int
	body      bytes.Buffer
	truncated bool
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.capture(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) WriteString(s string) (int, error) {
	r.capture([]byte(s))
	return r.ResponseWriter.WriteString(s)
}

func (r *responseRecorder) capture(b []byte) {
	remaining := r.max - r.body.Len()

	if remaining <= 0 {
		r.truncated = true
		return
	}

	if len(b) > remaining {
		r.body.Write(b[:remaining])
		r.truncated = true
		return
	}

	r.body.Write(b)
}
