package middlewares

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/replayhub/internal/capture"
	"github.com/geocoder89/replayhub/internal/domain/snapshot"
	"github.com/geocoder89/replayhub/internal/geo"
	"github.com/geocoder89/replayhub/internal/replay"
)

type recordingStore struct {
	mu        sync.Mutex
	snapshots []snapshot.Snapshot
}

func (s *recordingStore) Insert(ctx context.Context, snap snapshot.Snapshot) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	return int64(len(s.snapshots)), nil
}

func (s *recordingStore) all() []snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]snapshot.Snapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func snapshotRouter(store *recordingStore, maxBody int) (*gin.Engine, *capture.Writer) {
	gin.SetMode(gin.TestMode)

	writer := capture.NewWriter(store, discardLogger(), 16)

	r := gin.New()
	r.Use(Snapshot(SnapshotConfig{Prefix: "/api/v1", MaxBodyBytes: maxBody}, writer, geo.NewResolver(nil), capture.NewDenySet(nil)))

	r.POST("/api/v1/logs", func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.JSON(http.StatusCreated, gin.H{"received": len(body)})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return r, writer
}

func TestSnapshotCapturesRequestAndResponse(t *testing.T) {
	store := &recordingStore{}
	r, writer := snapshotRouter(store, 1024)

	body := `{"level":"info","message":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs?source=agent", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	writer.Close()

	snaps := store.all()
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}

	s := snaps[0]
	if s.Method != http.MethodPost || s.Path != "/api/v1/logs" {
		t.Errorf("recorded %s %s", s.Method, s.Path)
	}
	if s.Query["source"] != "agent" {
		t.Errorf("query = %v", s.Query)
	}
	if string(s.Body) != body {
		t.Errorf("body = %q, want %q", s.Body, body)
	}
	if s.StatusCode != http.StatusCreated {
		t.Errorf("statusCode = %d, want 201", s.StatusCode)
	}
	if !bytes.Contains(s.ResponseBody, []byte("received")) {
		t.Errorf("response body not captured: %q", s.ResponseBody)
	}
	if _, ok := s.Headers["Authorization"]; ok {
		t.Error("authorization header must be redacted")
	}
	if s.Headers["Content-Type"] != "application/json" {
		t.Errorf("headers = %v", s.Headers)
	}
	if s.DurationMs < 0 {
		t.Errorf("duration = %d", s.DurationMs)
	}
	if s.Geo.Source != snapshot.GeoSourceNone {
		t.Errorf("geo source = %q, want none", s.Geo.Source)
	}
}

func TestSnapshotSkipsOutsidePrefix(t *testing.T) {
	store := &recordingStore{}
	r, writer := snapshotRouter(store, 1024)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	writer.Close()

	if len(store.all()) != 0 {
		t.Fatal("paths outside the prefix must not be recorded")
	}
}

func TestSnapshotSkipsReplayOrigin(t *testing.T) {
	store := &recordingStore{}
	r, writer := snapshotRouter(store, 1024)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs", strings.NewReader(`{}`))
	req.Header.Set(replay.OriginHeader, "7")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("replayed request must still be served, got %d", w.Code)
	}

	writer.Close()

	if len(store.all()) != 0 {
		t.Fatal("replayed requests must not spawn new snapshots")
	}
}

func TestSnapshotTruncatesLargeBodies(t *testing.T) {
	store := &recordingStore{}
	r, writer := snapshotRouter(store, 16)

	big := strings.Repeat("x", 100)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs", strings.NewReader(big))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	writer.Close()

	snaps := store.all()
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}

	s := snaps[0]
	if !s.BodyTruncated {
		t.Error("expected body truncation marker")
	}
	if len(s.Body) != 16 {
		t.Errorf("stored body length = %d, want 16", len(s.Body))
	}
	if !s.ResponseTruncated {
		t.Error("expected response truncation marker")
	}
}

func TestSnapshotGeoFromHeaders(t *testing.T) {
	store := &recordingStore{}
	r, writer := snapshotRouter(store, 1024)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs", strings.NewReader(`{}`))
	req.Header.Set("CloudFront-Viewer-Country", "DE")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	writer.Close()

	snaps := store.all()
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	if snaps[0].Geo.Country != "DE" || snaps[0].Geo.Source != snapshot.GeoSourcePlatform {
		t.Errorf("geo = %+v", snaps[0].Geo)
	}
}

func TestSnapshotRecordsPanicsAsServerError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := &recordingStore{}
	writer := capture.NewWriter(store, discardLogger(), 16)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Snapshot(SnapshotConfig{Prefix: "/api/v1"}, writer, geo.NewResolver(nil), capture.NewDenySet(nil)))
	r.GET("/api/v1/boom", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	writer.Close()

	snaps := store.all()
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	if snaps[0].StatusCode != http.StatusInternalServerError {
		t.Errorf("recorded status = %d, want 500", snaps[0].StatusCode)
	}
}
