package worker_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/replayhub/internal/jobs"
	"github.com/geocoder89/replayhub/internal/queue/inproc"
	"github.com/geocoder89/replayhub/internal/worker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func enqueueServer(t *testing.T) (http.Handler, *inproc.Queue) {
	t.Helper()

	registry := jobs.NewRegistry()
	err := registry.Register(jobs.Metadata{
		Type: jobs.JobCleanupSnapshots,
		Name: "cleanup_snapshots",
	}, func(ctx context.Context, payload json.RawMessage) error { return nil })
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	q := inproc.New(slog.New(slog.NewTextHandler(io.Discard, nil)))

	return worker.NewServer(worker.ServerDeps{
		Queue:    q,
		Registry: registry,
	}), q
}

func TestEnqueueValidatesPayload(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		wantStatusCode int
		wantEnqueued   int
	}{
		{
			name:           "valid_payload",
			body:           `{"type":"cleanup_snapshots","payload":{"olderThanDays":30}}`,
			wantStatusCode: http.StatusAccepted,
			wantEnqueued:   1,
		},
		{
			name:           "empty_payload_defaults",
			body:           `{"type":"cleanup_snapshots"}`,
			wantStatusCode: http.StatusAccepted,
			wantEnqueued:   1,
		},
		{
			name:           "wrong_field_type",
			body:           `{"type":"cleanup_snapshots","payload":{"olderThanDays":"thirty"}}`,
			wantStatusCode: http.StatusBadRequest,
			wantEnqueued:   0,
		},
		{
			name:           "unknown_type",
			body:           `{"type":"warm_caches","payload":{}}`,
			wantStatusCode: http.StatusBadRequest,
			wantEnqueued:   0,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			srv, q := enqueueServer(t)

			req := httptest.NewRequest(http.MethodPost, "/jobs/enqueue", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			stats, err := q.Stats(context.Background())
			if err != nil {
				t.Fatalf("stats: %v", err)
			}
			if stats.Depth != tt.wantEnqueued {
				t.Fatalf("queue depth = %d, want %d", stats.Depth, tt.wantEnqueued)
			}
		})
	}
}

func TestEnqueueCanonicalizesPayload(t *testing.T) {
	srv, q := enqueueServer(t)

	body := `{"type":"cleanup_snapshots","payload":{"olderThanDays":30,"unknownField":true}}`
	req := httptest.NewRequest(http.MethodPost, "/jobs/enqueue", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	j, err := q.Dequeue(context.Background())
	if err != nil || j == nil {
		t.Fatalf("dequeue: job=%v err=%v", j, err)
	}

	var p jobs.CleanupSnapshotsPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		t.Fatalf("unmarshal enqueued payload: %v", err)
	}
	if p.OlderThanDays != 30 {
		t.Fatalf("olderThanDays = %d, want 30", p.OlderThanDays)
	}
	if strings.Contains(string(j.Payload), "unknownField") {
		t.Fatalf("unknown field survived canonicalization: %s", j.Payload)
	}
}
