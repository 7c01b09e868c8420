package replay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/geocoder89/replayhub/internal/capture"
	"github.com/geocoder89/replayhub/internal/domain/snapshot"
)

type mapLoader map[int64]snapshot.Snapshot

func (m mapLoader) GetByID(ctx context.Context, id int64) (snapshot.Snapshot, error) {
	s, ok := m[id]
	if !ok {
		return snapshot.Snapshot{}, snapshot.ErrNotFound
	}
	return s, nil
}

func TestReplay_RoundTrip(t *testing.T) {
	var gotBody []byte
	var gotReplayMarker string
	var gotAuth string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotReplayMarker = r.Header.Get(OriginHeader)
		gotAuth = r.Header.Get("Authorization")

		if r.URL.Path != "/api/v1/users" || r.URL.Query().Get("verbose") != "1" {
			t.Errorf("unexpected target: %s", r.URL.String())
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"name":"Alice"}`))
	})

	loader := mapLoader{
		42: {
			ID:     42,
			Method: "POST",
			Path:   "/api/v1/users",
			Query:  map[string]string{"verbose": "1"},
			Headers: map[string]string{
				"Content-Type": "application/json",
				"Connection":   "keep-alive",
			},
			Body: []byte(`{"name":"Alice","age":30}`),
		},
	}

	e := New(loader, handler, capture.NewDenySet(nil), nil, nil)

	res, err := e.Replay(context.Background(), 42, "")
	if err != nil {
		t.Fatalf("Replay error: %v", err)
	}

	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.StatusCode)
	}
	if string(gotBody) != `{"name":"Alice","age":30}` {
		t.Fatalf("body not forwarded: %s", gotBody)
	}
	if gotReplayMarker != "1" {
		t.Fatalf("expected replay marker header")
	}
	if gotAuth != "" {
		t.Fatalf("stored credentials must not reach the handler, got %q", gotAuth)
	}

	var out map[string]any
	if err := json.Unmarshal(res.Body, &out); err != nil {
		t.Fatalf("response body not captured: %v", err)
	}
	if out["name"] != "Alice" {
		t.Fatalf("unexpected response body: %v", out)
	}
	if res.DurationMs < 0 {
		t.Fatalf("negative duration")
	}
}

func TestReplay_NotFound(t *testing.T) {
	e := New(mapLoader{}, http.NotFoundHandler(), capture.NewDenySet(nil), nil, nil)

	_, err := e.Replay(context.Background(), 1, "")
	if !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReplay_MethodGate(t *testing.T) {
	loader := mapLoader{1: {ID: 1, Method: "DELETE", Path: "/api/v1/users/3"}}

	e := New(loader, http.NotFoundHandler(), capture.NewDenySet(nil), []string{"GET", "POST"}, nil)

	_, err := e.Replay(context.Background(), 1, "")
	if !errors.Is(err, ErrMethodNotAllowed) {
		t.Fatalf("expected ErrMethodNotAllowed, got %v", err)
	}
}

func TestReplay_SensitivePathRefused(t *testing.T) {
	loader := mapLoader{1: {ID: 1, Method: "POST", Path: "/api/v1/auth/login"}}

	e := New(loader, http.NotFoundHandler(), capture.NewDenySet(nil), nil, []string{"/api/v1/auth"})

	_, err := e.Replay(context.Background(), 1, "")
	if !errors.Is(err, ErrPathRefused) {
		t.Fatalf("expected ErrPathRefused, got %v", err)
	}
}

func TestReplay_CallerAuthorizationForwarded(t *testing.T) {
	var gotAuth string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})

	loader := mapLoader{1: {ID: 1, Method: "GET", Path: "/api/v1/logs", Headers: map[string]string{"Authorization": "Bearer stale"}}}

	e := New(loader, handler, capture.NewDenySet(nil), nil, nil)

	_, err := e.Replay(context.Background(), 1, "Bearer fresh")
	if err != nil {
		t.Fatalf("Replay error: %v", err)
	}
	if gotAuth != "Bearer fresh" {
		t.Fatalf("expected caller token on replayed request, got %q", gotAuth)
	}
}
