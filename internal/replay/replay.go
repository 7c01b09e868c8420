package replay

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/geocoder89/replayhub/internal/capture"
	"github.com/geocoder89/replayhub/internal/domain/snapshot"
)

var (
	ErrMethodNotAllowed = errors.New("method not allowed for replay")
	ErrPathRefused      = errors.New("path refused for replay")
)

// OriginHeader marks replay-issued requests so the snapshot middleware
// short-circuits instead of recording a second snapshot.
const OriginHeader = "X-Replay-Origin"

// rfc 7230 hop-by-hop headers, never forwarded on reconstruction
var hopByHop = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"TE", "Trailer", "Transfer-Encoding", "Upgrade",
}

type Loader interface {
	GetByID(ctx context.Context, id int64) (snapshot.Snapshot, error)
}

type Result struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       snapshot.Body     `json:"body,omitempty"`
	DurationMs int64             `json:"duration"`
}

// Engine rehydrates a stored snapshot and re-issues it against the live
// service in-process.
type Engine struct {
	loader  Loader
	handler http.Handler
	deny    capture.DenySet

	allowMethods   map[string]struct{}
	refusePrefixes []string
}

// New builds an engine. allowMethods defaults to all verbs when empty;
// refusePrefixes gates sensitive paths regardless of method.
func New(loader Loader, handler http.Handler, deny capture.DenySet, allowMethods []string, refusePrefixes []string) *Engine {
	allow := make(map[string]struct{}, len(allowMethods))

	for _, m := range allowMethods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" {
			allow[m] = struct{}{}
		}
	}

	if len(allow) == 0 {
		for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
			allow[m] = struct{}{}
		}
	}

	return &Engine{
		loader:         loader,
		handler:        handler,
		deny:           deny,
		allowMethods:   allow,
		refusePrefixes: refusePrefixes,
	}
}

// Replay re-issues snapshot id against the live handler. authorization,
// when non-empty, is set on the reconstructed request; credentials are
// never persisted with the snapshot, so the triggering caller's token
// stands in for the original one.
func (e *Engine) Replay(ctx context.Context, id int64, authorization string) (Result, error) {
	s, err := e.loader.GetByID(ctx, id)

	if err != nil {
		return Result{}, err
	}

	if _, ok := e.allowMethods[strings.ToUpper(s.Method)]; !ok {
		return Result{}, ErrMethodNotAllowed
	}

	for _, prefix := range e.refusePrefixes {
		if strings.HasPrefix(s.Path, prefix) {
			return Result{}, ErrPathRefused
		}
	}

	req, err := e.reconstruct(ctx, s)

	if err != nil {
		return Result{}, err
	}

	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	rec := httptest.NewRecorder()

	start := time.Now()
	e.handler.ServeHTTP(rec, req)
	elapsed := time.Since(start)

	headers := make(map[string]string, len(rec.Header()))
	for k, vals := range rec.Header() {
		headers[k] = strings.Join(vals, ", ")
	}

	return Result{
		StatusCode: rec.Code,
		Headers:    headers,
		Body:       rec.Body.Bytes(),
		DurationMs: elapsed.Milliseconds(),
	}, nil
}

// reconstruct builds a request identical in method, path, query, headers
// (minus hop-by-hop and the sensitive deny-list) and body.
func (e *Engine) reconstruct(ctx context.Context, s snapshot.Snapshot) (*http.Request, error) {
	target := s.Path

	if len(s.Query) > 0 {
		q := url.Values{}
		for k, v := range s.Query {
			q.Set(k, v)
		}
		target += "?" + q.Encode()
	}

	var body *bytes.Reader
	if len(s.Body) > 0 {
		body = bytes.NewReader(s.Body)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(s.Method), target, body)

	if err != nil {
		return nil, err
	}

	for k, v := range s.Headers {
		if e.deny.Denied(k) || isHopByHop(k) {
			continue
		}
		req.Header.Set(k, v)
	}

	req.Header.Set(OriginHeader, "1")

	return req, nil
}

func isHopByHop(key string) bool {
	for _, h := range hopByHop {
		if strings.EqualFold(h, key) {
			return true
		}
	}
	return false
}
