package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/replayhub/internal/domain/snapshot"
)

type Store interface {
	Insert(ctx context.Context, s snapshot.Snapshot) (int64, error)
}

// Writer persists snapshots off the response path. A bounded channel
// feeds a single background goroutine; a full buffer drops the snapshot
// with a warning rather than blocking the handler.
type Writer struct {
	store Store
	log   *slog.Logger
	ch    chan snapshot.Snapshot

	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewWriter(store Store, log *slog.Logger, buffer int) *Writer {
	if buffer <= 0 {
		buffer = 256
	}

	w := &Writer{
		store: store,
		log:   log,
		ch:    make(chan snapshot.Snapshot, buffer),
	}

	w.wg.Add(1)
	go w.loop()

	return w
}

func (w *Writer) loop() {
	defer w.wg.Done()

	for s := range w.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		_, err := w.store.Insert(ctx, s)
		cancel()

		if err != nil {
			// persistence failures are logged, never surfaced to clients
			w.log.Error("snapshot persist failed", "method", s.Method, "path", s.Path, "err", err)
		}
	}
}

// Enqueue hands one snapshot to the background writer. Never blocks.
func (w *Writer) Enqueue(s snapshot.Snapshot) {
	select {
	case w.ch <- s:
	default:
		w.log.Warn("snapshot buffer full, dropping", "method", s.Method, "path", s.Path)
	}
}

// Close drains pending snapshots and stops the writer.
func (w *Writer) Close() {
	w.stopOnce.Do(func() {
		close(w.ch)
	})
	w.wg.Wait()
}
