package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes buffered log records and stops background writers.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// pending is a record queued together with the handler that must write it,
// so attributes added through WithAttrs survive the hop to the writer pool.
type pending struct {
	handler slog.Handler
	rec     slog.Record
}

// asyncQueue is shared by an AsyncHandler and every handler derived from it.
type asyncQueue struct {
	mu      sync.RWMutex
	closed  bool
	ch      chan pending
	wg      sync.WaitGroup
	dropped atomic.Int64
}

func (q *asyncQueue) run() {
	defer q.wg.Done()
	for p := range q.ch {
		_ = p.handler.Handle(context.Background(), p.rec)
	}
}

// AsyncHandler hands records to a pool of writers through a bounded buffer.
// When the buffer is full the record is dropped and counted; logging never
// blocks the caller.
type AsyncHandler struct {
	inner slog.Handler
	q     *asyncQueue
}

// NewAsyncHandler starts workers writers draining a buffer of bufferSize records.
func NewAsyncHandler(inner slog.Handler, bufferSize, workers int) *AsyncHandler {
	q := &asyncQueue{ch: make(chan pending, bufferSize)}
	workers = max(workers, 1)
	q.wg.Add(workers)
	for range workers {
		go q.run()
	}
	return &AsyncHandler{inner: inner, q: q}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle queues a clone of rec. Records logged after Close are dropped.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler signature
	h.q.mu.RLock()
	defer h.q.mu.RUnlock()
	if h.q.closed {
		h.q.dropped.Add(1)
		return nil
	}
	select {
	case h.q.ch <- pending{handler: h.inner, rec: rec.Clone()}:
	default:
		h.q.dropped.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), q: h.q}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), q: h.q}
}

// DroppedCount returns how many records were discarded.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.q.dropped.Load()
}

// Close writes out everything still buffered and stops the writers. It is
// safe to call more than once.
func (h *AsyncHandler) Close() {
	h.q.mu.Lock()
	if h.q.closed {
		h.q.mu.Unlock()
		return
	}
	h.q.closed = true
	close(h.q.ch)
	h.q.mu.Unlock()

	h.q.wg.Wait()
	if n := h.q.dropped.Load(); n > 0 {
		r := slog.NewRecord(time.Now(), slog.LevelWarn, "async logger dropped records", 0)
		r.AddAttrs(slog.Int64("dropped", n))
		_ = h.inner.Handle(context.Background(), r)
	}
}
