package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// defaultQueueSize bounds the async record buffer.
const defaultQueueSize = 1024

type queuedRecord struct {
	ctx context.Context
	rec slog.Record
}

// AsyncHandler decouples logging calls from I/O: records are queued and
// written by a single background worker. When the queue is full the record is
// dropped and counted rather than blocking the scoring pipeline.
type AsyncHandler struct {
	inner   slog.Handler
	queue   chan queuedRecord
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsyncHandler wraps inner with a buffered queue of the given size.
func NewAsyncHandler(inner slog.Handler, queueSize int) *AsyncHandler {
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	h := &AsyncHandler{
		inner: inner,
		queue: make(chan queuedRecord, queueSize),
		done:  make(chan struct{}),
	}
	go h.drain()
	return h
}

func (h *AsyncHandler) drain() {
	defer close(h.done)
	for q := range h.queue {
		_ = h.inner.Handle(q.ctx, q.rec)
	}
}

// Enabled defers to the wrapped handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record without blocking. Records are cloned before
// crossing the goroutine boundary.
func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error {
	select {
	case h.queue <- queuedRecord{ctx: ctx, rec: rec.Clone()}:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler sharing this queue with extra attributes.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &attrAsyncHandler{parent: h, attrs: attrs}
}

// WithGroup returns a handler sharing this queue under a group.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &groupAsyncHandler{parent: h, group: name}
}

// Dropped reports how many records were discarded on a full queue.
func (h *AsyncHandler) Dropped() int64 {
	return h.dropped.Load()
}

// Close stops accepting records, waits for the queue to drain, and writes a
// final record when anything was dropped. Safe to call more than once.
func (h *AsyncHandler) Close() {
	h.closeOnce.Do(func() {
		close(h.queue)
		<-h.done
		if n := h.Dropped(); n > 0 {
			rec := slog.NewRecord(time.Now(), slog.LevelWarn, "async logger dropped records", 0)
			rec.AddAttrs(slog.Int64("dropped", n))
			_ = h.inner.Handle(context.Background(), rec)
		}
	})
}

// attrAsyncHandler applies attributes before enqueueing on the parent.
type attrAsyncHandler struct {
	parent *AsyncHandler
	attrs  []slog.Attr
}

func (h *attrAsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.parent.Enabled(ctx, level)
}

func (h *attrAsyncHandler) Handle(ctx context.Context, rec slog.Record) error {
	rec = rec.Clone()
	rec.AddAttrs(h.attrs...)
	return h.parent.Handle(ctx, rec)
}

func (h *attrAsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &attrAsyncHandler{parent: h.parent, attrs: merged}
}

func (h *attrAsyncHandler) WithGroup(name string) slog.Handler {
	return &groupAsyncHandler{parent: h.parent, group: name}
}

// groupAsyncHandler nests attributes under a group before enqueueing.
type groupAsyncHandler struct {
	parent *AsyncHandler
	group  string
}

func (h *groupAsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.parent.Enabled(ctx, level)
}

func (h *groupAsyncHandler) Handle(ctx context.Context, rec slog.Record) error {
	attrs := make([]any, 0, rec.NumAttrs())
	rec.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	grouped := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	grouped.AddAttrs(slog.Group(h.group, attrs...))
	return h.parent.Handle(ctx, grouped)
}

func (h *groupAsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &attrAsyncHandler{parent: h.parent, attrs: attrs}
}

func (h *groupAsyncHandler) WithGroup(name string) slog.Handler {
	return &groupAsyncHandler{parent: h.parent, group: name}
}
