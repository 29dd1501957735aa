package flowguard

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// AuditEvent is one record on the internal audit trail. The trail is where
// precise failure causes live; flow return values stay generic.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	AccountID string            `json:"account_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events from the engine's trail worker.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit implements AuditSink.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel for consumption by the
// embedding application.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit implements AuditSink.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes events as JSON lines to an io.Writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a JSONWriterSink.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit implements AuditSink.
func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// auditTrail carries events from the flows to the configured sink without
// putting sink latency on the flow path. A single worker drains a bounded
// queue; what the queue cannot hold is either dropped and counted or waited
// on, per AuditConfig.DropIfFull.
type auditTrail struct {
	sink       AuditSink
	queue      chan AuditEvent
	quit       chan struct{}
	dropIfFull bool

	dropped atomic.Uint64
	closed  atomic.Bool
	stop    sync.Once
	idle    sync.WaitGroup
}

func newAuditTrail(cfg AuditConfig, sink AuditSink) *auditTrail {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	t := &auditTrail{
		sink:       sink,
		queue:      make(chan AuditEvent, size),
		quit:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
	}
	t.idle.Add(1)
	go t.deliver()

	return t
}

// deliver is the worker loop. Shutdown flushes whatever the queue still
// holds before returning.
func (t *auditTrail) deliver() {
	defer t.idle.Done()
	for {
		select {
		case event := <-t.queue:
			t.sink.Emit(context.Background(), event)
		case <-t.quit:
			for n := len(t.queue); n > 0; n-- {
				t.sink.Emit(context.Background(), <-t.queue)
			}
			return
		}
	}
}

// Emit queues an event for delivery. With DropIfFull set a full queue costs
// one counted drop instead of a stall.
func (t *auditTrail) Emit(ctx context.Context, event AuditEvent) {
	if t == nil || t.closed.Load() {
		return
	}

	if t.dropIfFull {
		select {
		case t.queue <- event:
		default:
			t.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case t.queue <- event:
	case <-ctx.Done():
	case <-t.quit:
	}
}

// Close flushes the queue and stops the worker. Idempotent.
func (t *auditTrail) Close() {
	if t == nil {
		return
	}
	t.stop.Do(func() {
		t.closed.Store(true)
		close(t.quit)
		t.idle.Wait()
	})
}

// Dropped returns how many events were discarded because the queue was full.
func (t *auditTrail) Dropped() uint64 {
	if t == nil {
		return 0
	}
	return t.dropped.Load()
}
