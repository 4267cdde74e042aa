package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"deepresearch.app/orchestrator/internal/domain"
)

// ErrBufferFull is returned by Emit when the bounded buffer is full and the
// event was dropped rather than delivered. The caller must treat this as a
// failed emit — e.g. not count the dropped event toward completedSteps —
// since the consumer never actually observed it.
var ErrBufferFull = errors.New("event sink buffer full")

// ChannelSink is an in-process EventSink for a CLI or in-memory consumer.
// Emit never blocks the Research Loop: once the bounded buffer is full, new
// events are dropped rather than awaited.
type ChannelSink struct {
	ch     chan domain.Event
	closed atomic.Bool
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan domain.Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event domain.Event) error {
	if s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- event:
		return nil
	default:
		slog.WarnContext(ctx, "event sink buffer full, dropping event",
			"component", "research.orchestrator.sink", "type", event.Type)
		return ErrBufferFull
	}
}

// Events returns the channel events are delivered on. The consumer must
// drain it for the sink to make progress once the buffer fills.
func (s *ChannelSink) Events() <-chan domain.Event {
	return s.ch
}

// Close marks the sink disconnected: subsequent Emit calls are no-ops,
// since a disconnected consumer can no longer make progress on its buffer.
func (s *ChannelSink) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
