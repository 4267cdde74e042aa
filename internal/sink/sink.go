// Package sink implements the Event Sink: a write-only, ordered channel of
// tagged events that must never block the Research Loop beyond a bounded
// buffer.
package sink

import (
	"context"

	"deepresearch.app/orchestrator/internal/domain"
)

// EventSink is the Research Loop's sole output side effect.
type EventSink interface {
	Emit(ctx context.Context, event domain.Event) error
}
