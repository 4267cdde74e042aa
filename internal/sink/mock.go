package sink

import (
	"context"
	"sync"

	"deepresearch.app/orchestrator/internal/domain"
)

// RecordingSink is a thread-safe in-memory sink used by tests to assert on
// the emitted event sequence.
type RecordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	emitFn func(ctx context.Context, event domain.Event) error
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Emit(ctx context.Context, event domain.Event) error {
	if s.emitFn != nil {
		if err := s.emitFn(ctx, event); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *RecordingSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}
