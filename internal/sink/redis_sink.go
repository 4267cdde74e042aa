package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"deepresearch.app/orchestrator/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisSink publishes events to a per-run Redis stream, trimmed to
// maxStreamLen entries via MAXLEN so a disconnected or slow consumer
// can't let it grow unbounded.
type RedisSink struct {
	client       *redis.Client
	stream       string
	maxStreamLen int64

	disconnected atomic.Bool
}

func NewRedisSink(client *redis.Client, stream string) *RedisSink {
	return &RedisSink{client: client, stream: stream, maxStreamLen: 2000}
}

func (s *RedisSink) Emit(ctx context.Context, event domain.Event) error {
	if s.disconnected.Load() {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxStreamLen,
		Approx: true,
		Values: map[string]any{
			"type":    string(event.Type),
			"payload": payload,
		},
	}).Err(); err != nil {
		slog.WarnContext(ctx, "event sink publish failed",
			"component", "research.orchestrator.sink", "stream", s.stream, "error", err)
		return err
	}
	return nil
}

// MarkDisconnected elides further writes once the SSE consumer has gone
// away. The Loop keeps running to completion regardless.
func (s *RedisSink) MarkDisconnected() {
	s.disconnected.Store(true)
}
