// Package handler implements the HTTP surface: kick off a run and stream
// its events over SSE.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"deepresearch.app/orchestrator/common/id"
	"deepresearch.app/orchestrator/common/logger"
	"deepresearch.app/orchestrator/internal/research"
	"deepresearch.app/orchestrator/internal/sink"
	"deepresearch.app/orchestrator/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// ResearchHandler wires the Research Loop to HTTP: POST kicks off a run in
// a background goroutine and returns immediately with a run ID; GET streams
// that run's events over SSE by tailing its Redis stream.
type ResearchHandler struct {
	loop            *research.Loop
	redis           *redis.Client
	runs            *store.RunStore
	findings        *store.FindingsStore
	streamKeyPrefix string
}

func NewResearchHandler(loop *research.Loop, redisClient *redis.Client, runs *store.RunStore, findings *store.FindingsStore, streamKeyPrefix string) *ResearchHandler {
	return &ResearchHandler{
		loop:            loop,
		redis:           redisClient,
		runs:            runs,
		findings:        findings,
		streamKeyPrefix: streamKeyPrefix,
	}
}

type startRequest struct {
	Topic    string `json:"topic" binding:"required"`
	// MaxDepth is a pointer so an omitted field (run at the server default)
	// is distinguishable from an explicit 0 (skip the loop body entirely).
	MaxDepth         *int `json:"maxDepth"`
	TimeLimitSeconds int  `json:"timeLimitSeconds"`
}

// Start kicks off a research run and returns its ID without waiting for
// completion; the caller follows up with Stream to observe progress.
func (h *ResearchHandler) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID := strconv.FormatInt(id.New(), 10)
	ctx := c.Request.Context()

	if err := h.runs.Create(ctx, runID, req.Topic); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record run"})
		return
	}

	input := research.Input{
		Topic:    req.Topic,
		MaxDepth: req.MaxDepth,
		RunID:    runID,
	}
	if req.TimeLimitSeconds > 0 {
		input.TimeLimit = time.Duration(req.TimeLimitSeconds) * time.Second
	}

	evtSink := sink.NewRedisSink(h.redis, h.streamName(runID))

	// The run outlives this request's context, so it continues on a detached
	// background context. traceID links the detached run's span back to the
	// request that kicked it off.
	traceID := trace.SpanContextFromContext(ctx).TraceID().String()

	go h.run(traceID, input, evtSink)

	c.JSON(http.StatusAccepted, gin.H{"runId": runID})
}

func (h *ResearchHandler) run(traceID string, input research.Input, evtSink *sink.RedisSink) {
	sc := logger.StartSpanFromTraceID(context.Background(), traceID, "research.run")
	defer sc.End()
	ctx := sc.Context()

	result := h.loop.Run(ctx, input, evtSink)

	if err := h.runs.Complete(ctx, input.RunID, result.Success, result.CompletedSteps, result.TotalSteps, result.Error); err != nil {
		return
	}

	// domain.Result carries no summaries, so the stored document's summaries
	// list is empty; only findings and analysis are persisted.
	if h.findings != nil {
		_ = h.findings.SaveRun(ctx, input.RunID, input.Topic, *result, nil)
	}
}

// Get returns a run's ledger row.
func (h *ResearchHandler) Get(c *gin.Context) {
	runID := c.Param("id")

	run, err := h.runs.Get(c.Request.Context(), runID)
	if err != nil {
		if err == store.ErrRunNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// Stream tails a run's Redis stream over SSE until the client disconnects
// or a finish event is observed.
func (h *ResearchHandler) Stream(c *gin.Context) {
	runID := c.Param("id")
	ctx := c.Request.Context()

	setSSEHeaders(c.Writer)
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	stream := h.streamName(runID)
	lastID := c.Query("last_id")
	if lastID == "" {
		lastID = "0"
	}

	sseWrite(c.Writer, "ping", "ready")
	flusher.Flush()

	clientClosed := ctx.Done()

	for {
		select {
		case <-clientClosed:
			return
		default:
		}

		res, err := h.redis.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Block:   25 * time.Second,
			Count:   100,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				sseWrite(c.Writer, "ping", time.Now().UTC().Format(time.RFC3339Nano))
				flusher.Flush()
				continue
			}
			if ctx.Err() != nil {
				return
			}
			sseWrite(c.Writer, "error", map[string]string{"error": err.Error()})
			flusher.Flush()
			continue
		}

		for _, streamRes := range res {
			for _, msg := range streamRes.Messages {
				lastID = msg.ID
				eventType, _ := msg.Values["type"].(string)
				sseWrite(c.Writer, eventType, msg.Values["payload"])
				flusher.Flush()
				if eventType == "finish" {
					return
				}
			}
		}
	}
}

func (h *ResearchHandler) streamName(runID string) string {
	return h.streamKeyPrefix + runID
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

func sseWrite(w http.ResponseWriter, event string, data any) {
	payload := marshalPayload(data)
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(payload, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
}

func marshalPayload(data any) string {
	switch payload := data.(type) {
	case string:
		return payload
	case []byte:
		return string(payload)
	default:
		bytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Sprintf("%v", data)
		}
		return string(bytes)
	}
}
