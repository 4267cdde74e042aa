package research

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Metrics is a debug-metrics record, one JSON file per run written when
// Config.DebugDir is set.
type Metrics struct {
	RunID          string        `json:"runId"`
	Topic          string        `json:"topic"`
	DepthsEntered  int           `json:"depthsEntered"`
	FailedAttempts int           `json:"failedAttempts"`
	FindingsCount  int           `json:"findingsCount"`
	Success        bool          `json:"success"`
	Duration       time.Duration `json:"durationNs"`
}

func runIDOrFallback(runID string, start time.Time) string {
	if runID != "" {
		return runID
	}
	return start.Format("20060102T150405.000000000")
}

func writeMetrics(ctx context.Context, debugDir, runID string, m Metrics) {
	if debugDir == "" {
		return
	}
	if err := os.MkdirAll(debugDir, 0o755); err != nil {
		slog.WarnContext(ctx, "failed to create debug dir", "component", "research.orchestrator.metrics", "error", err)
		return
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		slog.WarnContext(ctx, "failed to marshal run metrics", "component", "research.orchestrator.metrics", "error", err)
		return
	}

	path := filepath.Join(debugDir, runID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.WarnContext(ctx, "failed to write run metrics", "component", "research.orchestrator.metrics", "path", path, "error", err)
	}
}
