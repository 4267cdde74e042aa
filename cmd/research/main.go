// Command research is a one-shot CLI runner for the Research Loop: it takes
// a topic on the command line, drains events to stderr as they arrive, and
// prints the final result to stdout.
//
// Wires clients from the environment and runs a single bounded research
// loop to completion rather than an interactive session.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"deepresearch.app/orchestrator/common/llm"
	"deepresearch.app/orchestrator/internal/domain"
	"deepresearch.app/orchestrator/internal/extract"
	"deepresearch.app/orchestrator/internal/research"
	"deepresearch.app/orchestrator/internal/search"
	"deepresearch.app/orchestrator/internal/sink"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	topic := strings.TrimSpace(strings.Join(os.Args[1:], " "))
	if topic == "" {
		fmt.Fprintln(os.Stderr, "usage: research <topic>")
		os.Exit(1)
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "OPENAI_API_KEY is required")
		os.Exit(1)
	}

	firecrawlKey := os.Getenv("FIRECRAWL_API_KEY")
	if firecrawlKey == "" {
		fmt.Fprintln(os.Stderr, "FIRECRAWL_API_KEY is required")
		os.Exit(1)
	}

	model := getEnv("REASONING_MODEL", "o1-mini")
	maxDepth := getEnvInt("MAX_DEPTH", 7)
	timeLimit := getEnvDuration("TIME_LIMIT", 4*time.Minute+30*time.Second)

	reasoningClient, err := llm.New(llm.Config{
		APIKey: apiKey,
		Model:  model,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create reasoning client: %v\n", err)
		os.Exit(1)
	}

	bypassJSONValidation, _ := strconv.ParseBool(os.Getenv("BYPASS_JSON_VALIDATION"))

	loop := research.NewLoop(research.Clients{
		Search:    search.New(firecrawlKey, nil),
		Extract:   extract.New(firecrawlKey, nil),
		Reasoning: reasoningClient,
	}, research.Config{
		MaxDepth:             maxDepth,
		TimeLimit:            timeLimit,
		MaxFailedAttempts:    3,
		ReasoningModel:       model,
		BypassJSONValidation: bypassJSONValidation,
		DebugDir:             os.Getenv("RESEARCH_DEBUG_DIR"),
	})

	evtSink := sink.NewChannelSink(64)

	fmt.Fprintf(os.Stderr, "Researching: %s\n", topic)
	fmt.Fprintln(os.Stderr, "---")

	done := make(chan *domain.Result, 1)
	go func() {
		result := loop.Run(context.Background(), research.Input{
			Topic:     topic,
			MaxDepth:  research.IntPtr(maxDepth),
			TimeLimit: timeLimit,
		}, evtSink)
		evtSink.Close()
		done <- result
	}()

	for event := range evtSink.Events() {
		printEvent(event)
	}

	result := <-done

	fmt.Println("\n=== Result ===")
	if result.Success {
		fmt.Println(result.Analysis)
	} else {
		fmt.Fprintf(os.Stderr, "research failed: %s\n", result.Error)
	}
	fmt.Fprintf(os.Stderr, "\nsteps: %d/%d, findings: %d\n", result.CompletedSteps, result.TotalSteps, len(result.Findings))
}

func printEvent(event domain.Event) {
	switch event.Type {
	case domain.EventProgressInit:
		fmt.Fprintf(os.Stderr, "[init] maxDepth=%d totalSteps=%d\n", event.ProgressInit.MaxDepth, event.ProgressInit.TotalSteps)
	case domain.EventDepthDelta:
		fmt.Fprintf(os.Stderr, "[depth] %d/%d (%d/%d steps)\n",
			event.DepthDelta.Current, event.DepthDelta.Max, event.DepthDelta.CompletedSteps, event.DepthDelta.TotalSteps)
	case domain.EventActivityDelta:
		fmt.Fprintf(os.Stderr, "[activity] %s: %s (%s)\n", event.ActivityDelta.Type, event.ActivityDelta.Status, event.ActivityDelta.Message)
	case domain.EventSourceDelta:
		fmt.Fprintf(os.Stderr, "[source] %s\n", event.SourceDelta.URL)
	case domain.EventFinish:
		fmt.Fprintln(os.Stderr, "[finish]")
	default:
		payload, _ := json.Marshal(event)
		fmt.Fprintf(os.Stderr, "[event] %s\n", payload)
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
