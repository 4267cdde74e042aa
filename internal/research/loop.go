package research

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"deepresearch.app/orchestrator/common/llm"
	"deepresearch.app/orchestrator/common/logger"
	"deepresearch.app/orchestrator/internal/domain"
	"deepresearch.app/orchestrator/internal/sink"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxExtractFanout bounds the Extract phase's intra-depth parallelism: up
// to 3 search-derived URLs plus one Planner-hinted URL.
const maxExtractFanout = 4

// Input is the Research Loop's invocation contract. A zero TimeLimit falls
// back to the Loop's Config default. MaxDepth is a pointer so that an
// explicit zero (the loop body never runs; synthesis still runs against an
// empty findings set) is distinguishable from "caller didn't set it, fall
// back to Config.MaxDepth" — IntPtr builds one from a literal.
type Input struct {
	Topic     string
	MaxDepth  *int
	TimeLimit time.Duration
	// ChatModel is the caller's requested model. When empty, or when it
	// doesn't qualify as a reasoning model, the Loop substitutes
	// Config.ReasoningModel.
	ChatModel string
	// RunID tags the debug metrics file when Config.DebugDir is set.
	RunID string
}

func IntPtr(i int) *int { return &i }

// Loop is the Research Loop: the orchestrator that owns one Research State
// for the lifetime of one invocation.
//
// An iteration-budget loop with parallel fan-out via a semaphore and a
// typed, retryable error boundary.
type Loop struct {
	clients Clients
	cfg     Config
	planner *Planner
	synth   *Synthesizer
}

func NewLoop(clients Clients, cfg Config) *Loop {
	return &Loop{
		clients: clients,
		cfg:     cfg,
		planner: NewPlanner(clients.Reasoning, cfg.BypassJSONValidation),
		synth:   NewSynthesizer(clients.Reasoning),
	}
}

// resolveModel applies the model selection policy: the caller's requested
// chat model is used only if it qualifies as a reasoning model, else the
// configured default is substituted.
func (l *Loop) resolveModel(chatModel string) string {
	defaultModel := l.cfg.ReasoningModel
	if defaultModel == "" {
		defaultModel = DefaultConfig().ReasoningModel
	}
	if chatModel == "" {
		return defaultModel
	}
	return llm.ResolveReasoningModel(chatModel, defaultModel)
}

// Run executes Search→Extract→Analyze depths until convergence or budget
// exhaustion, then synthesizes a final answer. It never panics or returns
// an error across this boundary: every path ends in a domain.Result.
func (l *Loop) Run(ctx context.Context, input Input, evtSink sink.EventSink) (result *domain.Result) {
	maxDepth := l.cfg.MaxDepth
	if input.MaxDepth != nil {
		maxDepth = *input.MaxDepth
	}
	timeLimit := input.TimeLimit
	if timeLimit == 0 {
		timeLimit = l.cfg.TimeLimit
	}
	maxFailedAttempts := l.cfg.MaxFailedAttempts
	if maxFailedAttempts == 0 {
		maxFailedAttempts = DefaultConfig().MaxFailedAttempts
	}
	model := l.resolveModel(input.ChatModel)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "research.orchestrator.loop",
		RunID:     logger.Ptr(input.RunID),
		Topic:     logger.Ptr(input.Topic),
	})

	state := NewState(input.Topic, maxDepth, maxFailedAttempts)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "research loop panicked", "panic", r)
			l.emitActivity(ctx, evtSink, state, domain.ActivityThought, domain.StatusError,
				fmt.Sprintf("Research failed: %v", r))
			result = &domain.Result{
				Success:        false,
				Findings:       state.Findings(),
				Error:          fmt.Sprintf("%v", r),
				CompletedSteps: state.CompletedSteps,
				TotalSteps:     state.TotalExpectedSteps,
			}
		}
	}()

	if l.cfg.DebugDir != "" {
		defer func() {
			writeMetrics(ctx, l.cfg.DebugDir, runIDOrFallback(input.RunID, start), Metrics{
				RunID:          input.RunID,
				Topic:          input.Topic,
				DepthsEntered:  state.CurrentDepth,
				FailedAttempts: state.FailedAttempts,
				FindingsCount:  len(state.Findings()),
				Success:        result != nil && result.Success,
				Duration:       time.Since(start),
			})
		}()
	}

	l.emit(ctx, evtSink, domain.NewProgressInit(maxDepth, state.TotalExpectedSteps))

	for state.CurrentDepth < maxDepth {
		elapsed := time.Since(start)
		if elapsed >= timeLimit {
			break
		}

		state.CurrentDepth++
		l.emit(ctx, evtSink, domain.NewDepthDelta(state.CurrentDepth, maxDepth, state.CompletedSteps, state.TotalExpectedSteps))

		remaining := timeLimit - elapsed
		outcome := l.runDepth(ctx, evtSink, state, maxFailedAttempts, remaining, model)
		if outcome == depthOutcomeAbort || outcome == depthOutcomeStop {
			break
		}
	}

	return l.synthesize(ctx, evtSink, state, model)
}

type depthOutcome int

const (
	depthOutcomeContinue depthOutcome = iota
	depthOutcomeStop
	depthOutcomeAbort
)

// runDepth executes one Search→Extract→Analyze cycle. It returns whether
// the loop should abort (consecutive-failure cap reached), stop (the
// Planner returned shouldContinue=false or no gaps; state.CurrentTopic is
// left unchanged), or continue. The caller breaks on abort and stop alike.
func (l *Loop) runDepth(ctx context.Context, evtSink sink.EventSink, state *State, maxFailedAttempts int, remaining time.Duration, model string) depthOutcome {
	searchTopic := state.NextSearchTopic
	if searchTopic == "" {
		searchTopic = state.CurrentTopic
	}

	l.emitActivity(ctx, evtSink, state, domain.ActivitySearch, domain.StatusPending, fmt.Sprintf("Searching for %s", searchTopic))
	searchSpan := logger.StartSpan(ctx, "research.search")
	searchResult, err := l.clients.Search.Search(ctx, searchTopic)
	if err != nil {
		searchSpan.RecordError(err)
	}
	searchSpan.End()
	if err != nil || !searchResult.Success {
		rerr := NewRetryableError(fmt.Errorf("search: %s", searchFailureMessage(err, searchResult.Error)))
		l.emitActivity(ctx, evtSink, state, domain.ActivitySearch, domain.StatusError, rerr.Error())
		state.FailedAttempts++
		if state.FailedAttempts >= maxFailedAttempts {
			return depthOutcomeAbort
		}
		return depthOutcomeContinue
	}

	l.emitActivity(ctx, evtSink, state, domain.ActivitySearch, domain.StatusComplete,
		fmt.Sprintf("Found %d results", len(searchResult.Results)))
	for _, r := range searchResult.Results {
		l.emit(ctx, evtSink, domain.NewSourceDelta(r.URL, r.Title, r.Description))
	}

	urls := extractBatch(searchResult.Results, state.URLToSearch)
	l.runExtractFanout(ctx, evtSink, state, urls)

	l.emitActivity(ctx, evtSink, state, domain.ActivityAnalyze, domain.StatusPending, "Analyzing findings")
	planSpan := logger.StartSpan(ctx, "research.planner")
	plan, err := l.planner.Plan(ctx, state.CurrentTopic, state.Findings(), remaining, model)
	if err != nil {
		planSpan.RecordError(err)
	}
	planSpan.End()
	if err != nil {
		rerr := NewRetryableError(err)
		slog.DebugContext(ctx, "planner call failed", "transport_retryable", llm.IsRetryable(ctx, err))
		l.emitActivity(ctx, evtSink, state, domain.ActivityAnalyze, domain.StatusError, rerr.Error())
		state.FailedAttempts++
		if state.FailedAttempts >= maxFailedAttempts {
			return depthOutcomeAbort
		}
		return depthOutcomeContinue
	}

	state.NextSearchTopic = plan.NextSearchTopic
	state.URLToSearch = plan.URLToSearch
	state.AppendSummary(plan.Summary)
	l.emitActivity(ctx, evtSink, state, domain.ActivityAnalyze, domain.StatusComplete, plan.Summary)

	if !plan.ShouldContinue || len(plan.Gaps) == 0 {
		return depthOutcomeStop
	}
	state.CurrentTopic = plan.Gaps[0]
	return depthOutcomeContinue
}

// extractBatch takes the first 3 search-derived URLs and prepends the
// Planner's URL hint if present, filtering empties before fan-out.
func extractBatch(results []domain.SourceDescriptor, urlHint string) []string {
	urls := make([]string, 0, maxExtractFanout)
	if urlHint != "" {
		urls = append(urls, urlHint)
	}
	limit := 3
	if len(results) < limit {
		limit = len(results)
	}
	for i := 0; i < limit; i++ {
		if results[i].URL != "" {
			urls = append(urls, results[i].URL)
		}
	}
	return urls
}

// runExtractFanout fans out one concurrent Extract call per URL, bounded by
// a semaphore of maxExtractFanout; State's mutex serializes the findings
// appends.
func (l *Loop) runExtractFanout(ctx context.Context, evtSink sink.EventSink, state *State, urls []string) {
	if len(urls) == 0 {
		return
	}

	sem := make(chan struct{}, maxExtractFanout)
	var wg sync.WaitGroup

	for _, u := range urls {
		u := u
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			l.extractOne(ctx, evtSink, state, u)
		}()
	}

	wg.Wait()
}

func (l *Loop) extractOne(ctx context.Context, evtSink sink.EventSink, state *State, rawURL string) {
	l.emitActivity(ctx, evtSink, state, domain.ActivityExtract, domain.StatusPending, fmt.Sprintf("Extracting %s", rawURL))

	extractSpan := logger.StartSpan(ctx, "research.extract", trace.WithAttributes(attribute.String("url", rawURL)))
	result, err := l.clients.Extract.Extract(ctx, rawURL, extractPrompt(state.CurrentTopic))
	if err != nil {
		extractSpan.RecordError(err)
	}
	extractSpan.End()
	if err != nil || !result.Success {
		l.emitActivity(ctx, evtSink, state, domain.ActivityExtract, domain.StatusError,
			fmt.Sprintf("Failed to extract %s: %s", hostOf(rawURL), extractFailureMessage(err, result.Error)))
		return
	}

	state.AppendFindings(result.Findings)
	l.emitActivity(ctx, evtSink, state, domain.ActivityExtract, domain.StatusComplete,
		fmt.Sprintf("Extracted %d findings from %s", len(result.Findings), hostOf(rawURL)))
}

func extractPrompt(topic string) string {
	return fmt.Sprintf("Extract information relevant to: %s", topic)
}

// synthesize runs the terminal Synthesizer call and emits the finish
// event. It is reached on every loop exit path, including consecutive
// failures and deadline exhaustion.
func (l *Loop) synthesize(ctx context.Context, evtSink sink.EventSink, state *State, model string) *domain.Result {
	l.emitActivity(ctx, evtSink, state, domain.ActivitySynthesis, domain.StatusPending, "Preparing final analysis")

	findings := state.Findings()
	synthSpan := logger.StartSpan(ctx, "research.synthesizer")
	analysis, err := l.synth.Synthesize(ctx, state.CurrentTopic, findings, state.Summaries(), model)
	if err != nil {
		synthSpan.RecordError(err)
	}
	synthSpan.End()
	if err != nil {
		ferr := NewFatalError(err)
		l.emitActivity(ctx, evtSink, state, domain.ActivitySynthesis, domain.StatusError, ferr.Error())
		l.emitActivity(ctx, evtSink, state, domain.ActivityThought, domain.StatusError, fmt.Sprintf("Research failed: %v", ferr))
		return &domain.Result{
			Success:        false,
			Findings:       findings,
			Error:          ferr.Error(),
			CompletedSteps: state.CompletedSteps,
			TotalSteps:     state.TotalExpectedSteps,
		}
	}

	l.emitActivity(ctx, evtSink, state, domain.ActivitySynthesis, domain.StatusComplete, "Research completed")
	l.emit(ctx, evtSink, domain.NewFinish(analysis))

	return &domain.Result{
		Success:        true,
		Findings:       findings,
		Analysis:       analysis,
		CompletedSteps: state.CompletedSteps,
		TotalSteps:     state.TotalExpectedSteps,
	}
}

func (l *Loop) emit(ctx context.Context, evtSink sink.EventSink, event domain.Event) {
	if err := evtSink.Emit(ctx, event); err != nil {
		slog.DebugContext(ctx, "sink emit failed", "component", "research.orchestrator.loop", "type", event.Type, "error", err)
	}
}

// emitActivity emits an activity event and, on success, increments
// completedSteps only if the status is complete and the emit itself
// succeeded.
func (l *Loop) emitActivity(ctx context.Context, evtSink sink.EventSink, state *State, t domain.ActivityType, status domain.ActivityStatus, message string) {
	depth, completedSteps, totalExpectedSteps := state.Snapshot()
	event := domain.NewActivityDelta(t, status, message, depth, completedSteps, totalExpectedSteps)
	err := evtSink.Emit(ctx, event)
	if err != nil {
		slog.DebugContext(ctx, "sink emit failed", "component", "research.orchestrator.loop", "type", t, "error", err)
		return
	}
	if status == domain.StatusComplete {
		state.IncrementCompletedSteps()
	}
}

func searchFailureMessage(err error, apiErr string) string {
	if err != nil {
		return err.Error()
	}
	return apiErr
}

func extractFailureMessage(err error, apiErr string) string {
	if err != nil {
		return err.Error()
	}
	return apiErr
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}
