package research

import (
	"sync"

	"deepresearch.app/orchestrator/internal/domain"
)

// State is the Research State: owned exclusively by one Research Loop
// invocation, never shared across invocations, and discarded after the
// final synthesis event. Findings and summaries are append-only.
//
// Only the extract fan-out writes to findings concurrently within one
// invocation; every mutator here takes the mutex so that holds regardless
// of caller.
type State struct {
	mu sync.Mutex

	findings  []domain.Finding
	summaries []string

	CurrentTopic    string
	NextSearchTopic string
	URLToSearch     string

	CurrentDepth      int
	FailedAttempts    int
	MaxFailedAttempts int

	CompletedSteps     int
	TotalExpectedSteps int
}

// NewState initializes a Research State for one invocation. totalExpectedSteps
// is fixed here and never revised.
func NewState(topic string, maxDepth, maxFailedAttempts int) *State {
	return &State{
		CurrentTopic:       topic,
		MaxFailedAttempts:  maxFailedAttempts,
		TotalExpectedSteps: maxDepth * 5,
	}
}

func (s *State) AppendFinding(f domain.Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings = append(s.findings, f)
}

func (s *State) AppendFindings(fs []domain.Finding) {
	if len(fs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings = append(s.findings, fs...)
}

func (s *State) AppendSummary(summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
}

// IncrementCompletedSteps is called only after a successful sink emit.
func (s *State) IncrementCompletedSteps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CompletedSteps++
	return s.CompletedSteps
}

// Snapshot reads depth and progress under the mutex. Needed because
// CompletedSteps is incremented concurrently by the extract fan-out's
// goroutines via IncrementCompletedSteps; reading CompletedSteps or
// CurrentDepth as bare struct fields from those same goroutines races
// with that increment.
func (s *State) Snapshot() (depth, completedSteps, totalExpectedSteps int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CurrentDepth, s.CompletedSteps, s.TotalExpectedSteps
}

func (s *State) Findings() []domain.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Finding, len(s.findings))
	copy(out, s.findings)
	return out
}

func (s *State) Summaries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.summaries))
	copy(out, s.summaries)
	return out
}
