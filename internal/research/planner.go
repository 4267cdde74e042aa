package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deepresearch.app/orchestrator/common/llm"
	"deepresearch.app/orchestrator/internal/domain"
)

// PlannerAnalysis is the Planner's structured-output contract. NextSearchTopic
// and URLToSearch are optional strings with "empty means absent" semantics.
type PlannerAnalysis struct {
	Summary         string   `json:"summary" jsonschema_description:"Plain-language summary of what was learned this depth"`
	Gaps            []string `json:"gaps" jsonschema_description:"Open questions the research has not yet answered"`
	NextSteps       []string `json:"nextSteps" jsonschema_description:"Concrete next actions, informational only"`
	ShouldContinue  bool     `json:"shouldContinue" jsonschema_description:"Whether the loop should run another depth"`
	NextSearchTopic string   `json:"nextSearchTopic,omitempty" jsonschema_description:"Search query for the next depth, empty if unchanged"`
	URLToSearch     string   `json:"urlToSearch,omitempty" jsonschema_description:"A URL worth extracting next depth, empty if none"`
}

// plannerOutput is the wire envelope; the schema wraps PlannerAnalysis in
// an "analysis" object.
type plannerOutput struct {
	Analysis PlannerAnalysis `json:"analysis"`
}

// Planner calls the reasoning model for a structured continuation plan,
// a single-shot structured-output call rather than a tool-calling loop.
type Planner struct {
	client llm.Client
	bypass bool
}

func NewPlanner(client llm.Client, bypassJSONValidation bool) *Planner {
	return &Planner{client: client, bypass: bypassJSONValidation}
}

// Plan calls the reasoning model with the current findings and remaining
// time budget. model is the per-run reasoning model resolved by the Loop.
// If less than one minute remains, the model is instructed to set
// shouldContinue=false; as a safety net the result is also forced to false
// programmatically, since a prompt instruction is not a guarantee.
func (p *Planner) Plan(ctx context.Context, topic string, findings []domain.Finding, remaining time.Duration, model string) (*PlannerAnalysis, error) {
	prompt := plannerPrompt(topic, findings, remaining)

	req := llm.Request{
		SystemPrompt: plannerSystemPrompt,
		UserPrompt:   prompt,
		SchemaName:   "research_plan",
		MaxTokens:    2000,
		Temperature:  llm.Temp(0.2),
		BypassSchema: p.bypass,
		Model:        model,
	}
	if !p.bypass {
		req.Schema = llm.GenerateSchema[plannerOutput]()
	}

	var out plannerOutput
	if _, err := p.client.Chat(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("planner chat: %w", err)
	}

	if remaining < time.Minute {
		out.Analysis.ShouldContinue = false
	}

	return &out.Analysis, nil
}

const plannerSystemPrompt = `You are the planning stage of an iterative research agent.
Given the current research topic and everything extracted so far, decide
whether the research is sufficient or should continue. Identify concrete
gaps, propose a next search topic or a specific URL worth extracting, and
set shouldContinue accordingly. Respond only with the requested JSON.`

func plannerPrompt(topic string, findings []domain.Finding, remaining time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original topic: %s\n", topic)
	fmt.Fprintf(&b, "Remaining time: %.1f minutes\n", remaining.Minutes())
	if remaining < time.Minute {
		b.WriteString("Less than one minute remains: you must set shouldContinue=false.\n")
	}
	b.WriteString("Findings so far:\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "[From %s]: %s\n", f.Source, f.Text)
	}
	return b.String()
}
