package research

import (
	"context"
	"fmt"
	"strings"

	"deepresearch.app/orchestrator/common/llm"
	"deepresearch.app/orchestrator/internal/domain"
)

// synthesizerMaxTokens is the large output budget the terminal synthesis
// call requires (≥16k output tokens).
const synthesizerMaxTokens = 16000

// Synthesizer makes the terminal reasoning-model call: one large-context,
// unstructured free-text invocation over everything the loop accumulated.
type Synthesizer struct {
	client llm.Client
}

func NewSynthesizer(client llm.Client) *Synthesizer {
	return &Synthesizer{client: client}
}

// Synthesize makes the terminal call. model is the per-run reasoning model
// resolved by the Loop.
func (s *Synthesizer) Synthesize(ctx context.Context, topic string, findings []domain.Finding, summaries []string, model string) (string, error) {
	req := llm.Request{
		SystemPrompt: synthesizerSystemPrompt,
		UserPrompt:   synthesizerPrompt(topic, findings, summaries),
		MaxTokens:    synthesizerMaxTokens,
		Model:        model,
	}

	text, _, err := s.client.ChatText(ctx, req)
	if err != nil {
		return "", fmt.Errorf("synthesizer chat: %w", err)
	}
	return text, nil
}

const synthesizerSystemPrompt = `You are the final synthesis stage of an iterative research agent.
Write a thorough, well-organized answer to the original topic using only
the findings and summaries provided. Do not fabricate sources.`

func synthesizerPrompt(topic string, findings []domain.Finding, summaries []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original topic: %s\n", topic)
	b.WriteString("Findings:\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "[From %s]: %s\n", f.Source, f.Text)
	}
	b.WriteString("Summaries:\n")
	for _, sm := range summaries {
		fmt.Fprintf(&b, "[Summary]: %s\n", sm)
	}
	return b.String()
}
