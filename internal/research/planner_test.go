package research_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"deepresearch.app/orchestrator/common/llm"
	"deepresearch.app/orchestrator/internal/domain"
	"deepresearch.app/orchestrator/internal/research"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Planner", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	respondWith := func(shouldContinue bool) *mockLLMClient {
		return &mockLLMClient{
			chatFn: func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
				payload := map[string]any{
					"analysis": map[string]any{
						"summary":        "summary text",
						"gaps":           []string{"gap1"},
						"nextSteps":      []string{},
						"shouldContinue": shouldContinue,
					},
				}
				data, err := json.Marshal(payload)
				if err != nil {
					return nil, err
				}
				return &llm.Response{}, json.Unmarshal(data, result)
			},
		}
	}

	It("returns the model's shouldContinue when plenty of time remains", func() {
		planner := research.NewPlanner(respondWith(true), false)
		analysis, err := planner.Plan(ctx, "topic", []domain.Finding{{Text: "f", Source: "s"}}, 3*time.Minute, "o1-mini")
		Expect(err).NotTo(HaveOccurred())
		Expect(analysis.ShouldContinue).To(BeTrue())
		Expect(analysis.Gaps).To(ConsistOf("gap1"))
	})

	It("forces shouldContinue=false when less than a minute remains, overriding the model", func() {
		planner := research.NewPlanner(respondWith(true), false)
		analysis, err := planner.Plan(ctx, "topic", nil, 30*time.Second, "o1-mini")
		Expect(err).NotTo(HaveOccurred())
		Expect(analysis.ShouldContinue).To(BeFalse())
	})

	It("sets BypassSchema on the request when configured to bypass JSON validation", func() {
		var captured llm.Request
		mock := &mockLLMClient{
			chatFn: func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
				captured = req
				data, _ := json.Marshal(map[string]any{
					"analysis": map[string]any{"summary": "s", "shouldContinue": false},
				})
				return &llm.Response{}, json.Unmarshal(data, result)
			},
		}
		planner := research.NewPlanner(mock, true)
		_, err := planner.Plan(ctx, "topic", nil, 2*time.Minute, "o1-mini")
		Expect(err).NotTo(HaveOccurred())
		Expect(captured.BypassSchema).To(BeTrue())
		Expect(captured.Schema).To(BeNil())
	})

	It("wraps a transport error", func() {
		mock := &mockLLMClient{
			chatFn: func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
				return nil, errors.New("upstream unavailable")
			},
		}
		planner := research.NewPlanner(mock, false)
		_, err := planner.Plan(ctx, "topic", nil, 2*time.Minute, "o1-mini")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("upstream unavailable"))
	})
})
