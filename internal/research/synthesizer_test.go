package research_test

import (
	"context"
	"errors"

	"deepresearch.app/orchestrator/common/llm"
	"deepresearch.app/orchestrator/internal/domain"
	"deepresearch.app/orchestrator/internal/research"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Synthesizer", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("requests a large output budget and returns the model's free text", func() {
		var captured llm.Request
		mock := &mockLLMClient{
			chatTextFn: func(ctx context.Context, req llm.Request) (string, *llm.Response, error) {
				captured = req
				return "final write-up", &llm.Response{}, nil
			},
		}

		synth := research.NewSynthesizer(mock)
		text, err := synth.Synthesize(ctx, "topic", []domain.Finding{{Text: "f", Source: "s"}}, []string{"summary"}, "o1-mini")

		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("final write-up"))
		Expect(captured.MaxTokens).To(Equal(16000))
		Expect(captured.Schema).To(BeNil())
		Expect(captured.UserPrompt).To(ContainSubstring("topic"))
		Expect(captured.UserPrompt).To(ContainSubstring("[From s]: f"))
		Expect(captured.UserPrompt).To(ContainSubstring("[Summary]: summary"))
	})

	It("wraps a transport error", func() {
		mock := &mockLLMClient{
			chatTextFn: func(ctx context.Context, req llm.Request) (string, *llm.Response, error) {
				return "", nil, errors.New("rate limited")
			},
		}

		synth := research.NewSynthesizer(mock)
		_, err := synth.Synthesize(ctx, "topic", nil, nil, "o1-mini")

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("rate limited"))
	})
})
