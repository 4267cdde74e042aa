package research_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"deepresearch.app/orchestrator/common/llm"
	"deepresearch.app/orchestrator/internal/domain"
	"deepresearch.app/orchestrator/internal/extract"
	"deepresearch.app/orchestrator/internal/research"
	"deepresearch.app/orchestrator/internal/search"
	"deepresearch.app/orchestrator/internal/sink"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Loop", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	plannerResponse := func(summary string, gaps []string, shouldContinue bool) map[string]any {
		return map[string]any{
			"analysis": map[string]any{
				"summary":        summary,
				"gaps":           gaps,
				"nextSteps":      []string{},
				"shouldContinue": shouldContinue,
			},
		}
	}

	writeResult := func(payload map[string]any, result any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, result)
	}

	Describe("happy path at depth 1", func() {
		It("emits the full event sequence and returns all findings", func() {
			clients := research.Clients{
				Search: &search.MockClient{
					SearchFn: func(ctx context.Context, query string) (search.Result, error) {
						return search.Result{
							Success: true,
							Results: []domain.SourceDescriptor{
								{URL: "https://a/", Title: "A"},
								{URL: "https://b/", Title: "B"},
								{URL: "https://c/", Title: "C"},
							},
						}, nil
					},
				},
				Extract: &extract.MockClient{
					ExtractFn: func(ctx context.Context, url, prompt string) (extract.Result, error) {
						return extract.Result{
							Success:  true,
							Findings: []domain.Finding{{Text: "finding from " + url, Source: url}},
						}, nil
					},
				},
				Reasoning: &mockLLMClient{
					chatFn: func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
						return &llm.Response{}, writeResult(plannerResponse("done", nil, false), result)
					},
					chatTextFn: func(ctx context.Context, req llm.Request) (string, *llm.Response, error) {
						return "final analysis", &llm.Response{}, nil
					},
				},
			}

			loop := research.NewLoop(clients, research.Config{MaxDepth: 1, TimeLimit: 5 * time.Second, MaxFailedAttempts: 3, ReasoningModel: "o1-mini"})
			rec := sink.NewRecordingSink()

			result := loop.Run(ctx, research.Input{Topic: "What is X?", MaxDepth: research.IntPtr(1)}, rec)

			Expect(result.Success).To(BeTrue())
			Expect(result.Findings).To(HaveLen(3))
			Expect(result.Analysis).To(Equal("final analysis"))

			events := rec.Events()
			Expect(events[0].Type).To(Equal(domain.EventProgressInit))
			Expect(events[len(events)-1].Type).To(Equal(domain.EventFinish))

			var sawDepthDelta, sawSearchComplete, sawAnalyzeComplete, sawSynthComplete bool
			sourceDeltas := 0
			for _, e := range events {
				switch e.Type {
				case domain.EventDepthDelta:
					sawDepthDelta = true
					Expect(e.DepthDelta.Current).To(Equal(1))
				case domain.EventSourceDelta:
					sourceDeltas++
				case domain.EventActivityDelta:
					if e.ActivityDelta.Type == domain.ActivitySearch && e.ActivityDelta.Status == domain.StatusComplete {
						sawSearchComplete = true
					}
					if e.ActivityDelta.Type == domain.ActivityAnalyze && e.ActivityDelta.Status == domain.StatusComplete {
						sawAnalyzeComplete = true
					}
					if e.ActivityDelta.Type == domain.ActivitySynthesis && e.ActivityDelta.Status == domain.StatusComplete {
						sawSynthComplete = true
					}
				}
			}
			Expect(sawDepthDelta).To(BeTrue())
			Expect(sourceDeltas).To(Equal(3))
			Expect(sawSearchComplete).To(BeTrue())
			Expect(sawAnalyzeComplete).To(BeTrue())
			Expect(sawSynthComplete).To(BeTrue())
		})
	})

	Describe("extract partial failure", func() {
		It("drops the failing URL's findings but keeps the others", func() {
			clients := research.Clients{
				Search: &search.MockClient{
					SearchFn: func(ctx context.Context, query string) (search.Result, error) {
						return search.Result{
							Success: true,
							Results: []domain.SourceDescriptor{
								{URL: "https://good-a.example/"},
								{URL: "https://bad.example/"},
								{URL: "https://good-b.example/"},
							},
						}, nil
					},
				},
				Extract: &extract.MockClient{
					ExtractFn: func(ctx context.Context, url, prompt string) (extract.Result, error) {
						if url == "https://bad.example/" {
							return extract.Result{Success: false, Error: "extract failed"}, nil
						}
						return extract.Result{Success: true, Findings: []domain.Finding{{Text: "ok", Source: url}}}, nil
					},
				},
				Reasoning: &mockLLMClient{
					chatFn: func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
						return &llm.Response{}, writeResult(plannerResponse("done", nil, false), result)
					},
					chatTextFn: func(ctx context.Context, req llm.Request) (string, *llm.Response, error) {
						return "final analysis", &llm.Response{}, nil
					},
				},
			}

			loop := research.NewLoop(clients, research.Config{MaxDepth: 1, TimeLimit: 5 * time.Second, MaxFailedAttempts: 3, ReasoningModel: "o1-mini"})
			rec := sink.NewRecordingSink()

			result := loop.Run(ctx, research.Input{Topic: "topic", MaxDepth: research.IntPtr(1)}, rec)

			Expect(result.Success).To(BeTrue())
			Expect(result.Findings).To(HaveLen(2))
			for _, f := range result.Findings {
				Expect(f.Source).NotTo(Equal("https://bad.example/"))
			}

			var sawExtractError bool
			for _, e := range rec.Events() {
				if e.Type == domain.EventActivityDelta && e.ActivityDelta.Type == domain.ActivityExtract && e.ActivityDelta.Status == domain.StatusError {
					sawExtractError = true
					Expect(e.ActivityDelta.Message).To(ContainSubstring("bad.example"))
				}
			}
			Expect(sawExtractError).To(BeTrue())
		})
	})

	Describe("three consecutive planner failures", func() {
		It("aborts the loop but still synthesizes", func() {
			clients := research.Clients{
				Search: &search.MockClient{
					SearchFn: func(ctx context.Context, query string) (search.Result, error) {
						return search.Result{Success: true, Results: []domain.SourceDescriptor{{URL: "https://a/"}}}, nil
					},
				},
				Extract: &extract.MockClient{
					ExtractFn: func(ctx context.Context, url, prompt string) (extract.Result, error) {
						return extract.Result{Success: true, Findings: []domain.Finding{{Text: "f", Source: url}}}, nil
					},
				},
				Reasoning: &mockLLMClient{
					chatFn: func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
						return &llm.Response{}, errors.New("planner unavailable")
					},
					chatTextFn: func(ctx context.Context, req llm.Request) (string, *llm.Response, error) {
						return "final analysis despite failures", &llm.Response{}, nil
					},
				},
			}

			loop := research.NewLoop(clients, research.Config{MaxDepth: 7, TimeLimit: 5 * time.Second, MaxFailedAttempts: 3, ReasoningModel: "o1-mini"})
			rec := sink.NewRecordingSink()

			result := loop.Run(ctx, research.Input{Topic: "topic", MaxDepth: research.IntPtr(7)}, rec)

			Expect(result.Success).To(BeTrue())
			Expect(result.Analysis).To(Equal("final analysis despite failures"))

			var finishCount, depthDeltas int
			for _, e := range rec.Events() {
				if e.Type == domain.EventFinish {
					finishCount++
				}
				if e.Type == domain.EventDepthDelta {
					depthDeltas++
				}
			}
			Expect(finishCount).To(Equal(1))
			Expect(depthDeltas).To(Equal(3))
		})
	})

	Describe("deadline exhaustion mid-depth", func() {
		It("still synthesizes and returns success", func() {
			clients := research.Clients{
				Search: &search.MockClient{
					SearchFn: func(ctx context.Context, query string) (search.Result, error) {
						time.Sleep(30 * time.Millisecond)
						return search.Result{Success: true, Results: []domain.SourceDescriptor{{URL: "https://a/"}}}, nil
					},
				},
				Extract: &extract.MockClient{
					ExtractFn: func(ctx context.Context, url, prompt string) (extract.Result, error) {
						time.Sleep(30 * time.Millisecond)
						return extract.Result{Success: true, Findings: []domain.Finding{{Text: "f", Source: url}}}, nil
					},
				},
				Reasoning: &mockLLMClient{
					chatFn: func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
						return &llm.Response{}, writeResult(plannerResponse("done", []string{"more"}, true), result)
					},
					chatTextFn: func(ctx context.Context, req llm.Request) (string, *llm.Response, error) {
						return "final analysis", &llm.Response{}, nil
					},
				},
			}

			loop := research.NewLoop(clients, research.Config{MaxDepth: 7, TimeLimit: 50 * time.Millisecond, MaxFailedAttempts: 3, ReasoningModel: "o1-mini"})
			rec := sink.NewRecordingSink()

			result := loop.Run(ctx, research.Input{Topic: "topic", MaxDepth: research.IntPtr(7)}, rec)

			Expect(result.Success).To(BeTrue())
			var finishCount, depthDeltas int
			for _, e := range rec.Events() {
				if e.Type == domain.EventFinish {
					finishCount++
				}
				if e.Type == domain.EventDepthDelta {
					depthDeltas++
				}
			}
			Expect(finishCount).To(Equal(1))
			Expect(depthDeltas).To(Equal(1))
		})
	})

	Describe("planner instructs stop with gaps", func() {
		It("stops immediately and does not mutate currentTopic", func() {
			var synthPrompt string
			clients := research.Clients{
				Search: &search.MockClient{
					SearchFn: func(ctx context.Context, query string) (search.Result, error) {
						return search.Result{Success: true, Results: []domain.SourceDescriptor{{URL: "https://a/"}}}, nil
					},
				},
				Extract: &extract.MockClient{
					ExtractFn: func(ctx context.Context, url, prompt string) (extract.Result, error) {
						return extract.Result{Success: true, Findings: []domain.Finding{{Text: "f", Source: url}}}, nil
					},
				},
				Reasoning: &mockLLMClient{
					chatFn: func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
						return &llm.Response{}, writeResult(plannerResponse("done", []string{"g1", "g2"}, false), result)
					},
					chatTextFn: func(ctx context.Context, req llm.Request) (string, *llm.Response, error) {
						synthPrompt = req.UserPrompt
						return "final analysis", &llm.Response{}, nil
					},
				},
			}

			loop := research.NewLoop(clients, research.Config{MaxDepth: 7, TimeLimit: 5 * time.Second, MaxFailedAttempts: 3, ReasoningModel: "o1-mini"})
			rec := sink.NewRecordingSink()

			result := loop.Run(ctx, research.Input{Topic: "topic", MaxDepth: research.IntPtr(7)}, rec)

			Expect(result.Success).To(BeTrue())
			var depthDeltas int
			for _, e := range rec.Events() {
				if e.Type == domain.EventDepthDelta {
					depthDeltas++
				}
			}
			Expect(depthDeltas).To(Equal(1))
			Expect(synthPrompt).To(ContainSubstring("Original topic: topic\n"))
		})
	})

	Describe("explicit MaxDepth of zero", func() {
		It("never enters the loop body and synthesizes against an empty findings set", func() {
			clients := research.Clients{
				Search: &search.MockClient{
					SearchFn: func(ctx context.Context, query string) (search.Result, error) {
						Fail("search should not be called when MaxDepth is 0")
						return search.Result{}, nil
					},
				},
				Extract: &extract.MockClient{
					ExtractFn: func(ctx context.Context, url, prompt string) (extract.Result, error) {
						Fail("extract should not be called when MaxDepth is 0")
						return extract.Result{}, nil
					},
				},
				Reasoning: &mockLLMClient{
					chatFn: func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
						Fail("planner should not be called when MaxDepth is 0")
						return &llm.Response{}, nil
					},
					chatTextFn: func(ctx context.Context, req llm.Request) (string, *llm.Response, error) {
						return "final analysis", &llm.Response{}, nil
					},
				},
			}

			loop := research.NewLoop(clients, research.Config{MaxDepth: 7, TimeLimit: 5 * time.Second, MaxFailedAttempts: 3, ReasoningModel: "o1-mini"})
			rec := sink.NewRecordingSink()

			result := loop.Run(ctx, research.Input{Topic: "topic", MaxDepth: research.IntPtr(0)}, rec)

			Expect(result.Success).To(BeTrue())
			Expect(result.Findings).To(BeEmpty())
			Expect(result.Analysis).To(Equal("final analysis"))

			events := rec.Events()
			Expect(events[0].Type).To(Equal(domain.EventProgressInit))
			Expect(events[len(events)-1].Type).To(Equal(domain.EventFinish))

			var depthDeltas int
			for _, e := range events {
				if e.Type == domain.EventDepthDelta {
					depthDeltas++
				}
			}
			Expect(depthDeltas).To(Equal(0))
		})
	})
})
