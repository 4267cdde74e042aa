package research_test

import (
	"sync"

	"deepresearch.app/orchestrator/internal/domain"
	"deepresearch.app/orchestrator/internal/research"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("State", func() {
	It("fixes totalExpectedSteps at construction as maxDepth*5", func() {
		state := research.NewState("topic", 7, 3)
		Expect(state.TotalExpectedSteps).To(Equal(35))
		Expect(state.CurrentTopic).To(Equal("topic"))
		Expect(state.MaxFailedAttempts).To(Equal(3))
	})

	It("appends findings and summaries without losing entries", func() {
		state := research.NewState("topic", 1, 3)
		state.AppendFinding(domain.Finding{Text: "a", Source: "s1"})
		state.AppendFindings([]domain.Finding{{Text: "b", Source: "s2"}, {Text: "c", Source: "s3"}})
		state.AppendSummary("summary 1")

		Expect(state.Findings()).To(HaveLen(3))
		Expect(state.Summaries()).To(ConsistOf("summary 1"))
	})

	It("ignores an empty AppendFindings call", func() {
		state := research.NewState("topic", 1, 3)
		state.AppendFindings(nil)
		Expect(state.Findings()).To(BeEmpty())
	})

	It("returns defensive copies that callers cannot mutate back into state", func() {
		state := research.NewState("topic", 1, 3)
		state.AppendFinding(domain.Finding{Text: "a", Source: "s1"})

		findings := state.Findings()
		findings[0].Text = "mutated"

		Expect(state.Findings()[0].Text).To(Equal("a"))
	})

	It("increments completedSteps atomically under concurrent callers", func() {
		state := research.NewState("topic", 1, 3)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				state.IncrementCompletedSteps()
			}()
		}
		wg.Wait()
		Expect(state.CompletedSteps).To(Equal(50))
	})

	It("reads a consistent snapshot while completedSteps is incremented concurrently", func() {
		state := research.NewState("topic", 1, 3)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				state.IncrementCompletedSteps()
				depth, completed, total := state.Snapshot()
				Expect(completed).To(BeNumerically(">=", 1))
				Expect(completed).To(BeNumerically("<=", 50))
				Expect(depth).To(Equal(0))
				Expect(total).To(Equal(5))
			}()
		}
		wg.Wait()
		_, completed, _ := state.Snapshot()
		Expect(completed).To(Equal(50))
	})

	It("appends findings safely from concurrent extract goroutines", func() {
		state := research.NewState("topic", 1, 3)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				state.AppendFindings([]domain.Finding{{Text: "f", Source: "s"}})
			}(i)
		}
		wg.Wait()
		Expect(state.Findings()).To(HaveLen(20))
	})
})
