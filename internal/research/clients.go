package research

import (
	"deepresearch.app/orchestrator/common/llm"
	"deepresearch.app/orchestrator/internal/extract"
	"deepresearch.app/orchestrator/internal/search"
)

// Clients bundles the three external capabilities the Research Loop
// coordinates. Shared, stateless, safe for concurrent calls.
type Clients struct {
	Search    search.Client
	Extract   extract.Client
	Reasoning llm.Client
}
