package search

import "context"

// MockClient is a hand-rolled function-field mock, matching the corpus's
// test style (no mocking framework).
type MockClient struct {
	SearchFn func(ctx context.Context, query string) (Result, error)
}

func (m *MockClient) Search(ctx context.Context, query string) (Result, error) {
	return m.SearchFn(ctx, query)
}
