package extract

import "context"

// MockClient is a hand-rolled function-field mock.
type MockClient struct {
	ExtractFn func(ctx context.Context, url, prompt string) (Result, error)
}

func (m *MockClient) Extract(ctx context.Context, url, prompt string) (Result, error) {
	return m.ExtractFn(ctx, url, prompt)
}
