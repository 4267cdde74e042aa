package research_test

import (
	"context"

	"deepresearch.app/orchestrator/common/llm"
)

type mockLLMClient struct {
	chatFn     func(ctx context.Context, req llm.Request, result any) (*llm.Response, error)
	chatTextFn func(ctx context.Context, req llm.Request) (string, *llm.Response, error)
}

func (m *mockLLMClient) Chat(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
	return m.chatFn(ctx, req, result)
}

func (m *mockLLMClient) ChatText(ctx context.Context, req llm.Request) (string, *llm.Response, error) {
	return m.chatTextFn(ctx, req)
}

func (m *mockLLMClient) Model() string {
	return "mock-model"
}
