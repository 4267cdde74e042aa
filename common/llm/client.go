package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"deepresearch.app/orchestrator/common/logger"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client is the reasoning-model transport shared by the Planner (structured
// output) and the Synthesizer (free text). One HTTP-backed implementation,
// shared and stateless, safe for concurrent calls.
type Client interface {
	// Chat makes a structured-output call: the model's JSON response is
	// unmarshaled into result. If req.Schema is nil, BypassSchema must be
	// true and the response is parsed best-effort.
	Chat(ctx context.Context, req Request, result any) (*Response, error)
	// ChatText makes a free-text call with no schema constraint, used by
	// the Synthesizer.
	ChatText(ctx context.Context, req Request) (string, *Response, error)
	Model() string
}

type Request struct {
	SystemPrompt string
	UserPrompt   string
	SchemaName   string
	Schema       any
	MaxTokens    int
	Temperature  *float64 // nil = model default, explicit 0 = deterministic
	// BypassSchema, when true with Schema == nil, tells Chat to parse the
	// model's free-text reply as best-effort JSON instead of requesting a
	// JSON-schema-constrained response.
	BypassSchema bool
	// Model overrides the client's configured model for this call when
	// non-empty. Callers resolve a per-run model via ResolveReasoningModel
	// before setting this.
	Model string
}

type Response struct {
	PromptTokens     int
	CompletionTokens int
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

type client struct {
	openai openai.Client
	model  string
}

func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &client{
		openai: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (c *client) Chat(ctx context.Context, req Request, result any) (*Response, error) {
	if req.Schema == nil && !req.BypassSchema {
		return nil, fmt.Errorf("llm: structured call requires a schema (set BypassSchema to parse best-effort)")
	}

	slog.DebugContext(ctx, "llm chat request", "schema", req.SchemaName, "prompt", logger.Truncate(req.UserPrompt, 200))

	params := c.baseParams(req)
	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.SchemaName,
					Description: openai.String("Structured response schema"),
					Schema:      req.Schema,
					Strict:      openai.Bool(true),
				},
			},
		}
	}

	content, resp, err := c.complete(ctx, params)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(content), result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return resp, nil
}

func (c *client) ChatText(ctx context.Context, req Request) (string, *Response, error) {
	slog.DebugContext(ctx, "llm chat request", "prompt", logger.Truncate(req.UserPrompt, 200))

	content, resp, err := c.complete(ctx, c.baseParams(req))
	if err != nil {
		return "", nil, err
	}
	return content, resp, nil
}

func (c *client) baseParams(req Request) openai.ChatCompletionNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}

	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	params := openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		MaxTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	return params
}

func (c *client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, *Response, error) {
	start := time.Now()
	resp, err := c.openai.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", nil, fmt.Errorf("openai chat: %w", err)
	}

	slog.DebugContext(ctx, "llm chat completed",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("no choices in response")
	}

	return resp.Choices[0].Message.Content, &Response{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func (c *client) Model() string {
	return c.model
}

// reasoningModelPrefixes lists the OpenAI model families with first-class
// structured-output reasoning support. Anything else is substituted with
// the caller's configured default.
var reasoningModelPrefixes = []string{"o1", "o3", "o4", "gpt-5"}

// IsReasoningModel reports whether model qualifies as a reasoning model
// under the policy above.
func IsReasoningModel(model string) bool {
	for _, prefix := range reasoningModelPrefixes {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// ResolveReasoningModel returns model if it qualifies as a reasoning model,
// else falls back to defaultModel. Used by the Planner/Synthesizer to
// substitute a configured default when the caller's chat model doesn't
// qualify.
func ResolveReasoningModel(model, defaultModel string) string {
	if IsReasoningModel(model) {
		return model
	}
	return defaultModel
}

func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled or deadline exceeded")
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			slog.WarnContext(ctx, "llm rate limited, will retry",
				"status_code", apiErr.StatusCode)
			return true
		case apiErr.StatusCode >= 500:
			slog.WarnContext(ctx, "llm server error, will retry",
				"status_code", apiErr.StatusCode)
			return true
		default:
			slog.ErrorContext(ctx, "llm client error, not retryable",
				"status_code", apiErr.StatusCode,
				"error_type", apiErr.Type,
				"error_code", apiErr.Code)
			return false
		}
	}

	// Network errors (no API response) are generally retryable
	slog.WarnContext(ctx, "llm network error, will retry", "error", err)
	return true
}
