// Package search wraps the external search provider (Firecrawl) behind a
// structural result type: failures are values, never exceptions.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"deepresearch.app/orchestrator/internal/domain"
)

// Result is the Search Client's return value. A non-success response is
// surfaced structurally; the Research Loop decides what to do with it.
type Result struct {
	Success bool
	Results []domain.SourceDescriptor
	Error   string
}

// Client calls the external search provider for a query. Implementations
// must not retry internally — the Research Loop owns retry policy via
// failedAttempts.
type Client interface {
	Search(ctx context.Context, query string) (Result, error)
}

type firecrawlClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// New constructs a Firecrawl-backed Client. apiKey is read once at startup;
// the returned Client is stateless and safe for concurrent calls.
func New(apiKey string, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &firecrawlClient{
		httpClient: httpClient,
		apiKey:     apiKey,
		baseURL:    "https://api.firecrawl.dev/v1",
	}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponseItem struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type searchResponse struct {
	Success bool                  `json:"success"`
	Data    []searchResponseItem  `json:"data"`
	Error   string                `json:"error"`
}

func (c *firecrawlClient) Search(ctx context.Context, query string) (Result, error) {
	body, err := json.Marshal(searchRequest{Query: query, Limit: 10})
	if err != nil {
		return Result{}, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("decode search response: %v", err)}, nil
	}

	if !parsed.Success {
		return Result{Success: false, Error: parsed.Error}, nil
	}

	results := make([]domain.SourceDescriptor, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		results = append(results, domain.SourceDescriptor{
			URL:         item.URL,
			Title:       item.Title,
			Description: item.Description,
		})
	}

	return Result{Success: true, Results: results}, nil
}
