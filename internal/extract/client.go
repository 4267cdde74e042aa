// Package extract wraps the external structured-extraction provider
// (Firecrawl) for a single URL. Like search, failures are values.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"deepresearch.app/orchestrator/internal/domain"
)

// Result is the Extract Client's return value.
type Result struct {
	Success  bool
	Findings []domain.Finding
	Error    string
}

// Client extracts structured findings from one URL given a prompt. No
// retries; every returned finding carries the requested URL as Source
// regardless of what the service reports back.
type Client interface {
	Extract(ctx context.Context, url, prompt string) (Result, error)
}

type firecrawlClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

func New(apiKey string, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	return &firecrawlClient{
		httpClient: httpClient,
		apiKey:     apiKey,
		baseURL:    "https://api.firecrawl.dev/v1",
	}
}

type extractRequest struct {
	URLs   []string `json:"urls"`
	Prompt string   `json:"prompt"`
}

// extractDatum is a single extracted record. The provider may return one
// object or a list of these; extractResponse.Data holds either shape raw
// and normalizeData turns it into a slice.
type extractDatum struct {
	Text string `json:"text"`
}

type extractResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *firecrawlClient) Extract(ctx context.Context, url, prompt string) (Result, error) {
	body, err := json.Marshal(extractRequest{URLs: []string{url}, Prompt: prompt})
	if err != nil {
		return Result{}, fmt.Errorf("encode extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	var parsed extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("decode extract response: %v", err)}, nil
	}

	if !parsed.Success {
		return Result{Success: false, Error: parsed.Error}, nil
	}

	data, err := normalizeData(parsed.Data)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("normalize extract data: %v", err)}, nil
	}

	findings := make([]domain.Finding, 0, len(data))
	for _, d := range data {
		findings = append(findings, domain.Finding{Text: d.Text, Source: url})
	}

	return Result{Success: true, Findings: findings}, nil
}

// normalizeData accepts either a single JSON object or an array and
// returns a uniform slice: the provider may return either a single record
// or a list, and the caller normalizes both shapes into [Finding].
func normalizeData(raw json.RawMessage) ([]extractDatum, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list []extractDatum
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var single extractDatum
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return []extractDatum{single}, nil
}
