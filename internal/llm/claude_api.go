package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultClaudeEndpoint = "https://api.anthropic.com"
	defaultClaudeModel    = "claude-sonnet-4-5"
	claudeAPIVersion      = "2023-06-01"
	defaultMaxTokens      = 1024
)

// ClaudeAPIClient is a direct HTTP client for the Anthropic Messages API.
type ClaudeAPIClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewClaudeAPIClient creates a new Claude API client. An empty baseURL uses
// the public endpoint.
func NewClaudeAPIClient(apiKey, model, baseURL string) *ClaudeAPIClient {
	if model == "" {
		model = defaultClaudeModel
	}
	if baseURL == "" {
		baseURL = defaultClaudeEndpoint
	}
	return &ClaudeAPIClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Complete sends a completion request to the Messages API.
func (c *ClaudeAPIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	payload, err := json.Marshal(c.buildRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", claudeAPIVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(c.Name(), resp.StatusCode, respBody)
	}

	var result claudeAPIResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return c.responseToCompletion(&result, time.Since(start)), nil
}

// Name returns the provider name.
func (c *ClaudeAPIClient) Name() string {
	return "claude"
}

func (c *ClaudeAPIClient) buildRequestBody(req CompletionRequest) claudeRequest {
	model := c.model
	if req.Model != "" && strings.HasPrefix(req.Model, "claude-") {
		model = req.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := claudeRequest{
		Model:       model,
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		// The Messages API takes the system prompt separately.
		if m.Role == RoleSystem {
			if body.System == "" {
				body.System = m.Content
			}
			continue
		}
		body.Messages = append(body.Messages, Message{Role: m.Role, Content: m.Content})
	}
	return body
}

func (c *ClaudeAPIClient) responseToCompletion(resp *claudeAPIResponse, duration time.Duration) *CompletionResponse {
	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &CompletionResponse{
		Content:    content.String(),
		StopReason: resp.StopReason,
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
		Model:    resp.Model,
		Duration: duration,
	}
}

// API request/response structures

type claudeRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type claudeAPIResponse struct {
	ID         string               `json:"id"`
	Type       string               `json:"type"`
	Role       string               `json:"role"`
	Content    []claudeContentBlock `json:"content"`
	Model      string               `json:"model"`
	StopReason string               `json:"stop_reason"`
	Usage      claudeUsage          `json:"usage"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
