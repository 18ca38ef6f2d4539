package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel    = "gemini-2.0-flash"
)

// GeminiAPIClient is a direct HTTP client for the Google Gemini API.
type GeminiAPIClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGeminiAPIClient creates a new Gemini API client.
func NewGeminiAPIClient(apiKey, model, baseURL string) *GeminiAPIClient {
	if model == "" {
		model = defaultGeminiModel
	}
	if baseURL == "" {
		baseURL = defaultGeminiEndpoint
	}
	return &GeminiAPIClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Complete sends a generateContent request.
func (g *GeminiAPIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	payload, err := json.Marshal(g.buildRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.baseURL, g.model, url.QueryEscape(g.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		// The URL carries the key; drop it from the error.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(g.Name(), resp.StatusCode, respBody)
	}

	var result geminiAPIResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return g.responseToCompletion(&result, time.Since(start)), nil
}

// Name returns the provider name.
func (g *GeminiAPIClient) Name() string {
	return "gemini"
}

func (g *GeminiAPIClient) buildRequestBody(req CompletionRequest) geminiRequest {
	body := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: g.buildPrompt(req)}},
		}},
	}
	if req.MaxTokens > 0 {
		body.GenerationConfig.MaxOutputTokens = req.MaxTokens
	}
	body.GenerationConfig.Temperature = req.Temperature
	return body
}

func (g *GeminiAPIClient) buildPrompt(req CompletionRequest) string {
	var prompt strings.Builder

	if req.System != "" {
		prompt.WriteString(req.System)
		prompt.WriteString("\n\n")
	}

	for _, msg := range req.Messages {
		if msg.Role != RoleUser {
			fmt.Fprintf(&prompt, "%s: ", msg.Role)
		}
		prompt.WriteString(msg.Content)
		prompt.WriteString("\n\n")
	}

	return strings.TrimSpace(prompt.String())
}

func (g *GeminiAPIClient) responseToCompletion(resp *geminiAPIResponse, duration time.Duration) *CompletionResponse {
	var content strings.Builder
	stopReason := ""

	if len(resp.Candidates) > 0 {
		candidate := resp.Candidates[0]
		for _, part := range candidate.Content.Parts {
			content.WriteString(part.Text)
		}
		stopReason = candidate.FinishReason
	}

	return &CompletionResponse{
		Content:    content.String(),
		StopReason: stopReason,
		Usage: Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		},
		Model:    g.model,
		Duration: duration,
	}
}

// API request/response structures

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
		Temperature     *float64 `json:"temperature,omitempty"`
	} `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiAPIResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}
