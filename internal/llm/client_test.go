package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func testRequest() CompletionRequest {
	return CompletionRequest{
		System:      "You are a friendly waiter.",
		Messages:    []Message{{Role: RoleUser, Content: "A table for two, please."}},
		Temperature: Float(1),
	}
}

// --- Registry tests ---

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry(silentLog())

	mock := &MockClient{ProviderName: "test-provider"}
	reg.Register("test-provider", mock)

	client, err := reg.Resolve("test-provider")
	require.NoError(t, err)
	assert.Equal(t, "test-provider", client.Name())
}

func TestRegistryFallback(t *testing.T) {
	reg := NewRegistry(silentLog())

	reg.Register("default-llm", &MockClient{ProviderName: "default-llm"})
	reg.SetFallback("default-llm")

	// Unknown model should resolve to fallback
	client, err := reg.Resolve("unknown-model-xyz")
	require.NoError(t, err)
	assert.Equal(t, "default-llm", client.Name())
}

func TestRegistryResolveNotFound(t *testing.T) {
	reg := NewRegistry(silentLog())

	_, err := reg.Resolve("nonexistent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no LLM provider")
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("b", &MockClient{ProviderName: "b"})
	reg.Register("a", &MockClient{ProviderName: "a"})

	assert.Equal(t, []string{"a", "b"}, reg.List())
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"openai", "openai"},
		{"claude", "claude"},
		{"gemini", "gemini"},
		{"ollama", "ollama"},
		{"mock", "mock"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c, err := NewProvider(tt.provider, "key", "", "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Name())
		})
	}

	_, err := NewProvider("bedrock", "", "", "")
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	client, reg, err := NewFromConfig(config.LLMConfig{Provider: "mock"}, silentLog())
	require.NoError(t, err)
	assert.Equal(t, "mock", client.Name())
	assert.Equal(t, []string{"mock"}, reg.List())

	client, reg, err = NewFromConfig(config.LLMConfig{
		Provider: "openai",
		APIKey:   "sk",
		Fallbacks: []config.ProviderConfig{
			{Provider: "ollama", Model: "llama3"},
			{Provider: "openai"}, // already registered
		},
	}, silentLog())
	require.NoError(t, err)
	assert.IsType(t, &FailoverClient{}, client)
	assert.Equal(t, "openai", client.Name())
	assert.Equal(t, []string{"ollama", "openai"}, reg.List())

	// Model names are not provider names; they resolve to the primary.
	resolved, err := reg.Resolve("llama3")
	require.NoError(t, err)
	assert.Equal(t, "openai", resolved.Name())

	_, _, err = NewFromConfig(config.LLMConfig{Provider: "nope"}, silentLog())
	assert.Error(t, err)
}

// --- Mock tests ---

func TestMockClientComplete(t *testing.T) {
	mock := &MockClient{
		CompleteFunc: func(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return &CompletionResponse{Content: "echo: " + req.Messages[0].Content}, nil
		},
	}
	resp, err := mock.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "echo: A table for two, please.", resp.Content)
	assert.Equal(t, "mock", mock.Name())
}

func TestMockClientDefaultComplete(t *testing.T) {
	resp, err := (&MockClient{}).Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Content)
}

// --- HTTP provider tests ---

func TestOpenAIAPIClient_Complete(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"model": "gpt-4o-2024",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Right this way! Any allergies?"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7}
		}`)
	}))
	defer srv.Close()

	c := NewOpenAIAPIClient("sk-test", "", srv.URL+"/v1")
	resp, err := c.Complete(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "Right this way! Any allergies?", resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 7}, resp.Usage)

	assert.Equal(t, "gpt-4o", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.Equal(t, "You are a friendly waiter.", got.Messages[0].Content)
	assert.Equal(t, RoleUser, got.Messages[1].Role)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 1.0, *got.Temperature)
}

func TestOpenAIAPIClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer srv.Close()

	_, err := NewOpenAIAPIClient("sk", "", srv.URL).Complete(context.Background(), testRequest())
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "openai", pe.Provider)
}

func TestClaudeAPIClient_Complete(t *testing.T) {
	var got claudeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, claudeAPIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		fmt.Fprint(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-x",
			"content": [{"type": "text", "text": "Of course. "}, {"type": "text", "text": "Inside or outside?"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 9}
		}`)
	}))
	defer srv.Close()

	c := NewClaudeAPIClient("sk-ant", "", srv.URL)
	req := testRequest()
	req.Messages = append([]Message{{Role: RoleSystem, Content: "ignored, System is set"}}, req.Messages...)

	resp, err := c.Complete(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Of course. Inside or outside?", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 9, resp.Usage.OutputTokens)

	assert.Equal(t, defaultClaudeModel, got.Model)
	assert.Equal(t, "You are a friendly waiter.", got.System)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 1, "system messages are lifted out")
	assert.Equal(t, RoleUser, got.Messages[0].Role)
}

func TestGeminiAPIClient_Complete(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/"+defaultGeminiModel+":generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		fmt.Fprint(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Sure! For what time?"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 6}
		}`)
	}))
	defer srv.Close()

	resp, err := NewGeminiAPIClient("g-key", "", srv.URL).Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Sure! For what time?", resp.Content)
	assert.Equal(t, "STOP", resp.StopReason)
	assert.Equal(t, Usage{InputTokens: 5, OutputTokens: 6}, resp.Usage)

	require.Len(t, got.Contents, 1)
	assert.Contains(t, got.Contents[0].Parts[0].Text, "You are a friendly waiter.")
	assert.Contains(t, got.Contents[0].Parts[0].Text, "A table for two, please.")
}

func TestOllamaAPIClient_Complete(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"model": "llama3", "response": "Welcome! Do you have a reservation?", "done": true, "prompt_eval_count": 3, "eval_count": 8}`)
	}))
	defer srv.Close()

	resp, err := NewOllamaAPIClient(srv.URL+"/", "").Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Welcome! Do you have a reservation?", resp.Content)
	assert.Equal(t, 8, resp.Usage.OutputTokens)

	assert.Equal(t, defaultOllamaModel, got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, 1.0, got.Options["temperature"])
	assert.Contains(t, got.Prompt, "System: You are a friendly waiter.")
}

func TestHTTPClients_ProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": "rate limited"}`)
	}))
	defer srv.Close()

	clients := []Client{
		NewOpenAIAPIClient("k", "", srv.URL),
		NewClaudeAPIClient("k", "", srv.URL),
		NewGeminiAPIClient("k", "", srv.URL),
		NewOllamaAPIClient(srv.URL, ""),
	}
	for _, c := range clients {
		t.Run(c.Name(), func(t *testing.T) {
			_, err := c.Complete(context.Background(), testRequest())
			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, c.Name(), pe.Provider)
			assert.Equal(t, http.StatusTooManyRequests, pe.Code)
			assert.Contains(t, pe.Message, "rate limited")
			assert.True(t, IsRetryable(err))
		})
	}
}

func TestHTTPClients_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewOpenAIAPIClient("k", "", srv.URL).Complete(ctx, testRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

// --- Errors ---

func TestProviderErrorFormat(t *testing.T) {
	assert.Equal(t, "openai: 429 slow down", (&ProviderError{Provider: "openai", Code: 429, Message: "slow down"}).Error())
	assert.Equal(t, "ollama: no model", (&ProviderError{Provider: "ollama", Message: "no model"}).Error())
}

func TestAPIErrorTruncates(t *testing.T) {
	body := make([]byte, 2*maxErrorBody)
	for i := range body {
		body[i] = 'x'
	}
	pe := apiError("openai", 500, body)
	assert.Len(t, pe.Message, maxErrorBody+3)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &ProviderError{Code: 429}, true},
		{"503 wrapped", fmt.Errorf("call: %w", &ProviderError{Code: 503}), true},
		{"400", &ProviderError{Code: 400, Message: "bad request"}, false},
		{"overloaded text", errors.New("server overloaded"), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
