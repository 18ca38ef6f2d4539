package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/logging"
)

// Registry manages LLM provider clients by provider name.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	fallback string            // default provider name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered LLM provider")
}

// SetFallback sets the provider used when a name is not registered.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the client registered under name, or the fallback
// provider when name is unknown.
func (r *Registry) Resolve(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[name]; ok {
		return c, nil
	}

	// Fallback
	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}

	return nil, fmt.Errorf("no LLM provider %q", name)
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewProvider builds a single provider client from its settings.
func NewProvider(provider, apiKey, model, endpoint string) (Client, error) {
	switch provider {
	case "openai":
		return NewOpenAIAPIClient(apiKey, model, endpoint), nil
	case "claude":
		return NewClaudeAPIClient(apiKey, model, endpoint), nil
	case "gemini":
		return NewGeminiAPIClient(apiKey, model, endpoint), nil
	case "ollama":
		return NewOllamaAPIClient(endpoint, model), nil
	case "mock":
		return &MockClient{ProviderName: "mock"}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// NewFromConfig builds the configured primary provider and its fallbacks.
// The returned client tries them in order, moving on after retryable errors.
func NewFromConfig(cfg config.LLMConfig, log *logging.Logger) (Client, *Registry, error) {
	reg := NewRegistry(log)

	primary, err := NewProvider(cfg.Provider, cfg.APIKey, cfg.Model, cfg.Endpoint)
	if err != nil {
		return nil, nil, err
	}
	reg.Register(cfg.Provider, primary)
	reg.SetFallback(cfg.Provider)

	var fallbacks []string
	for _, fb := range cfg.Fallbacks {
		if _, exists := reg.clients[fb.Provider]; exists {
			continue
		}
		c, err := NewProvider(fb.Provider, fb.APIKey, fb.Model, fb.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		reg.Register(fb.Provider, c)
		fallbacks = append(fallbacks, fb.Provider)
	}

	if len(fallbacks) == 0 {
		return primary, reg, nil
	}
	return NewFailoverClient(reg, cfg.Provider, fallbacks, log), reg, nil
}
