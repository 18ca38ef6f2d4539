package llm

import (
	"context"

	"github.com/soyeahso/parley/internal/logging"
)

// FailoverClient wraps a registry to try fallback providers on failure.
type FailoverClient struct {
	registry  *Registry
	primary   string
	fallbacks []string
	log       *logging.Logger
}

// NewFailoverClient creates a client that tries the primary provider first,
// then falls back through the list on retryable errors (401, 429, 5xx).
func NewFailoverClient(registry *Registry, primary string, fallbacks []string, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		registry:  registry,
		primary:   primary,
		fallbacks: fallbacks,
		log:       log.Sub("llm.failover"),
	}
}

// Name returns the primary provider name.
func (f *FailoverClient) Name() string {
	return f.primary
}

// Complete tries the primary provider, falling back on retryable errors.
func (f *FailoverClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	providers := append([]string{f.primary}, f.fallbacks...)

	var lastErr error
	for _, name := range providers {
		client, err := f.registry.Resolve(name)
		if err != nil {
			f.log.Debug().Str("provider", name).Err(err).Msg("provider not registered, skipping")
			lastErr = err
			continue
		}

		resp, err := client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return nil, err
		}

		if IsRetryable(err) {
			f.log.Warn().
				Str("provider", name).
				Err(err).
				Msg("retryable error, trying next provider")
			continue
		}

		// Non-retryable error, don't try more providers
		return nil, err
	}

	return nil, lastErr
}
