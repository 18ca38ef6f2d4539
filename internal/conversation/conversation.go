// Package conversation generates the partner's replies and the learner's
// follow-up suggestions.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/llm"
	"github.com/soyeahso/parley/internal/logging"
)

// Service produces partner replies and suggestions for a session.
type Service interface {
	// GenerateReply returns the partner's next line given the learner's input,
	// the scenario and the turns so far.
	GenerateReply(ctx context.Context, input string, sc domain.Scenario, history []domain.Turn) (string, error)

	// GenerateSuggestions returns at most domain.MaxSuggestions things the
	// learner could say in response to reply.
	GenerateSuggestions(ctx context.Context, reply string, sc domain.Scenario) ([]string, error)
}

const replySystemPrompt = "You are a friendly conversation partner helping someone practice English. " +
	"Stay fully in character for the given scenario. " +
	"Always reply in no more than two sentences and always end with a question " +
	"that naturally keeps the conversation going."

// LLMService implements Service on top of an llm.Client.
type LLMService struct {
	client llm.Client
	log    *logging.Logger
}

// NewLLMService creates a conversation service backed by client.
func NewLLMService(client llm.Client, log *logging.Logger) *LLMService {
	return &LLMService{client: client, log: log.Sub("conversation")}
}

// GenerateReply asks the model for an in-character reply.
func (s *LLMService) GenerateReply(ctx context.Context, input string, sc domain.Scenario, history []domain.Turn) (string, error) {
	start := time.Now()
	resp, err := s.client.Complete(ctx, llm.CompletionRequest{
		System:      replySystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: replyPrompt(input, sc, history)}},
		Temperature: llm.Float(1),
	})
	if err != nil {
		return "", &domain.GenerationError{Op: "reply", Err: err}
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", &domain.GenerationError{Op: "reply", Err: errors.New("empty reply")}
	}

	s.log.Debug().
		Str("provider", s.client.Name()).
		Dur("duration", time.Since(start)).
		Int("outputTokens", resp.Usage.OutputTokens).
		Msg("reply generated")
	return reply, nil
}

// GenerateSuggestions asks the model, acting as a tutor, for numbered
// suggestions and parses them out of the reply.
func (s *LLMService) GenerateSuggestions(ctx context.Context, reply string, sc domain.Scenario) ([]string, error) {
	resp, err := s.client.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: suggestionPrompt(reply, sc)}},
		Temperature: llm.Float(1),
	})
	if err != nil {
		return nil, &domain.GenerationError{Op: "suggestions", Err: err}
	}
	return ParseSuggestions(resp.Content), nil
}

func replyPrompt(input string, sc domain.Scenario, history []domain.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario: %s\n", sc.Description)
	fmt.Fprintf(&b, "Role: %s\n", sc.Role)
	fmt.Fprintf(&b, "Difficulty: %s\n", sc.Level)
	b.WriteString("Conversation history so far:\n")
	for i, t := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "User: %s\nAI: %s", t.UserInput, t.AIResponse)
	}
	fmt.Fprintf(&b, "\n\nThe learner just said: %s\n\n", input)
	b.WriteString("Give your next reply now.")
	return b.String()
}

func suggestionPrompt(reply string, sc domain.Scenario) string {
	return fmt.Sprintf("Assume the role of a language tutor. Based on this response %q, "+
		"suggest %d possible responses that the user could say or do in the conversation. "+
		"Ensure suitability for a learner of CEFR %s. "+
		"Each suggestion should be well thought-out, and 1-2 sentences. Output as a numbered list.",
		reply, domain.MaxSuggestions, sc.Level)
}

// ParseSuggestions extracts list items from a model response. Only lines
// starting with a digit or a dash count; their markers are stripped and at
// most domain.MaxSuggestions are kept.
func ParseSuggestions(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !(line[0] >= '0' && line[0] <= '9' || line[0] == '-') {
			continue
		}
		cleaned := strings.TrimSpace(strings.TrimLeft(line, "0123456789.- "))
		if cleaned == "" {
			continue
		}
		out = append(out, cleaned)
		if len(out) == domain.MaxSuggestions {
			break
		}
	}
	return out
}
