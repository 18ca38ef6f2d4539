package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/parley/internal/domain"
)

// DefaultScriptedReply is returned by Scripted when no reply is queued.
const DefaultScriptedReply = "That sounds great. What would you like to do next?"

// Script is one scripted outcome of a Scripted call.
type Script struct {
	Reply       string
	Suggestions []string
	Err         error

	// Delay before returning; a cancelled context ends the wait early.
	Delay time.Duration

	// Before runs ahead of the result, for side effects in tests.
	Before func(ctx context.Context)
}

// Call records one invocation of a Scripted service.
type Call struct {
	Op       string // "reply" | "suggestions"
	Input    string
	Scenario domain.Scenario
	History  int
}

// Scripted is a Service that plays back queued scripts in order. It is
// meant for tests and offline use; it is safe for concurrent use.
type Scripted struct {
	mu          sync.Mutex
	replies     []Script
	suggestions []Script
	calls       []Call
}

// NewScripted creates an empty Scripted service.
func NewScripted() *Scripted {
	return &Scripted{}
}

// AddReply queues a reply.
func (s *Scripted) AddReply(reply string) *Scripted {
	return s.AddReplyScript(Script{Reply: reply})
}

// AddReplyError queues a failing reply.
func (s *Scripted) AddReplyError(err error) *Scripted {
	return s.AddReplyScript(Script{Err: err})
}

// AddReplyScript queues a reply script.
func (s *Scripted) AddReplyScript(sc Script) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, sc)
	return s
}

// AddSuggestions queues a suggestion list.
func (s *Scripted) AddSuggestions(texts ...string) *Scripted {
	return s.AddSuggestionScript(Script{Suggestions: texts})
}

// AddSuggestionsError queues a failing suggestion call.
func (s *Scripted) AddSuggestionsError(err error) *Scripted {
	return s.AddSuggestionScript(Script{Err: err})
}

// AddSuggestionScript queues a suggestion script.
func (s *Scripted) AddSuggestionScript(sc Script) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestions = append(s.suggestions, sc)
	return s
}

// Calls returns a copy of the recorded calls.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Scripted) GenerateReply(ctx context.Context, input string, sc domain.Scenario, history []domain.Turn) (string, error) {
	script, ok := s.next(&s.replies, Call{Op: "reply", Input: input, Scenario: sc, History: len(history)})
	if !ok {
		script.Reply = DefaultScriptedReply
	}
	if err := play(ctx, script); err != nil {
		return "", &domain.GenerationError{Op: "reply", Err: err}
	}
	return script.Reply, nil
}

func (s *Scripted) GenerateSuggestions(ctx context.Context, reply string, sc domain.Scenario) ([]string, error) {
	script, _ := s.next(&s.suggestions, Call{Op: "suggestions", Input: reply, Scenario: sc})
	if err := play(ctx, script); err != nil {
		return nil, &domain.GenerationError{Op: "suggestions", Err: err}
	}
	if len(script.Suggestions) > domain.MaxSuggestions {
		return script.Suggestions[:domain.MaxSuggestions], nil
	}
	return script.Suggestions, nil
}

func (s *Scripted) next(queue *[]Script, call Call) (Script, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	if len(*queue) == 0 {
		return Script{}, false
	}
	sc := (*queue)[0]
	*queue = (*queue)[1:]
	return sc, true
}

func play(ctx context.Context, sc Script) error {
	if sc.Before != nil {
		sc.Before(ctx)
	}
	if sc.Delay > 0 {
		select {
		case <-time.After(sc.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err
}
