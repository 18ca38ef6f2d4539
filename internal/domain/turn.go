package domain

import "time"

// MaxSuggestions caps the follow-up suggestions attached to a turn.
const MaxSuggestions = 4

// Suggestion is a tutor-style follow-up the learner could say next.
type Suggestion struct {
	Text  string `json:"text"`
	Level Level  `json:"level"`
}

// Turn is one learner-utterance / AI-response exchange.
type Turn struct {
	Number      int          `json:"number"`
	UserInput   string       `json:"userInput"`
	AIResponse  string       `json:"aiResponse"`
	Timestamp   time.Time    `json:"timestamp"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// NewSuggestions tags raw suggestion texts with a level, dropping blanks and
// keeping at most MaxSuggestions. It returns nil when nothing remains.
func NewSuggestions(texts []string, level Level) []Suggestion {
	var out []Suggestion
	for _, t := range texts {
		if t == "" {
			continue
		}
		out = append(out, Suggestion{Text: t, Level: level})
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}
