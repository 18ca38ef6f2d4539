package domain

import (
	"fmt"
	"strings"
)

// Scenario is the role-play context a session runs in.
type Scenario struct {
	Category        string   `json:"category"`
	Description     string   `json:"description"`
	Role            string   `json:"role"`
	Objectives      []string `json:"objectives"`
	VocabularyFocus []string `json:"vocabularyFocus"`
	Level           Level    `json:"level"`
}

// Assigned reports whether scenario content has been filled in.
func (s Scenario) Assigned() bool {
	return s.Category != "" || s.Description != ""
}

// Validate checks that a scenario is complete enough to drive a session.
func (s Scenario) Validate() error {
	var missing []string
	if strings.TrimSpace(s.Category) == "" {
		missing = append(missing, "category")
	}
	if strings.TrimSpace(s.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(s.Role) == "" {
		missing = append(missing, "role")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidScenario, strings.Join(missing, ", "))
	}
	if !s.Level.Valid() {
		return fmt.Errorf("%w: unknown level %q", ErrInvalidScenario, s.Level)
	}
	for _, w := range s.VocabularyFocus {
		if strings.TrimSpace(w) == "" {
			return fmt.Errorf("%w: blank vocabulary entry", ErrInvalidScenario)
		}
	}
	return nil
}

// clone returns a deep copy so callers cannot mutate a session's scenario
// through shared slices.
func (s Scenario) clone() Scenario {
	out := s
	out.Objectives = append([]string(nil), s.Objectives...)
	out.VocabularyFocus = append([]string(nil), s.VocabularyFocus...)
	return out
}
