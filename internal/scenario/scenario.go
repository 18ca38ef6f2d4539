// Package scenario produces the role-play contexts practice sessions run in.
package scenario

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/parley/internal/domain"
)

// Source supplies scenarios for new sessions.
type Source interface {
	// Random picks a scenario from the built-in pools at the given level.
	Random(level domain.Level) (domain.Scenario, error)

	// Custom builds a scenario from a learner's own description.
	Custom(prompt string) (domain.Scenario, error)
}

// CustomLevel is the level assigned to learner-described scenarios.
const CustomLevel = domain.LevelB1

var (
	categories = []string{
		"restaurant",
		"travel booking",
		"job interview",
		"customer service",
		"negotiation of transaction",
	}
	objectives = []string{
		"practice polite requests",
		"use relevant vocabulary",
		"maintain social conventions",
		"ask for instructions",
	}
	roles = []string{
		"customer",
		"assistant",
		"owner",
		"manager",
		"employee reporting to manager",
	}
	vocabulary = []string{
		"please",
		"thank you",
		"have a good day!",
		"appointment",
		"concern",
	}
)

// Generator is the default Source. It is safe for concurrent use.
type Generator struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewGenerator returns a Generator seeded from the clock.
func NewGenerator() *Generator {
	return NewSeededGenerator(time.Now().UnixNano())
}

// NewSeededGenerator returns a Generator with a fixed seed, for reproducible picks.
func NewSeededGenerator(seed int64) *Generator {
	return &Generator{r: rand.New(rand.NewSource(seed))}
}

// Random returns a scenario with one category, role and objective drawn at
// random and the standard vocabulary focus.
func (g *Generator) Random(level domain.Level) (domain.Scenario, error) {
	if !level.Valid() {
		return domain.Scenario{}, fmt.Errorf("%w: unknown level %q", domain.ErrInvalidScenario, level)
	}

	g.mu.Lock()
	category := categories[g.r.Intn(len(categories))]
	objective := objectives[g.r.Intn(len(objectives))]
	role := roles[g.r.Intn(len(roles))]
	g.mu.Unlock()

	return domain.Scenario{
		Category:        category,
		Description:     "A detailed, realistic scenario involving an aspect of " + category,
		Role:            role,
		Objectives:      []string{objective},
		VocabularyFocus: append([]string(nil), vocabulary...),
		Level:           level,
	}, nil
}

// Custom uses the learner's prompt as category, description and role.
func (g *Generator) Custom(prompt string) (domain.Scenario, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return domain.Scenario{}, fmt.Errorf("%w: empty prompt", domain.ErrInvalidScenario)
	}
	return domain.Scenario{
		Category:    prompt,
		Description: prompt,
		Role:        prompt,
		Level:       CustomLevel,
	}, nil
}
