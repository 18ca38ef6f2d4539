package domain

import "strings"

// Level is a coarse CEFR proficiency label.
type Level string

const (
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
)

// DefaultLevel is reported when no usable level is known.
const DefaultLevel = LevelA2

// Difficulty selectors accepted when a session is created.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

var difficultyLevels = map[string]Level{
	DifficultyEasy:   LevelA2,
	DifficultyMedium: LevelB1,
	DifficultyHard:   LevelB2,
}

// LevelForDifficulty maps a difficulty selector to its proficiency level.
// Selectors are matched case-insensitively after trimming.
func LevelForDifficulty(difficulty string) (Level, error) {
	lvl, ok := difficultyLevels[strings.ToLower(strings.TrimSpace(difficulty))]
	if !ok {
		return "", &DifficultyError{Difficulty: difficulty}
	}
	return lvl, nil
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelA2, LevelB1, LevelB2:
		return true
	}
	return false
}

// Or returns l if it is valid, otherwise fallback.
func (l Level) Or(fallback Level) Level {
	if l.Valid() {
		return l
	}
	return fallback
}
