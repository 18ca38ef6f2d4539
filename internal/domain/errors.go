package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExpired    = errors.New("session expired")
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	ErrInvalidDuration   = errors.New("duration must be positive")
	ErrGeneration        = errors.New("generation failed")
	ErrConcurrentUpdate  = errors.New("session was modified concurrently")
	ErrEmptyInput        = errors.New("user input is empty")
	ErrScenarioAssigned  = errors.New("scenario already assigned")
	ErrInvalidScenario   = errors.New("invalid scenario")
)

// DifficultyError reports an unrecognized difficulty selector.
type DifficultyError struct {
	Difficulty string
}

func (e *DifficultyError) Error() string {
	return fmt.Sprintf("invalid difficulty %q (want easy, medium or hard)", e.Difficulty)
}

func (e *DifficultyError) Unwrap() error { return ErrInvalidDifficulty }

// GenerationError wraps a failure of the conversation service.
type GenerationError struct {
	Op  string // "reply" | "suggestions"
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s: %v", e.Op, e.Err)
}

// Is lets errors.Is(err, ErrGeneration) match any GenerationError.
func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

func (e *GenerationError) Unwrap() error { return e.Err }
