package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Session is one bounded practice interaction between a learner and the
// conversation partner.
type Session struct {
	ID              string     `json:"id"`
	UserName        string     `json:"userName"`
	Level           Level      `json:"level"`
	Scenario        Scenario   `json:"scenario"`
	Turns           []Turn     `json:"turns"`
	StartTime       time.Time  `json:"startTime"`
	DurationSeconds int        `json:"durationSeconds"`
	Status          Status     `json:"status"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	Feedback        *Feedback  `json:"feedback,omitempty"`

	// Version is the store revision this value was read at. It travels
	// beside the payload, never inside it.
	Version int64 `json:"-"`
}

// NewSession returns an active session with an empty scenario at the given level.
func NewSession(id, userName string, level Level, durationSeconds int, now time.Time) *Session {
	return &Session{
		ID:              id,
		UserName:        userName,
		Level:           level,
		Scenario:        Scenario{Level: level},
		StartTime:       now,
		DurationSeconds: durationSeconds,
		Status:          StatusActive,
	}
}

// Duration returns the session time limit.
func (s *Session) Duration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}

// Elapsed returns the time since the session started.
func (s *Session) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartTime)
}

// Remaining returns the time left before expiry, never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	left := s.Duration() - s.Elapsed(now)
	if left < 0 {
		return 0
	}
	return left
}

// TimedOut reports whether the time limit has elapsed at now.
func (s *Session) TimedOut(now time.Time) bool {
	return s.Elapsed(now) >= s.Duration()
}

// Expired reports whether no further turns may be taken at now, either
// because the session ended or its time limit has passed.
func (s *Session) Expired(now time.Time) bool {
	return s.Ended() || s.TimedOut(now)
}

// Ended reports whether the session is terminal.
func (s *Session) Ended() bool {
	return s.Status == StatusEnded
}

// NextTurnNumber is the number the next appended turn will receive.
func (s *Session) NextTurnNumber() int {
	return len(s.Turns) + 1
}

// AssignScenario sets the scenario once. The scenario's level defaults to
// the session level when unset.
func (s *Session) AssignScenario(sc Scenario) error {
	if s.Ended() {
		return ErrSessionExpired
	}
	if s.Scenario.Assigned() {
		return ErrScenarioAssigned
	}
	if sc.Level == "" {
		sc.Level = s.Level
	}
	if err := sc.Validate(); err != nil {
		return err
	}
	s.Scenario = sc.clone()
	return nil
}

// AppendTurn numbers t as the next turn and appends it.
func (s *Session) AppendTurn(t Turn) (Turn, error) {
	if s.Ended() {
		return Turn{}, ErrSessionExpired
	}
	if strings.TrimSpace(t.UserInput) == "" {
		return Turn{}, ErrEmptyInput
	}
	t.Number = s.NextTurnNumber()
	if len(t.Suggestions) == 0 {
		t.Suggestions = nil
	}
	s.Turns = append(s.Turns, t)
	return t, nil
}

// MarkEnded moves the session to ended. It returns false if the session
// had already ended, leaving it untouched.
func (s *Session) MarkEnded(now time.Time) bool {
	if s.Ended() {
		return false
	}
	s.Status = StatusEnded
	s.EndedAt = &now
	return true
}

// RecordFeedback stores the final feedback and ends the session.
func (s *Session) RecordFeedback(fb Feedback, now time.Time) {
	s.Feedback = &fb
	s.MarkEnded(now)
}
