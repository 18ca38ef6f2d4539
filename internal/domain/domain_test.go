package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testScenario() Scenario {
	return Scenario{
		Category:        "restaurant",
		Description:     "Ordering dinner at a busy bistro",
		Role:            "customer",
		Objectives:      []string{"practice polite requests"},
		VocabularyFocus: []string{"please", "appointment"},
	}
}

// --- Level tests ---

func TestLevelForDifficulty(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"easy", LevelA2, false},
		{"medium", LevelB1, false},
		{"hard", LevelB2, false},
		{" Medium ", LevelB1, false},
		{"extreme", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := LevelForDifficulty(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidDifficulty))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelOr(t *testing.T) {
	assert.Equal(t, LevelB2, LevelB2.Or(LevelA2))
	assert.Equal(t, LevelA2, Level("C1").Or(LevelA2))
	assert.Equal(t, LevelB1, Level("").Or(LevelB1))
}

// --- Scenario tests ---

func TestScenarioValidate(t *testing.T) {
	sc := testScenario()
	sc.Level = LevelB1
	assert.NoError(t, sc.Validate())

	missing := Scenario{Level: LevelB1}
	err := missing.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidScenario))
	assert.Contains(t, err.Error(), "category, description, role")

	badLevel := testScenario()
	badLevel.Level = "Z9"
	assert.ErrorIs(t, badLevel.Validate(), ErrInvalidScenario)

	blankWord := testScenario()
	blankWord.Level = LevelA2
	blankWord.VocabularyFocus = []string{"please", " "}
	assert.ErrorIs(t, blankWord.Validate(), ErrInvalidScenario)
}

// --- Session tests ---

func TestNewSession(t *testing.T) {
	s := NewSession("id-1", "Ana", LevelB1, 600, t0)

	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, LevelB1, s.Scenario.Level)
	assert.False(t, s.Scenario.Assigned())
	assert.Empty(t, s.Turns)
	assert.Equal(t, 1, s.NextTurnNumber())
	assert.Equal(t, 10*time.Minute, s.Duration())
}

func TestSessionTimedOut(t *testing.T) {
	s := NewSession("id-1", "Ana", LevelB1, 60, t0)

	assert.False(t, s.TimedOut(t0.Add(59*time.Second)))
	assert.True(t, s.TimedOut(t0.Add(60*time.Second)), "elapsed == limit counts as expired")
	assert.Equal(t, 15*time.Second, s.Remaining(t0.Add(45*time.Second)))
	assert.Equal(t, time.Duration(0), s.Remaining(t0.Add(time.Hour)))
}

func TestSessionAssignScenario(t *testing.T) {
	s := NewSession("id-1", "Ana", LevelB2, 600, t0)

	require.NoError(t, s.AssignScenario(testScenario()))
	assert.Equal(t, LevelB2, s.Scenario.Level, "level defaults to the session level")
	assert.Equal(t, "restaurant", s.Scenario.Category)

	err := s.AssignScenario(testScenario())
	assert.ErrorIs(t, err, ErrScenarioAssigned)
}

func TestSessionAssignScenario_CopiesSlices(t *testing.T) {
	s := NewSession("id-1", "Ana", LevelB1, 600, t0)
	sc := testScenario()
	require.NoError(t, s.AssignScenario(sc))

	sc.VocabularyFocus[0] = "mutated"
	assert.Equal(t, "please", s.Scenario.VocabularyFocus[0])
}

func TestSessionAssignScenario_Invalid(t *testing.T) {
	s := NewSession("id-1", "Ana", LevelB1, 600, t0)
	err := s.AssignScenario(Scenario{Category: "travel"})
	assert.ErrorIs(t, err, ErrInvalidScenario)
	assert.False(t, s.Scenario.Assigned())
}

func TestSessionAppendTurn_Numbering(t *testing.T) {
	s := NewSession("id-1", "Ana", LevelB1, 600, t0)

	for i := 0; i < 5; i++ {
		turn, err := s.AppendTurn(Turn{UserInput: "hello there", AIResponse: "hi!", Number: 99})
		require.NoError(t, err)
		assert.Equal(t, i+1, turn.Number)
	}

	for i, turn := range s.Turns {
		assert.Equal(t, i+1, turn.Number)
	}
}

func TestSessionAppendTurn_Rejects(t *testing.T) {
	s := NewSession("id-1", "Ana", LevelB1, 600, t0)

	_, err := s.AppendTurn(Turn{UserInput: "   "})
	assert.ErrorIs(t, err, ErrEmptyInput)

	s.MarkEnded(t0)
	_, err = s.AppendTurn(Turn{UserInput: "hello"})
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Empty(t, s.Turns)
}

func TestSessionAppendTurn_NormalizesEmptySuggestions(t *testing.T) {
	s := NewSession("id-1", "Ana", LevelB1, 600, t0)
	turn, err := s.AppendTurn(Turn{UserInput: "hello", Suggestions: []Suggestion{}})
	require.NoError(t, err)
	assert.Nil(t, turn.Suggestions)
}

func TestSessionMarkEnded_Once(t *testing.T) {
	s := NewSession("id-1", "Ana", LevelB1, 600, t0)

	assert.True(t, s.MarkEnded(t0.Add(time.Minute)))
	assert.False(t, s.MarkEnded(t0.Add(2*time.Minute)))
	require.NotNil(t, s.EndedAt)
	assert.Equal(t, t0.Add(time.Minute), *s.EndedAt)
	assert.Equal(t, StatusEnded, s.Status)
}

func TestSessionRecordFeedback(t *testing.T) {
	s := NewSession("id-1", "Ana", LevelB1, 600, t0)
	s.RecordFeedback(Feedback{Metrics: ScoreMetrics{Overall: 5}}, t0)

	require.NotNil(t, s.Feedback)
	assert.Equal(t, 5.0, s.Feedback.Metrics.Overall)
	assert.True(t, s.Ended())
}

func TestNewSuggestions(t *testing.T) {
	got := NewSuggestions([]string{"a", "", "b", "c", "d", "e"}, LevelB1)
	require.Len(t, got, MaxSuggestions)
	assert.Equal(t, Suggestion{Text: "a", Level: LevelB1}, got[0])
	assert.Equal(t, "d", got[3].Text)

	assert.Nil(t, NewSuggestions(nil, LevelB1))
}

// --- Error tests ---

func TestGenerationError(t *testing.T) {
	cause := errors.New("rate limited")
	err := error(&GenerationError{Op: "reply", Err: cause})

	assert.True(t, errors.Is(err, ErrGeneration))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "generate reply: rate limited", err.Error())

	var ge *GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "reply", ge.Op)
}

// --- JSON tests ---

func TestSessionJSON_RoundTrip(t *testing.T) {
	s := NewSession("id-1", "Ana", LevelB1, 600, t0)
	require.NoError(t, s.AssignScenario(testScenario()))
	_, err := s.AppendTurn(Turn{
		UserInput:   "Hello, how are you?",
		AIResponse:  "Great, and you?",
		Timestamp:   t0.Add(time.Second),
		Suggestions: NewSuggestions([]string{"I'm fine."}, LevelB1),
	})
	require.NoError(t, err)
	s.Version = 7

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Version")

	var decoded Session
	require.NoError(t, json.Unmarshal(data, &decoded))
	decoded.Version = s.Version
	assert.Equal(t, *s, decoded)
}
