// Package scoring grades a finished practice session from its turn history.
//
// Scores are heuristic: each learner utterance is reduced to token, filler,
// punctuation and vocabulary counts, per-turn signals in [0,1] are averaged,
// and the averages are reported on a 0–10 scale.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/soyeahso/parley/internal/domain"
)

// Pace bounds: an utterance of MinPaceTokens..MaxPaceTokens tokens is in range.
const (
	MinPaceTokens = 2
	MaxPaceTokens = 30
)

// clarityTokens is the utterance length that earns full clarity.
const clarityTokens = 20

// maxFillerPenalty caps how much filler words can cost a single turn.
const maxFillerPenalty = 0.5

var fillerWords = map[string]bool{
	"um":   true,
	"uh":   true,
	"like": true,
	"so":   true,
	"well": true,
	"hmm":  true,
}

// Issue messages and the matching remedies.
const (
	msgNoVocabulary  = "No target vocabulary used in the session."
	msgTooShort      = "Responses may be too short on average."
	msgNoPunctuation = "Some responses may lack proper ending punctuation."

	tipVocabulary  = "Try to include words like: %s"
	tipTooShort    = "Try to expand your answers for clarity."
	tipFillers     = "Reduce filler words like 'um', 'uh', 'like', 'so'."
	tipPunctuation = "End sentences with '.', '!', or '?'"
)

type turnStats struct {
	tokens   int
	fillers  int
	terminal bool
	hits     int
}

func analyze(text string, target []string) turnStats {
	text = strings.TrimSpace(text)
	fields := strings.Fields(strings.ToLower(text))

	st := turnStats{tokens: len(fields)}
	for i := 0; i < len(fields); i++ {
		w := strings.Trim(fields[i], `.,!?;:"'()`)
		if fillerWords[w] {
			st.fillers++
			continue
		}
		if w == "you" && i+1 < len(fields) && strings.Trim(fields[i+1], `.,!?;:"'()`) == "know" {
			st.fillers++
			i++
		}
	}

	if n := len(text); n > 0 {
		switch text[n-1] {
		case '.', '!', '?':
			st.terminal = true
		}
	}

	lower := strings.ToLower(text)
	for _, word := range target {
		if strings.Contains(lower, strings.ToLower(word)) {
			st.hits++
		}
	}
	return st
}

// Score grades turns against the target vocabulary. level labels the result;
// an invalid level falls back to domain.DefaultLevel. Blank utterances are
// ignored, and a history with no utterances scores zero with no messages.
// GeneratedAt is left for the caller to stamp.
func Score(turns []domain.Turn, targetVocabulary []string, level domain.Level) domain.Feedback {
	fb := domain.Feedback{
		Metrics: domain.ScoreMetrics{Level: level.Or(domain.DefaultLevel)},
	}

	var target []string
	for _, w := range targetVocabulary {
		if w = strings.TrimSpace(w); w != "" {
			target = append(target, w)
		}
	}

	var (
		n                                      int
		naturalness, clarity, vocabulary, pace float64
		totalTokens, totalFillers, totalHits   int
		missingTerminal                        bool
	)
	vocabDenom := float64(max(len(target), 1))

	for _, t := range turns {
		if strings.TrimSpace(t.UserInput) == "" {
			continue
		}
		st := analyze(t.UserInput, target)
		n++
		totalTokens += st.tokens
		totalFillers += st.fillers
		totalHits += st.hits

		fillerPenalty := math.Min(float64(st.fillers)/float64(max(st.tokens, 1)), maxFillerPenalty)

		nat := 0.5
		if st.terminal {
			nat = 1
		} else {
			missingTerminal = true
		}
		naturalness += clip(nat - fillerPenalty)
		clarity += clip(math.Min(float64(st.tokens)/clarityTokens, 1) - fillerPenalty)
		vocabulary += clip(math.Min(float64(st.hits)/vocabDenom, 1))
		if st.tokens >= MinPaceTokens && st.tokens <= MaxPaceTokens {
			pace += 1
		} else {
			pace += 0.5
		}
	}

	if n == 0 {
		return fb
	}

	m := &fb.Metrics
	m.Naturalness = scale(naturalness, n)
	m.Clarity = scale(clarity, n)
	m.Vocabulary = scale(vocabulary, n)
	m.Pace = scale(pace, n)
	m.Overall = round2((m.Naturalness + m.Clarity + m.Vocabulary + m.Pace) / 4)

	if len(target) > 0 && totalHits == 0 {
		fb.Messages = append(fb.Messages, msgNoVocabulary)
		fb.Suggestions = append(fb.Suggestions, fmt.Sprintf(tipVocabulary, strings.Join(target, ", ")))
	}
	if float64(totalTokens)/float64(n) < MinPaceTokens {
		fb.Messages = append(fb.Messages, msgTooShort)
		fb.Suggestions = append(fb.Suggestions, tipTooShort)
	}
	if totalFillers > 0 {
		fb.Messages = append(fb.Messages, fmt.Sprintf("Used %d filler word(s) across the session.", totalFillers))
		fb.Suggestions = append(fb.Suggestions, tipFillers)
	}
	if missingTerminal {
		fb.Messages = append(fb.Messages, msgNoPunctuation)
		fb.Suggestions = append(fb.Suggestions, tipPunctuation)
	}

	fb.Relevance = round2(math.Min(float64(totalHits)/vocabDenom, 1))
	fb.Coherent = len(fb.Messages) == 0
	return fb
}

func clip(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}

// scale averages sum over n turns and maps it onto 0–10.
func scale(sum float64, n int) float64 {
	return round2(sum / float64(n) * 10)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
