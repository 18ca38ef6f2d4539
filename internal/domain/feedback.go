package domain

import "time"

// ScoreMetrics are the sub-scores of a finished session on a 0–10 scale.
type ScoreMetrics struct {
	Naturalness float64 `json:"naturalness"`
	Clarity     float64 `json:"clarity"`
	Vocabulary  float64 `json:"vocabulary"`
	Pace        float64 `json:"pace"`
	Overall     float64 `json:"overallScore"`
	Level       Level   `json:"level"`
}

// Feedback is the scored outcome recorded when a session ends.
type Feedback struct {
	Metrics     ScoreMetrics `json:"metrics"`
	Messages    []string     `json:"messages,omitempty"`
	Suggestions []string     `json:"suggestions,omitempty"`
	Relevance   float64      `json:"relevance"`
	Coherent    bool         `json:"coherent"`
	GeneratedAt time.Time    `json:"generatedAt"`
}
