// Package scoring holds the pure arithmetic of judge evaluations: clamping
// raw input onto the 0..10 scale, averaging sub-scores, and deciding whether
// a result is provisional.
package scoring

import (
	"math"
	"strconv"
	"strings"

	"github.com/okian/stark/internal/domain/model"
)

// Scale and threshold constants.
const (
	MinScore = 0.0
	MaxScore = 10.0

	// DefaultProvisionalThreshold is the voted/assigned ratio below which a
	// result is marked provisional.
	DefaultProvisionalThreshold = 0.5

	subScoreCount = 4
)

// Clamp maps x onto [MinScore, MaxScore]. NaN becomes MinScore.
func Clamp(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return MinScore
	case x < MinScore:
		return MinScore
	case x > MaxScore:
		return MaxScore
	}
	return x
}

// CoerceZero reads an unset sub-score as 0 and clamps the rest.
func CoerceZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return Clamp(*v)
}

// ClampInput keeps nil as nil and clamps set values.
func ClampInput(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := Clamp(*v)
	return &c
}

// ParseInput converts form text into a sub-score. Blank or unparsable text,
// including "NaN", yields nil; everything else is clamped.
func ParseInput(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	x, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(x) {
		return nil
	}
	c := Clamp(x)
	return &c
}

// ClampScores applies ClampInput to every sub-score.
func ClampScores(s model.Scores) model.Scores {
	return model.Scores{
		Teamwork:  ClampInput(s.Teamwork),
		Idea:      ClampInput(s.Idea),
		Execution: ClampInput(s.Execution),
		Business:  ClampInput(s.Business),
	}
}

// JudgeAverage is the mean of the four sub-scores with unset ones read as 0.
// It always divides by four.
func JudgeAverage(s model.Scores) float64 {
	sum := CoerceZero(s.Teamwork) + CoerceZero(s.Idea) + CoerceZero(s.Execution) + CoerceZero(s.Business)
	return sum / subScoreCount
}

// HasVoted reports whether at least one sub-score is set.
func HasVoted(s model.Scores) bool {
	return s.Teamwork != nil || s.Idea != nil || s.Execution != nil || s.Business != nil
}

// Mean returns the arithmetic mean of values, 0 for none.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Provisional reports whether fewer than threshold of the assigned judges
// have voted. Events without assignments are never provisional. A threshold
// outside (0, 1] falls back to DefaultProvisionalThreshold.
func Provisional(voted, assigned int, threshold float64) bool {
	if assigned <= 0 {
		return false
	}
	if threshold <= 0 || threshold > 1 || math.IsNaN(threshold) {
		threshold = DefaultProvisionalThreshold
	}
	return float64(voted)/float64(assigned) < threshold
}

// FormatScore renders x with two decimals; non-finite values render as "0.00".
func FormatScore(x float64) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		x = 0
	}
	return strconv.FormatFloat(x, 'f', 2, 64)
}
