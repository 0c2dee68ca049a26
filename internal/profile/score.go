package profile

import (
	"fmt"
	"math"
)

// WeightTolerance is how far the weight sum may drift from 1.0.
const WeightTolerance = 1e-6

// WeightSet maps every category to a non-negative weight. Callers must supply
// weights summing to 1.0; Validate checks that contract.
type WeightSet struct {
	Skills               float64 `json:"skills" mapstructure:"skills"`
	Experience           float64 `json:"experience" mapstructure:"experience"`
	Education            float64 `json:"education" mapstructure:"education"`
	RecruiterPreferences float64 `json:"recruiter_preferences" mapstructure:"recruiter-preferences"`
}

// Get returns the weight configured for a category.
func (w WeightSet) Get(c Category) float64 {
	switch c {
	case CategorySkills:
		return w.Skills
	case CategoryExperience:
		return w.Experience
	case CategoryEducation:
		return w.Education
	case CategoryRecruiterPreferences:
		return w.RecruiterPreferences
	default:
		return 0
	}
}

// Sum adds all weights.
func (w WeightSet) Sum() float64 {
	total := 0.0
	for _, c := range Categories {
		total += w.Get(c)
	}
	return total
}

// Validate rejects negative weights and sums outside WeightTolerance of 1.0.
func (w WeightSet) Validate() error {
	for _, c := range Categories {
		v := w.Get(c)
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return &ConfigurationError{Reason: fmt.Sprintf("weight for %s must be a non-negative number, got %v", c, v)}
		}
	}

	if sum := w.Sum(); math.Abs(sum-1.0) > WeightTolerance {
		return &ConfigurationError{Reason: fmt.Sprintf("weights must sum to 1.0, got %.6f", sum)}
	}

	return nil
}

// Combine returns the weighted sum of component scores. No renormalization is
// applied.
func (w WeightSet) Combine(components map[Category]float64) float64 {
	total := 0.0
	for _, c := range Categories {
		total += w.Get(c) * components[c]
	}
	return total
}

// MatchScore is the outcome of matching one candidate against one job.
type MatchScore struct {
	FinalScore              float64              `json:"final_score"`
	ComponentScores         map[Category]float64 `json:"component_scores"`
	Disqualified            bool                 `json:"disqualified"`
	DisqualificationReasons []string             `json:"disqualification_reasons"`
}

// NewQualifiedScore combines component scores with the given weights.
// Categories missing from components count as zero.
func NewQualifiedScore(components map[Category]float64, weights WeightSet) MatchScore {
	scores := zeroComponents()
	for _, c := range Categories {
		scores[c] = components[c]
	}

	return MatchScore{
		FinalScore:              weights.Combine(scores),
		ComponentScores:         scores,
		DisqualificationReasons: []string{},
	}
}

// NewDisqualifiedScore returns a zeroed score carrying the given reasons.
func NewDisqualifiedScore(reasons []string) MatchScore {
	return MatchScore{
		FinalScore:              0,
		ComponentScores:         zeroComponents(),
		Disqualified:            true,
		DisqualificationReasons: append([]string{}, reasons...),
	}
}

// Component returns the score of one category.
func (m MatchScore) Component(c Category) float64 {
	return m.ComponentScores[c]
}

func zeroComponents() map[Category]float64 {
	out := make(map[Category]float64, len(Categories))
	for _, c := range Categories {
		out[c] = 0
	}
	return out
}
