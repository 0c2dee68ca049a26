package profile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightSetValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights WeightSet
		wantErr bool
	}{
		{name: "balanced", weights: WeightSet{Skills: 0.4, Experience: 0.3, Education: 0.2, RecruiterPreferences: 0.1}},
		{name: "single category", weights: WeightSet{Skills: 1}},
		{name: "within tolerance", weights: WeightSet{Skills: 0.5, Experience: 0.5000000001}},
		{name: "sum too low", weights: WeightSet{Skills: 0.5}, wantErr: true},
		{name: "sum too high", weights: WeightSet{Skills: 0.8, Education: 0.3}, wantErr: true},
		{name: "negative", weights: WeightSet{Skills: 1.2, Education: -0.2}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigurationError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestNewQualifiedScoreIsConvexCombination(t *testing.T) {
	weights := WeightSet{Skills: 0.4, Experience: 0.3, Education: 0.2, RecruiterPreferences: 0.1}
	grid := []float64{0, 0.25, 0.5, 1}

	for _, s := range grid {
		for _, e := range grid {
			for _, ed := range grid {
				for _, p := range grid {
					score := NewQualifiedScore(map[Category]float64{
						CategorySkills:               s,
						CategoryExperience:           e,
						CategoryEducation:            ed,
						CategoryRecruiterPreferences: p,
					}, weights)
					require.GreaterOrEqual(t, score.FinalScore, 0.0)
					require.LessOrEqual(t, score.FinalScore, 1.0+WeightTolerance)
				}
			}
		}
	}
}

func TestNewQualifiedScoreFillsMissingCategories(t *testing.T) {
	score := NewQualifiedScore(map[Category]float64{CategorySkills: 0.5}, WeightSet{Skills: 1})

	assert.InDelta(t, 0.5, score.FinalScore, 1e-12)
	assert.Len(t, score.ComponentScores, len(Categories))
	assert.False(t, score.Disqualified)
	assert.Empty(t, score.DisqualificationReasons)
}

func TestNewDisqualifiedScoreZeroesEverything(t *testing.T) {
	reasons := []string{"missing skills"}
	score := NewDisqualifiedScore(reasons)
	reasons[0] = "mutated"

	assert.True(t, score.Disqualified)
	assert.Equal(t, 0.0, score.FinalScore)
	for _, c := range Categories {
		assert.Equal(t, 0.0, score.Component(c))
	}
	assert.Equal(t, []string{"missing skills"}, score.DisqualificationReasons)
}
