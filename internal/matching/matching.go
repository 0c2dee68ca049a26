// Package matching scores one candidate against one job.
package matching

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/spigell/cv-ranker/internal/killer"
	"github.com/spigell/cv-ranker/internal/profile"
)

const (
	// semanticShare is the part of the experience score taken from text
	// similarity when both sides expose a year count. The rest comes from
	// the years ratio.
	semanticShare = 0.75
)

// Scorer measures coverage of requirements by attributes.
type Scorer interface {
	Coverage(ctx context.Context, requirements, attributes []string) (float64, error)
}

// KillerChecker decides whether a candidate is disqualified.
type KillerChecker interface {
	Check(ctx context.Context, candidate *profile.CandidateProfile, criteria *profile.KillerCriteria) (bool, []string, error)
}

// Engine combines section similarities into a weighted MatchScore.
type Engine struct {
	scorer Scorer
	killer KillerChecker
	logger *zap.Logger
}

// New builds an engine. When checker is nil the default killer evaluator
// over the same scorer is used.
func New(scorer Scorer, checker KillerChecker, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checker == nil {
		checker = killer.New(scorer, killer.WithLogger(logger))
	}
	return &Engine{scorer: scorer, killer: checker, logger: logger}
}

// CalculateMatchScore runs the killer check first and returns a disqualified
// score without further work when it fails. Otherwise the four component
// scores are computed and combined with weights as given. Any similarity error
// aborts the whole calculation.
func (e *Engine) CalculateMatchScore(ctx context.Context, job *profile.JobProfile, candidate *profile.CandidateProfile, weights profile.WeightSet, criteria *profile.KillerCriteria) (profile.MatchScore, error) {
	if job == nil || candidate == nil {
		return profile.MatchScore{}, fmt.Errorf("job and candidate profiles are required")
	}

	if !criteria.IsEmpty() {
		passed, reasons, err := e.killer.Check(ctx, candidate, criteria)
		if err != nil {
			return profile.MatchScore{}, err
		}
		if !passed {
			e.logger.Debug("candidate disqualified",
				zap.String("candidate", candidate.Name),
				zap.Strings("reasons", reasons),
			)
			return profile.NewDisqualifiedScore(reasons), nil
		}
	}

	components := make(map[profile.Category]float64, len(profile.Categories))
	sections := []struct {
		category     profile.Category
		requirements []string
		attributes   []string
	}{
		{profile.CategorySkills, job.AllSkills(), candidate.Skills},
		{profile.CategoryExperience, job.Experience, candidate.Experience},
		{profile.CategoryEducation, job.Education, candidate.Education},
		{profile.CategoryRecruiterPreferences, job.PreferredSkills, candidate.Skills},
	}

	for _, s := range sections {
		score, err := e.scorer.Coverage(ctx, s.requirements, s.attributes)
		if err != nil {
			return profile.MatchScore{}, fmt.Errorf("score %s: %w", s.category, err)
		}
		components[s.category] = score
	}

	components[profile.CategoryExperience] = AdjustForYears(
		components[profile.CategoryExperience], job.YearsRequired, candidate.YearsExperience,
	)

	score := profile.NewQualifiedScore(components, weights)
	e.logger.Debug("candidate scored",
		zap.String("candidate", candidate.Name),
		zap.Float64("final_score", score.FinalScore),
	)
	return score, nil
}

// AdjustForYears blends the semantic experience score with the ratio of
// candidate years to required years, capped at 1. It returns semantic as is
// unless both year counts are positive.
func AdjustForYears(semantic, required, actual float64) float64 {
	if required <= 0 || actual <= 0 {
		return semantic
	}
	ratio := math.Min(1, actual/required)
	return semanticShare*semantic + (1-semanticShare)*ratio
}
