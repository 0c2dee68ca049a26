// Package killer evaluates hard disqualifying requirements against a
// candidate. Every gate compares one killer list with one candidate section.
package killer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-ranker/internal/profile"
)

// Threshold is the minimal coverage a killer list must reach.
const Threshold = 0.85

// Scorer is the similarity capability the gates need.
type Scorer interface {
	Coverage(ctx context.Context, requirements, attributes []string) (float64, error)
}

// Gate checks one killer list against one candidate section.
type Gate interface {
	Name() string
	Apply(ctx context.Context, scorer Scorer, candidate *profile.CandidateProfile, criteria *profile.KillerCriteria) (Step, error)
}

// Step describes the result of one gate.
type Step struct {
	Gate    string
	Skipped bool
	Score   float64
	Passed  bool
	Reason  string
}

// Status represents static information about a gate.
type Status struct {
	Name    string
	Details map[string]string
}

// Evaluator runs all gates and collects every failure reason.
type Evaluator struct {
	scorer    Scorer
	gates     []Gate
	threshold float64
	logger    *zap.Logger
}

// Option customizes an Evaluator.
type Option func(*Evaluator)

// WithLogger attaches a logger used for per-gate debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New returns an evaluator with the skills and experience gates.
func New(scorer Scorer, opts ...Option) *Evaluator {
	e := &Evaluator{
		scorer:    scorer,
		threshold: Threshold,
		logger:    zap.NewNop(),
	}
	e.gates = []Gate{
		&sectionGate{name: string(profile.CategorySkills), threshold: e.threshold, killer: killerSkills, section: candidateSkills},
		&sectionGate{name: string(profile.CategoryExperience), threshold: e.threshold, killer: killerExperience, section: candidateExperience},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check returns whether the candidate passes all killer criteria and, if not,
// the reasons in gate order. Nil or empty criteria always pass.
func (e *Evaluator) Check(ctx context.Context, candidate *profile.CandidateProfile, criteria *profile.KillerCriteria) (bool, []string, error) {
	if criteria.IsEmpty() {
		return true, []string{}, nil
	}

	reasons := []string{}
	for _, gate := range e.gates {
		step, err := gate.Apply(ctx, e.scorer, candidate, criteria)
		if err != nil {
			return false, nil, fmt.Errorf("killer gate %s: %w", gate.Name(), err)
		}

		e.logger.Debug("killer gate",
			zap.String("gate", step.Gate),
			zap.Bool("skipped", step.Skipped),
			zap.Float64("score", step.Score),
			zap.Bool("passed", step.Passed),
		)

		if !step.Passed {
			reasons = append(reasons, step.Reason)
		}
	}

	return len(reasons) == 0, reasons, nil
}

// Describe returns status entries for the configured gates.
func (e *Evaluator) Describe() []Status {
	statuses := make([]Status, 0, len(e.gates))
	for _, gate := range e.gates {
		statuses = append(statuses, Status{
			Name:    gate.Name(),
			Details: map[string]string{"threshold": strconv.FormatFloat(e.threshold, 'f', 2, 64)},
		})
	}
	return statuses
}

type sectionGate struct {
	name      string
	threshold float64
	killer    func(*profile.KillerCriteria) []string
	section   func(*profile.CandidateProfile) []string
}

func (g *sectionGate) Name() string { return g.name }

func (g *sectionGate) Apply(ctx context.Context, scorer Scorer, candidate *profile.CandidateProfile, criteria *profile.KillerCriteria) (Step, error) {
	required := g.killer(criteria)
	if len(required) == 0 {
		return Step{Gate: g.name, Skipped: true, Score: 1, Passed: true}, nil
	}

	score, err := scorer.Coverage(ctx, required, g.section(candidate))
	if err != nil {
		return Step{Gate: g.name}, err
	}

	step := Step{Gate: g.name, Score: score, Passed: score >= g.threshold}
	if !step.Passed {
		step.Reason = fmt.Sprintf("%s: killer requirements [%s] not met (similarity %.2f below %.2f)",
			g.name, strings.Join(required, ", "), score, g.threshold)
	}
	return step, nil
}

func killerSkills(k *profile.KillerCriteria) []string { return k.Skills }
func killerExperience(k *profile.KillerCriteria) []string { return k.Experience }

func candidateSkills(c *profile.CandidateProfile) []string { return c.Skills }
func candidateExperience(c *profile.CandidateProfile) []string { return c.Experience }
