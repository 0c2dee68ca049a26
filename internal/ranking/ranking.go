// Package ranking scores every candidate of a job and orders the results.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/cv-ranker/internal/ai"
	"github.com/spigell/cv-ranker/internal/logger"
	"github.com/spigell/cv-ranker/internal/matching"
	"github.com/spigell/cv-ranker/internal/metrics"
	"github.com/spigell/cv-ranker/internal/profile"
	"github.com/spigell/cv-ranker/internal/similarity"
)

// DefaultConcurrency bounds parallel candidate scoring when no option is set.
const DefaultConcurrency = 4

// Matcher scores a single candidate.
type Matcher interface {
	CalculateMatchScore(ctx context.Context, job *profile.JobProfile, candidate *profile.CandidateProfile, weights profile.WeightSet, criteria *profile.KillerCriteria) (profile.MatchScore, error)
}

// Ranker runs the matching engine over a list of candidates.
type Ranker struct {
	standardizer ai.Standardizer
	matcher      Matcher
	concurrency  int
	logger       *zap.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

// Option customizes a Ranker.
type Option func(*Ranker)

// WithConcurrency sets how many candidates are scored at once. Values below 1
// are ignored.
func WithConcurrency(n int) Option {
	return func(r *Ranker) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Ranker) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Ranker) { r.metrics = m }
}

// WithMatcher replaces the matching engine built from the embedder.
func WithMatcher(m Matcher) Option {
	return func(r *Ranker) {
		if m != nil {
			r.matcher = m
		}
	}
}

// New wires the similarity and matching engines on top of embedder. The
// standardizer is only needed by RankTexts and may be nil otherwise.
func New(embedder ai.Embedder, standardizer ai.Standardizer, opts ...Option) *Ranker {
	r := &Ranker{
		standardizer: standardizer,
		concurrency:  DefaultConcurrency,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.matcher == nil {
		r.matcher = matching.New(similarity.New(embedder), nil, r.logger)
	}
	return r
}

// Resume is the raw text of one candidate document.
type Resume struct {
	Source string
	Text   string
}

// KillerSelector picks the killer criteria once the job is standardized. It
// may return nil when no disqualification check should run.
type KillerSelector func(job *profile.JobProfile) *profile.KillerCriteria

// FixedKiller returns a selector that ignores the job.
func FixedKiller(criteria *profile.KillerCriteria) KillerSelector {
	return func(*profile.JobProfile) *profile.KillerCriteria { return criteria }
}

// RankTexts standardizes the job and every resume, then ranks them. A nil
// selector means no killer criteria.
func (r *Ranker) RankTexts(ctx context.Context, description, preferences string, resumes []Resume, weights profile.WeightSet, selectKiller KillerSelector) (*Ranking, error) {
	if r.standardizer == nil {
		return nil, errors.New("standardizer is not configured")
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	job, err := r.standardizer.StandardizeJob(ctx, description, preferences)
	if err != nil {
		return nil, fmt.Errorf("standardize job: %w", err)
	}
	r.logger.Info("job standardized", zap.String("title", job.Title),
		zap.Int("required_skills", len(job.RequiredSkills)),
		zap.Int("preferred_skills", len(job.PreferredSkills)),
	)

	var criteria *profile.KillerCriteria
	if selectKiller != nil {
		criteria = selectKiller(job)
	}
	if err := validateKiller(criteria); err != nil {
		return nil, err
	}

	candidates, err := r.StandardizeResumes(ctx, resumes)
	if err != nil {
		return nil, err
	}

	return r.RankCandidates(ctx, job, candidates, weights, criteria)
}

// StandardizeResumes converts resumes concurrently, keeping input order.
func (r *Ranker) StandardizeResumes(ctx context.Context, resumes []Resume) ([]*profile.CandidateProfile, error) {
	if r.standardizer == nil {
		return nil, errors.New("standardizer is not configured")
	}

	candidates := make([]*profile.CandidateProfile, len(resumes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, resume := range resumes {
		g.Go(func() error {
			candidate, err := r.standardizer.StandardizeCandidate(gctx, resume.Text)
			if err != nil {
				return fmt.Errorf("standardize resume %s: %w", resume.Source, err)
			}
			logger.WithFields(r.logger, logger.CandidateFields(candidate.Name, candidate.YearsExperience)...).
				Debug("resume standardized", zap.String("source", resume.Source))
			candidates[i] = candidate
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// RankCandidates scores all candidates and sorts them: qualified before
// disqualified, then by final score descending. Equal keys keep input order.
// One failing candidate fails the whole run.
func (r *Ranker) RankCandidates(ctx context.Context, job *profile.JobProfile, candidates []*profile.CandidateProfile, weights profile.WeightSet, criteria *profile.KillerCriteria) (*Ranking, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if err := validateKiller(criteria); err != nil {
		return nil, err
	}
	if job == nil {
		return nil, errors.New("job profile is required")
	}

	started := r.now()
	ranking := &Ranking{
		RunID:     uuid.NewString(),
		Job:       job,
		Entries:   make([]Entry, len(candidates)),
		CreatedAt: started.UTC(),
	}
	log := logger.WithFields(r.logger, logger.RunFields(ranking.RunID, len(candidates))...)

	if len(candidates) == 0 {
		log.Info("no candidates to rank")
		return ranking, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, candidate := range candidates {
		g.Go(func() error {
			if candidate == nil {
				r.metrics.ObserveCandidate(metrics.OutcomeFailed)
				return fmt.Errorf("candidate #%d is nil", i)
			}

			score, err := r.matcher.CalculateMatchScore(gctx, job, candidate, weights, criteria)
			if err != nil {
				r.metrics.ObserveCandidate(metrics.OutcomeFailed)
				return fmt.Errorf("candidate %q: %w", candidate.Name, err)
			}

			outcome := metrics.OutcomeQualified
			if score.Disqualified {
				outcome = metrics.OutcomeDisqualified
			}
			r.metrics.ObserveCandidate(outcome)

			logger.WithFields(log, logger.CandidateFields(candidate.Name, candidate.YearsExperience)...).Debug("candidate scored",
				zap.String("outcome", outcome),
				zap.Float64("final_score", score.FinalScore),
			)

			ranking.Entries[i] = Entry{Candidate: candidate, Score: score}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortEntries(ranking.Entries)

	elapsed := r.now().Sub(started)
	r.metrics.ObserveRanking(elapsed.Seconds())
	log.Info("ranking finished",
		zap.Int("candidates", ranking.Len()),
		zap.Int("qualified", len(ranking.Qualified())),
		zap.Int("disqualified", len(ranking.Disqualified())),
		zap.Duration("elapsed", elapsed),
	)

	return ranking, nil
}

func validateKiller(criteria *profile.KillerCriteria) error {
	if err := criteria.Validate(); err != nil {
		return fmt.Errorf("killer criteria: %w", err)
	}
	return nil
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Score, entries[j].Score
		if a.Disqualified != b.Disqualified {
			return !a.Disqualified
		}
		return a.FinalScore > b.FinalScore
	})
	for i := range entries {
		entries[i].Position = i + 1
	}
}
