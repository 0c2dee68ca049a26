// Package metrics defines the Prometheus collectors of a ranking run.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for CandidatesScored.
const (
	OutcomeQualified    = "qualified"
	OutcomeDisqualified = "disqualified"
	OutcomeFailed       = "failed"
)

// Source labels for EmbeddingRequests.
const (
	SourceMemory   = "memory"
	SourceRedis    = "redis"
	SourceProvider = "provider"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	CandidatesScored  *prometheus.CounterVec
	RankingDuration   prometheus.Histogram
	EmbeddingRequests *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CandidatesScored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cv_ranker_candidates_scored_total",
				Help: "Total number of candidates scored by outcome",
			},
			[]string{"outcome"},
		),
		RankingDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cv_ranker_ranking_duration_seconds",
				Help:    "Duration of a whole ranking run in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		EmbeddingRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cv_ranker_embedding_requests_total",
				Help: "Total number of embedding lookups by the source that answered",
			},
			[]string{"source"},
		),
	}
}

func (m *Metrics) ObserveCandidate(outcome string) {
	if m == nil {
		return
	}
	m.CandidatesScored.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRanking(seconds float64) {
	if m == nil {
		return
	}
	m.RankingDuration.Observe(seconds)
}

func (m *Metrics) ObserveEmbedding(source string) {
	if m == nil {
		return
	}
	m.EmbeddingRequests.WithLabelValues(source).Inc()
}

// Handler exposes the registry over HTTP.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
