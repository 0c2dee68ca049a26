package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCandidate(OutcomeQualified)
	m.ObserveCandidate(OutcomeQualified)
	m.ObserveCandidate(OutcomeDisqualified)
	m.ObserveEmbedding(SourceMemory)
	m.ObserveRanking(1.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CandidatesScored.WithLabelValues(OutcomeQualified)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandidatesScored.WithLabelValues(OutcomeDisqualified)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingRequests.WithLabelValues(SourceMemory)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RankingDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveCandidate(OutcomeFailed)
		m.ObserveEmbedding(SourceProvider)
		m.ObserveRanking(1)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).ObserveCandidate(OutcomeQualified)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `cv_ranker_candidates_scored_total{outcome="qualified"} 1`)
}
