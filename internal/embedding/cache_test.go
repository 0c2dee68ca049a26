package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-ranker/internal/ai"
	"github.com/spigell/cv-ranker/internal/ai/aitest"
	"github.com/spigell/cv-ranker/internal/metrics"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), RedisConfig{Address: mr.Addr(), TTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return mr, store
}

func TestCacheMemoizes(t *testing.T) {
	emb := aitest.NewEmbedder(map[string][]float64{"Go": {1, 2}})
	m := metrics.New(prometheus.NewRegistry())
	cache := NewCache(emb, "test-model", WithMetrics(m))

	first, err := cache.Embed(context.Background(), "Go")
	require.NoError(t, err)
	first[0] = 42

	second, err := cache.Embed(context.Background(), "Go")
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 2}, second, "callers must not mutate cached vectors")
	assert.Equal(t, 1, emb.Calls("Go"))
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingRequests.WithLabelValues(metrics.SourceProvider)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingRequests.WithLabelValues(metrics.SourceMemory)))
}

func TestCacheConcurrentMissesShareOneCall(t *testing.T) {
	emb := aitest.NewEmbedder(map[string][]float64{"Go": {1, 0}, "SQL": {0, 1}})
	cache := NewCache(emb, "test-model")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text := "Go"
			if i%2 == 0 {
				text = "SQL"
			}
			_, err := cache.Embed(context.Background(), text)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, emb.Calls("Go"))
	assert.Equal(t, 1, emb.Calls("SQL"))
	assert.Equal(t, 2, cache.Len())
}

func TestCacheFillOutlivesCanceledCaller(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	cache := NewCache(ai.EmbedderFunc(func(ctx context.Context, _ string) ([]float64, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []float64{1, 0}, nil
	}), "test-model")

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Embed(firstCtx, "Go")
		firstErr <- err
	}()
	<-started

	second := make(chan []float64, 1)
	go func() {
		vec, err := cache.Embed(context.Background(), "Go")
		assert.NoError(t, err)
		second <- vec
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.Equal(t, []float64{1, 0}, <-second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestCacheRejectsCanceledContext(t *testing.T) {
	emb := aitest.NewEmbedder(map[string][]float64{"Go": {1}})
	cache := NewCache(emb, "test-model")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cache.Embed(ctx, "Go")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, emb.TotalCalls())
}

func TestCacheDoesNotKeepErrors(t *testing.T) {
	emb := aitest.NewEmbedder(map[string][]float64{"Go": {1}})
	boom := errors.New("rate limited")
	emb.Errors["Go"] = boom
	cache := NewCache(emb, "test-model")

	_, err := cache.Embed(context.Background(), "Go")
	require.ErrorIs(t, err, boom)

	delete(emb.Errors, "Go")
	vec, err := cache.Embed(context.Background(), "Go")
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, vec)
	assert.Equal(t, 2, emb.Calls("Go"))
}

func TestCacheUsesRedisStore(t *testing.T) {
	mr, store := newRedis(t)
	emb := aitest.NewEmbedder(map[string][]float64{"Go": {0.5, 0.25}})
	m := metrics.New(prometheus.NewRegistry())

	_, err := NewCache(emb, "test-model", WithStore(store)).Embed(context.Background(), "Go")
	require.NoError(t, err)

	key := Key("test-model", "Go")
	require.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))

	// a fresh process finds the vector in redis
	fresh := NewCache(emb, "test-model", WithStore(store), WithMetrics(m))
	vec, err := fresh.Embed(context.Background(), "Go")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25}, vec)
	assert.Equal(t, 1, emb.Calls("Go"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingRequests.WithLabelValues(metrics.SourceRedis)))
}

func TestCacheSurvivesStoreFailures(t *testing.T) {
	mr, store := newRedis(t)
	core, logs := observer.New(zapcore.WarnLevel)
	emb := aitest.NewEmbedder(map[string][]float64{"Go": {1}})
	cache := NewCache(emb, "test-model", WithStore(store), WithLogger(zap.New(core)))

	mr.Close()

	vec, err := cache.Embed(context.Background(), "Go")
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, vec)
	assert.Equal(t, 1, logs.FilterMessage("embedding store lookup failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("embedding store write failed").Len())
}

func TestRedisStoreCorruptValue(t *testing.T) {
	mr, store := newRedis(t)
	require.NoError(t, mr.Set("broken", "not json"))

	_, ok, err := store.Get(context.Background(), "broken")
	assert.False(t, ok)
	assert.Error(t, err)

	_, ok, err = store.Get(context.Background(), "missing")
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestKeyScopesModel(t *testing.T) {
	assert.NotEqual(t, Key("a", "Go"), Key("b", "Go"))
	assert.Equal(t, Key("a", "Go"), Key("a", "Go"))
	assert.Contains(t, Key("a", "Go"), "emb:a:")
}

func TestNewRedisStoreFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), RedisConfig{Address: addr})
	assert.Error(t, err)
}
