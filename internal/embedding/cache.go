// Package embedding memoizes embedding lookups in process and, optionally,
// in Redis so that repeated phrases across candidates cost one provider call.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spigell/cv-ranker/internal/ai"
	"github.com/spigell/cv-ranker/internal/metrics"
)

// Store is a shared second-level cache.
type Store interface {
	Get(ctx context.Context, key string) ([]float64, bool, error)
	Set(ctx context.Context, key string, vec []float64) error
}

// Cache wraps an embedder. Entries are never evicted during a run. Concurrent
// misses on the same text share one provider call.
type Cache struct {
	next  ai.Embedder
	model string
	store Store

	mu     sync.RWMutex
	memory map[string][]float64
	group  singleflight.Group

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option customizes a Cache.
type Option func(*Cache)

// WithStore adds a shared store consulted after the in-process map.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// NewCache memoizes next. model scopes store keys so that vectors of
// different models never mix.
func NewCache(next ai.Embedder, model string, opts ...Option) *Cache {
	c := &Cache{
		next:   next,
		model:  model,
		memory: make(map[string][]float64),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns a copy of the cached vector or asks the provider. Store
// failures are logged and never fail the lookup.
//
// Concurrent callers for the same text share one fill. The fill ignores the
// cancellation of the caller that started it and is bounded by the provider's
// per-call timeout. Every caller still returns early on its own ctx.
func (c *Cache) Embed(ctx context.Context, text string) ([]float64, error) {
	if vec, ok := c.lookup(text); ok {
		c.metrics.ObserveEmbedding(metrics.SourceMemory)
		return vec, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fillCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(text, func() (any, error) {
		return c.fill(fillCtx, text)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]float64)), nil
	}
}

func (c *Cache) fill(ctx context.Context, text string) ([]float64, error) {
	if vec, ok := c.lookup(text); ok {
		c.metrics.ObserveEmbedding(metrics.SourceMemory)
		return vec, nil
	}

	key := Key(c.model, text)
	if c.store != nil {
		vec, ok, err := c.store.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("embedding store lookup failed", zap.String("key", key), zap.Error(err))
		case ok:
			c.metrics.ObserveEmbedding(metrics.SourceRedis)
			c.remember(text, vec)
			return vec, nil
		}
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.metrics.ObserveEmbedding(metrics.SourceProvider)
	c.remember(text, vec)

	if c.store != nil {
		if err := c.store.Set(ctx, key, vec); err != nil {
			c.logger.Warn("embedding store write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return vec, nil
}

// Len returns the number of in-process entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.memory)
}

func (c *Cache) lookup(text string) ([]float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.memory[text]
	if !ok {
		return nil, false
	}
	return clone(vec), true
}

func (c *Cache) remember(text string, vec []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory[text] = clone(vec)
}

// Key builds the store key of text for model.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + model + ":" + hex.EncodeToString(sum[:])
}

func clone(vec []float64) []float64 {
	return append([]float64(nil), vec...)
}
