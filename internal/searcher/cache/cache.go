// Package cache memoises ranked results per (index, parameters, query terms)
// in Redis or an in-process LRU, collapsing concurrent identical
// computations with singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/resilience"
)

const keyPrefix = "bm25:"

// Key identifies one cached ranking. Terms are kept in query order since
// repeated terms change scores.
type Key struct {
	Fingerprint uint32
	Params      ranker.Params
	Strategy    ranker.Strategy
	Limit       int
	Terms       []string
}

func (k Key) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%08x|", k.Fingerprint)
	b.WriteString(strconv.FormatFloat(k.Params.K1, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(k.Params.B, 'g', -1, 64))
	fmt.Fprintf(&b, "|%s|%d|", k.Strategy, k.Limit)
	b.WriteString(strings.Join(k.Terms, "\x1f"))
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns a cached ranking. Backend failures are logged and reported as
// misses.
func (c *QueryCache) Get(ctx context.Context, key Key) ([]ranker.ScoredDoc, bool) {
	k := key.String()
	data, ok, err := c.backend.Get(ctx, k)
	if err != nil {
		c.logFailure("cache get failed", k, err)
		c.miss()
		return nil, false
	}
	if !ok {
		c.miss()
		return nil, false
	}
	var results []ranker.ScoredDoc
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHit()
	c.logger.Debug("cache hit", "key", k, "terms", key.Terms)
	return results, true
}

func (c *QueryCache) Set(ctx context.Context, key Key, results []ranker.ScoredDoc) {
	k := key.String()
	if results == nil {
		results = []ranker.ScoredDoc{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.backend.Set(ctx, k, data, c.ttl); err != nil {
		c.logFailure("cache set failed", k, err)
	}
}

// GetOrCompute serves key from the cache or computes and stores it. The
// second result reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	compute func() ([]ranker.ScoredDoc, error),
) ([]ranker.ScoredDoc, bool, error) {
	if results, ok := c.Get(ctx, key); ok {
		return results, true, nil
	}
	val, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		results, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]ranker.ScoredDoc), false, nil
}

// Invalidate drops every cached ranking, e.g. after an index rebuild.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss()
}

// logFailure keeps an open circuit from logging an error per query.
func (c *QueryCache) logFailure(msg, key string, err error) {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Debug(msg, "key", key, "error", err)
		return
	}
	c.logger.Error(msg, "key", key, "error", err)
}
