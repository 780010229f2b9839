package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/resilience"
)

func testKey(terms ...string) Key {
	return Key{Fingerprint: 0xdeadbeef, Params: ranker.DefaultParams(), Strategy: ranker.StrategyPostings, Limit: 15, Terms: terms}
}

func TestKeyDistinguishesInputs(t *testing.T) {
	base := testKey("shock", "wave")
	assert.Equal(t, base.String(), testKey("shock", "wave").String())

	variants := []Key{
		testKey("wave", "shock"),
		testKey("shock", "wave", "wave"),
		testKey("shockwave"),
		{Fingerprint: 1, Params: base.Params, Strategy: base.Strategy, Limit: base.Limit, Terms: base.Terms},
		{Fingerprint: base.Fingerprint, Params: ranker.Params{K1: 1.2, B: 0.75}, Strategy: base.Strategy, Limit: base.Limit, Terms: base.Terms},
		{Fingerprint: base.Fingerprint, Params: base.Params, Strategy: ranker.StrategyExhaustive, Limit: base.Limit, Terms: base.Terms},
		{Fingerprint: base.Fingerprint, Params: base.Params, Strategy: base.Strategy, Limit: 0, Terms: base.Terms},
	}
	seen := map[string]bool{base.String(): true}
	for _, v := range variants {
		k := v.String()
		assert.False(t, seen[k], "collision for %+v", v)
		seen[k] = true
		assert.Contains(t, k, keyPrefix)
	}
}

func TestGetOrCompute(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(NewLocalBackend(16, time.Minute), time.Minute, m)
	want := []ranker.ScoredDoc{{DocID: "d1", Score: 1.0 / 3.0}, {DocID: "d2", Score: -0.25}}

	calls := 0
	compute := func() ([]ranker.ScoredDoc, error) {
		calls++
		return want, nil
	}
	got, hit, err := c.GetOrCompute(context.Background(), testKey("a"), compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, want, got)

	got, hit, err = c.GetOrCompute(context.Background(), testKey("a"), compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got, "cached scores round-trip exactly")
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestGetOrComputeEmptyResult(t *testing.T) {
	c := New(NewLocalBackend(16, time.Minute), time.Minute, nil)
	_, _, err := c.GetOrCompute(context.Background(), testKey("zzz"), func() ([]ranker.ScoredDoc, error) {
		return nil, nil
	})
	require.NoError(t, err)
	got, ok := c.Get(context.Background(), testKey("zzz"))
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestGetOrComputeError(t *testing.T) {
	backend := NewLocalBackend(16, time.Minute)
	c := New(backend, time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), testKey("a"), func() ([]ranker.ScoredDoc, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, backend.Len(), "failures are not cached")
}

func TestGetOrComputeCollapsesConcurrentCalls(t *testing.T) {
	c := New(NewLocalBackend(16, time.Minute), time.Minute, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() ([]ranker.ScoredDoc, error) {
		calls.Add(1)
		<-release
		return []ranker.ScoredDoc{{DocID: "d", Score: 1}}, nil
	}

	var wg sync.WaitGroup
	var started sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		started.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			_, _, err := c.GetOrCompute(context.Background(), testKey("same"), compute)
			assert.NoError(t, err)
		}()
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func (failingBackend) FlushByPattern(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestBackendFailureDegradesToCompute(t *testing.T) {
	c := New(failingBackend{}, time.Minute, nil)
	got, hit, err := c.GetOrCompute(context.Background(), testKey("a"), func() ([]ranker.ScoredDoc, error) {
		return []ranker.ScoredDoc{{DocID: "d1", Score: 2}}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, got, 1)
	assert.Error(t, c.Invalidate(context.Background()))
}

func TestInvalidate(t *testing.T) {
	backend := NewLocalBackend(16, time.Minute)
	c := New(backend, time.Minute, nil)
	c.Set(context.Background(), testKey("a"), []ranker.ScoredDoc{{DocID: "x", Score: 1}})
	c.Set(context.Background(), testKey("b"), []ranker.ScoredDoc{{DocID: "y", Score: 1}})
	require.NoError(t, backend.Set(context.Background(), "other:key", []byte("keep"), time.Minute))
	require.Equal(t, 3, backend.Len())

	require.NoError(t, c.Invalidate(context.Background()))
	assert.Equal(t, 1, backend.Len())
	_, ok := c.Get(context.Background(), testKey("a"))
	assert.False(t, ok)
}

func TestLocalBackendEvicts(t *testing.T) {
	backend := NewLocalBackend(2, time.Minute)
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, "k1", []byte("1"), 0))
	require.NoError(t, backend.Set(ctx, "k2", []byte("2"), 0))
	require.NoError(t, backend.Set(ctx, "k3", []byte("3"), 0))
	_, ok, _ := backend.Get(ctx, "k1")
	assert.False(t, ok)
	v, ok, _ := backend.Get(ctx, "k3")
	assert.True(t, ok)
	assert.Equal(t, []byte("3"), v)
}

type countingBackend struct {
	failingBackend
	calls atomic.Int32
}

func (b *countingBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.calls.Add(1)
	return b.failingBackend.Get(ctx, key)
}

func (b *countingBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.calls.Add(1)
	return b.failingBackend.Set(ctx, key, value, ttl)
}

func TestBreakerStopsCallingFailedBackend(t *testing.T) {
	backend := &countingBackend{}
	breaker := resilience.NewBreaker("query-cache", resilience.BreakerConfig{Threshold: 2, Cooldown: time.Hour})
	c := New(WithBreaker(backend, breaker), time.Minute, nil)
	compute := func() ([]ranker.ScoredDoc, error) {
		return []ranker.ScoredDoc{{DocID: "d1", Score: 1}}, nil
	}

	for i := 0; i < 5; i++ {
		got, hit, err := c.GetOrCompute(context.Background(), testKey("a"), compute)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Len(t, got, 1)
	}
	assert.Equal(t, int32(2), backend.calls.Load())
	assert.Equal(t, resilience.StateOpen, breaker.State())
	assert.ErrorIs(t, c.Invalidate(context.Background()), resilience.ErrCircuitOpen)
}

func TestBreakerPassesThroughHealthyBackend(t *testing.T) {
	backend := WithBreaker(NewLocalBackend(4, time.Minute), resilience.NewBreaker("local", resilience.BreakerConfig{}))
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, "bm25:k", []byte("v"), time.Minute))
	v, ok, err := backend.Get(ctx, "bm25:k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
	n, err := backend.FlushByPattern(ctx, "bm25:*")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
