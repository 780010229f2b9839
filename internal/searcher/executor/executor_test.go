package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/metrics"
)

var corpus = map[string]string{
	"1": "experimental investigation of the aerodynamics of a wing in a slipstream",
	"2": "simple shear flow past a flat plate in an incompressible fluid of small viscosity",
	"3": "the boundary layer in simple shear flow past a flat plate",
	"4": "approximate solutions of the incompressible laminar boundary layer equations for a plate in shear flow",
	"5": "one-dimensional transient heat conduction into a double-layer slab",
	"6": "heat transfer in slip flow",
}

func setup(t testing.TB) (*index.Index, *tokenizer.Tokenizer) {
	t.Helper()
	tok := tokenizer.New(tokenizer.DefaultStopwords(), tokenizer.Snowball{})
	idx, err := index.Build(context.Background(), corpus, tok, index.BuildOptions{})
	require.NoError(t, err)
	return idx, tok
}

func TestSearch(t *testing.T) {
	idx, tok := setup(t)
	e := New(idx, Options{Params: ranker.DefaultParams(), Strategy: ranker.StrategyPostings})

	res, err := e.Search(context.Background(), parser.FromText("q1", "shear flow past a plate", tok), 0)
	require.NoError(t, err)
	assert.Equal(t, "q1", res.QueryID)
	assert.Equal(t, ranker.StrategyPostings, res.Strategy)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, ranker.Rank(res.Terms, idx, ranker.DefaultParams()), res.Results)

	limited, err := e.Search(context.Background(), parser.FromText("q1", "shear flow past a plate", tok), 2)
	require.NoError(t, err)
	assert.Equal(t, res.Results[:2], limited.Results)
}

func TestSearchEmptyQuery(t *testing.T) {
	idx, tok := setup(t)
	e := New(idx, Options{Params: ranker.DefaultParams()})
	for _, text := range []string{"", "the of a", "zeppelin"} {
		res, err := e.Search(context.Background(), parser.FromText("q", text, tok), 15)
		require.NoError(t, err)
		assert.NotNil(t, res.Results)
		assert.Empty(t, res.Results)
	}
}

func TestStrategiesAgree(t *testing.T) {
	idx, tok := setup(t)
	q := parser.FromText("q", "heat transfer boundary layer flow", tok)
	postings := New(idx, Options{Params: ranker.DefaultParams(), Strategy: ranker.StrategyPostings})
	exhaustive := New(idx, Options{Params: ranker.DefaultParams(), Strategy: ranker.StrategyExhaustive})
	auto := New(idx, Options{Params: ranker.DefaultParams(), ExhaustiveMaxDocs: 100})
	assert.Equal(t, ranker.StrategyExhaustive, auto.Strategy())

	a, err := postings.Search(context.Background(), q, 0)
	require.NoError(t, err)
	b, err := exhaustive.Search(context.Background(), q, 0)
	require.NoError(t, err)
	assert.Equal(t, a.Results, b.Results)
}

func TestRunBatchPreservesOrder(t *testing.T) {
	idx, tok := setup(t)
	queries := make([]parser.Query, 0, 40)
	texts := []string{"shear flow", "heat slab", "wing slipstream", "boundary layer plate", "nothing matches zeppelin"}
	for i := 0; i < 40; i++ {
		queries = append(queries, parser.FromText(fmt.Sprintf("q%02d", 40-i), texts[i%len(texts)], tok))
	}
	agg := analytics.NewAggregator()
	m := metrics.New(prometheus.NewRegistry())
	e := New(idx, Options{Params: ranker.DefaultParams(), Workers: 4, Mode: analytics.ModeBatch, Events: agg, Metrics: m})

	run, err := e.RunBatch(context.Background(), queries, 0)
	require.NoError(t, err)
	require.Len(t, run.Order, 40)
	for i, q := range queries {
		assert.Equal(t, q.ID, run.Order[i])
		assert.Equal(t, ranker.Rank(q.Terms, idx, ranker.DefaultParams()), run.Results[q.ID])
	}

	summary := agg.Summary()
	assert.Equal(t, int64(40), summary.TotalQueries)
	assert.Equal(t, int64(8), summary.ZeroResultCount)
	assert.Equal(t, 2, testutil.CollectAndCount(m.QueriesTotal), "hit and zero_result series")
	assert.Equal(t, 8.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("postings", "zero_result")))
}

func TestRunBatchCancelled(t *testing.T) {
	idx, tok := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New(idx, Options{Params: ranker.DefaultParams()})
	_, err := e.RunBatch(ctx, []parser.Query{parser.FromText("q", "heat", tok)}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchUsesCache(t *testing.T) {
	idx, tok := setup(t)
	qc := cache.New(cache.NewLocalBackend(64, time.Minute), time.Minute, nil)
	agg := analytics.NewAggregator()
	e := New(idx, Options{Params: ranker.DefaultParams(), Fingerprint: 42, Cache: qc, Events: agg, Mode: analytics.ModeInteractive})
	q := parser.FromText("interactive", "heat transfer", tok)

	first, err := e.Search(context.Background(), q, 15)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := e.Search(context.Background(), q, 15)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)

	summary := agg.Summary()
	assert.Equal(t, int64(1), summary.CacheHits)
	assert.Equal(t, int64(1), summary.CacheMisses)
}

func BenchmarkRunBatch(b *testing.B) {
	idx, tok := setup(b)
	queries := make([]parser.Query, 200)
	for i := range queries {
		queries[i] = parser.FromText(fmt.Sprintf("q%d", i), "boundary layer shear flow heat", tok)
	}
	e := New(idx, Options{Params: ranker.DefaultParams()})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.RunBatch(context.Background(), queries, 0); err != nil {
			b.Fatal(err)
		}
	}
}
