// Package executor scores parsed queries against a shared, read-only index,
// one at a time or as a parallel batch.
package executor

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/runfile"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/metrics"
)

type SearchResult struct {
	QueryID  string             `json:"query_id"`
	Query    string             `json:"query"`
	Terms    []string           `json:"terms"`
	Strategy ranker.Strategy    `json:"strategy"`
	Results  []ranker.ScoredDoc `json:"results"`
	CacheHit bool               `json:"cache_hit"`
	Elapsed  time.Duration      `json:"elapsed"`
}

// Options configure an Executor. Cache, Events and Metrics are optional.
type Options struct {
	Params            ranker.Params
	Strategy          ranker.Strategy
	ExhaustiveMaxDocs int
	Workers           int
	// Fingerprint identifies the index contents in cache keys.
	Fingerprint uint32
	Mode        analytics.Mode
	Cache       *cache.QueryCache
	Events      analytics.Recorder
	Metrics     *metrics.Metrics
}

type Executor struct {
	idx      *index.Index
	opts     Options
	strategy ranker.Strategy
	logger   *slog.Logger
}

func New(idx *index.Index, opts Options) *Executor {
	if opts.Strategy == "" {
		opts.Strategy = ranker.StrategyAuto
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	e := &Executor{
		idx:      idx,
		opts:     opts,
		strategy: ranker.Select(opts.Strategy, idx.NumDocs, opts.ExhaustiveMaxDocs),
		logger:   slog.Default().With("component", "query-executor"),
	}
	e.logger.Debug("executor ready", "strategy", e.strategy, "docs", idx.NumDocs, "k1", opts.Params.K1, "b", opts.Params.B)
	return e
}

// Strategy is the resolved scoring strategy.
func (e *Executor) Strategy() ranker.Strategy {
	return e.strategy
}

// Search ranks one query and truncates to limit (<= 0 keeps every match).
// A query with no index terms yields an empty result, not an error.
func (e *Executor) Search(ctx context.Context, q parser.Query, limit int) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	result := &SearchResult{
		QueryID:  q.ID,
		Query:    q.Raw,
		Terms:    q.Terms,
		Strategy: e.strategy,
	}
	if len(q.Terms) == 0 {
		e.logger.Warn("empty query", "query_id", q.ID, "raw", q.Raw)
		result.Results = []ranker.ScoredDoc{}
		e.observe(result, start, nil)
		return result, nil
	}

	compute := func() ([]ranker.ScoredDoc, error) {
		return ranker.Truncate(ranker.Score(e.strategy, q.Terms, e.idx, e.opts.Params), limit), nil
	}
	var err error
	if e.opts.Cache != nil {
		key := cache.Key{
			Fingerprint: e.opts.Fingerprint,
			Params:      e.opts.Params,
			Strategy:    e.strategy,
			Limit:       limit,
			Terms:       q.Terms,
		}
		result.Results, result.CacheHit, err = e.opts.Cache.GetOrCompute(ctx, key, compute)
	} else {
		result.Results, err = compute()
	}
	e.observe(result, start, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunBatch scores queries concurrently over the shared index and returns
// the run in input order. The first error cancels the remaining queries.
func (e *Executor) RunBatch(ctx context.Context, queries []parser.Query, limit int) (runfile.Run, error) {
	results := make([][]ranker.ScoredDoc, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			res, err := e.Search(gctx, q, limit)
			if err != nil {
				return err
			}
			results[i] = res.Results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return runfile.Run{}, err
	}

	run := runfile.New()
	for i, q := range queries {
		run.Add(q.ID, results[i])
	}
	e.logger.Info("batch scored", "queries", len(queries), "workers", e.opts.Workers, "strategy", e.strategy)
	return run, nil
}

func (e *Executor) observe(result *SearchResult, start time.Time, err error) {
	result.Elapsed = time.Since(start)
	e.opts.Metrics.ObserveQuery(string(e.strategy), result.CacheHit, len(result.Results), result.Elapsed, err)
	if err != nil || e.opts.Events == nil {
		return
	}
	ev := analytics.QueryEvent{
		Mode:      e.opts.Mode,
		QueryID:   result.QueryID,
		Terms:     result.Terms,
		Results:   len(result.Results),
		Strategy:  string(e.strategy),
		LatencyMs: float64(result.Elapsed.Microseconds()) / 1000,
		CacheHit:  result.CacheHit,
		Timestamp: time.Now().UTC(),
	}
	if len(result.Results) > 0 {
		ev.TopDoc = result.Results[0].DocID
		ev.TopScore = result.Results[0].Score
	}
	e.opts.Events.Record(ev)
}
