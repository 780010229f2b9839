package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/evaluator"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/runfile"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/tracing"
)

const prompt = "Enter a query (or 'QUIT' to exit): "

// app holds the resolved configuration and the services shared by every
// mode. Optional services are started on demand and torn down by close.
type app struct {
	cfg     *config.Config
	opts    *options
	runID   string
	in      io.Reader
	out     io.Writer
	metrics *metrics.Metrics
	checker *health.Checker
	tok     *tokenizer.Tokenizer
	logger  *slog.Logger
	closers []func() error
}

func newApp(ctx context.Context, opts *options, fs *pflag.FlagSet, stdin io.Reader, stdout, stderr io.Writer) (*app, context.Context, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, ctx, err
	}
	applyFlags(cfg, opts, fs)
	if err := cfg.Validate(); err != nil {
		return nil, ctx, apperrors.New(apperrors.ErrConfiguration, opts.configPath, err.Error())
	}
	logger.Setup(stderr, cfg.Logging.Level, cfg.Logging.Format)

	a := &app{
		cfg:     cfg,
		opts:    opts,
		runID:   uuid.NewString(),
		in:      stdin,
		out:     stdout,
		metrics: metrics.New(nil),
		checker: health.NewChecker(),
	}
	ctx = logger.WithRunID(ctx, a.runID)
	a.logger = logger.FromContext(ctx).With("component", "bm25", "mode", opts.mode)

	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, a.metrics, a.checker)
		a.onClose(func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdown(shutdownCtx)
		})
	}
	a.logger.Info("starting",
		"config", opts.configPath,
		"index", cfg.Index.Path,
		"k1", cfg.Search.K1,
		"b", cfg.Search.B,
		"strategy", cfg.Search.Strategy,
	)
	return a, ctx, nil
}

// applyFlags copies every flag the user set explicitly over the loaded
// configuration.
func applyFlags(cfg *config.Config, o *options, fs *pflag.FlagSet) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("documents", func() { cfg.Corpus.DocumentsDir = o.documents })
	set("stopwords", func() { cfg.Corpus.StopwordsPath = o.stopwords })
	set("index", func() { cfg.Index.Path = o.indexPath })
	set("rebuild", func() { cfg.Index.Rebuild = o.rebuild })
	set("queries", func() { cfg.Search.QueriesPath = o.queries })
	set("run", func() { cfg.Search.RunPath = o.runPath })
	set("strategy", func() { cfg.Search.Strategy = o.strategy })
	set("k1", func() { cfg.Search.K1 = o.k1 })
	set("b", func() { cfg.Search.B = o.b })
	set("qrels", func() { cfg.Evaluation.QrelsPath = o.qrels })
	set("qrels-format", func() { cfg.Evaluation.QrelsFormat = o.qrelsFormat })
	set("p10", func() { cfg.Evaluation.P10Mode = o.p10 })
	set("label", func() { cfg.Evaluation.Label = o.label })
	set("workers", func() {
		cfg.Index.Workers = o.workers
		cfg.Search.Workers = o.workers
	})
	set("limit", func() {
		if o.mode == "interactive" {
			cfg.Search.InteractiveLimit = o.limit
		} else {
			cfg.Search.BatchLimit = o.limit
		}
	})
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// close releases services in reverse start order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("shutdown error", "error", err)
		}
	}
	a.closers = nil
}

func (a *app) engine() *indexer.Engine {
	return indexer.NewEngine(a.cfg.Index, a.cfg.Corpus, a.metrics)
}

func (a *app) tokenizer() (*tokenizer.Tokenizer, error) {
	if a.tok == nil {
		tok, err := indexer.LoadTokenizer(a.cfg.Corpus)
		if err != nil {
			return nil, err
		}
		a.tok = tok
	}
	return a.tok, nil
}

// openIndex loads the persisted index, building it first when it is absent
// or a rebuild was requested.
func (a *app) openIndex(ctx context.Context) (*index.Index, store.Info, error) {
	tok, err := a.tokenizer()
	if err != nil {
		return nil, store.Info{}, err
	}
	idx, info, err := a.engine().Open(ctx, tok)
	if err != nil {
		return nil, store.Info{}, err
	}
	a.registerIndexCheck(idx)
	return idx, info, nil
}

func (a *app) registerIndexCheck(idx *index.Index) {
	a.checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if idx.NumDocs == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "index is empty"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, %d terms", idx.NumDocs, len(idx.Terms)),
		}
	})
}

func (a *app) executor(idx *index.Index, info store.Info, mode analytics.Mode, qc *cache.QueryCache, events analytics.Recorder) (*executor.Executor, error) {
	strategy, err := ranker.ParseStrategy(a.cfg.Search.Strategy)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrConfiguration, a.opts.configPath, err.Error())
	}
	return executor.New(idx, executor.Options{
		Params:            ranker.Params{K1: a.cfg.Search.K1, B: a.cfg.Search.B},
		Strategy:          strategy,
		ExhaustiveMaxDocs: a.cfg.Search.ExhaustiveMaxDocs,
		Workers:           a.cfg.Search.Workers,
		Fingerprint:       info.Checksum,
		Mode:              mode,
		Cache:             qc,
		Events:            events,
		Metrics:           a.metrics,
	}), nil
}

// recorders returns the event sinks for a scoring session: always the
// in-process aggregator, plus the Kafka collector when it is running.
func (a *app) recorders(ctx context.Context) (*analytics.Aggregator, analytics.Recorder) {
	agg := analytics.NewAggregator()
	sinks := analytics.Multi{agg}
	if c := a.startCollector(ctx); c != nil {
		sinks = append(sinks, c)
	}
	return agg, sinks
}

func (a *app) build(ctx context.Context) error {
	tok, err := a.tokenizer()
	if err != nil {
		return err
	}
	idx, info, err := a.engine().Build(ctx, tok)
	if err != nil {
		return err
	}
	if qc := a.sharedCache(ctx); qc != nil {
		if err := qc.Invalidate(ctx); err != nil {
			a.logger.Warn("query cache invalidation failed", "error", err)
		}
	}
	fmt.Fprintf(a.out, "Indexed %d documents (%d terms, avg length %.2f)\n", idx.NumDocs, len(idx.Terms), idx.AvgDocLength)
	fmt.Fprintf(a.out, "Index written to %s (%s, %d bytes, fingerprint %08x)\n", info.Path, info.Format, info.SizeBytes, info.Checksum)
	return nil
}

func (a *app) batch(ctx context.Context) error {
	ctx, root := tracing.Start(ctx, "batch")
	defer func() {
		root.End()
		root.Log(a.logger)
	}()

	octx, load := tracing.Start(ctx, "index.open")
	idx, info, err := a.openIndex(octx)
	if err != nil {
		return err
	}
	load.Set("docs", idx.NumDocs, "terms", len(idx.Terms))
	loadTime := load.End()

	_, parse := tracing.Start(ctx, "queries.load")
	queries, err := parser.LoadQueries(a.cfg.Search.QueriesPath, a.tok)
	if err != nil {
		return err
	}
	parse.Set("queries", len(queries))
	parse.End()

	agg, events := a.recorders(ctx)
	exec, err := a.executor(idx, info, analytics.ModeBatch, nil, events)
	if err != nil {
		return err
	}

	rctx, rank := tracing.Start(ctx, "rank")
	run, err := exec.RunBatch(rctx, queries, a.cfg.Search.BatchLimit)
	if err != nil {
		return err
	}
	rank.Set("strategy", exec.Strategy(), "workers", a.cfg.Search.Workers)
	searchTime := rank.End()

	_, write := tracing.Start(ctx, "runfile.write")
	if err := runfile.WriteFile(a.cfg.Search.RunPath, run); err != nil {
		return err
	}
	write.Set("path", a.cfg.Search.RunPath)
	write.End()

	fmt.Fprintf(a.out, "Index load time: %s\n", loadTime)
	fmt.Fprintf(a.out, "Search time: %s\n", searchTime)
	fmt.Fprintf(a.out, "Ranked %d queries with %s scoring; run written to %s\n", len(run.Order), exec.Strategy(), a.cfg.Search.RunPath)

	s := agg.Summary()
	a.logger.Info("batch complete",
		"queries", s.TotalQueries,
		"zero_result", s.ZeroResultCount,
		"avg_latency_ms", s.AvgLatencyMs,
		"p95_latency_ms", s.P95LatencyMs,
		"top_terms", s.TopTerms,
	)
	if len(s.ZeroResultQueries) > 0 {
		a.logger.Warn("queries with no matching documents", "query_ids", s.ZeroResultQueries)
	}
	return nil
}

func (a *app) interactive(ctx context.Context) error {
	idx, info, err := a.openIndex(ctx)
	if err != nil {
		return err
	}
	agg, events := a.recorders(ctx)
	exec, err := a.executor(idx, info, analytics.ModeInteractive, a.queryCache(ctx), events)
	if err != nil {
		return err
	}
	defer func() {
		s := agg.Summary()
		a.logger.Info("session ended", "queries", s.TotalQueries, "cache_hits", s.CacheHits, "avg_latency_ms", s.AvgLatencyMs)
	}()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for n := 1; ; {
		fmt.Fprint(a.out, prompt)
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(a.out)
			select {
			case err := <-scanErr:
				return err
			default:
				return nil
			}
		}
		line = strings.TrimSpace(line)
		if line == a.cfg.Search.QuitCommand {
			return nil
		}
		if line == "" {
			continue
		}

		q := parser.FromText(fmt.Sprintf("interactive-%d", n), line, a.tok)
		n++
		res, err := exec.Search(ctx, q, a.cfg.Search.InteractiveLimit)
		if err != nil {
			return err
		}
		if len(res.Results) == 0 {
			fmt.Fprintln(a.out, "No matching documents.")
			continue
		}
		for i, r := range res.Results {
			fmt.Fprintf(a.out, "%d %s %.4f\n", i+1, r.DocID, r.Score)
		}
	}
}

func (a *app) evaluate(ctx context.Context) error {
	ctx, root := tracing.Start(ctx, "evaluate")
	defer func() {
		root.End()
		root.Log(a.logger)
	}()

	_, load := tracing.Start(ctx, "inputs.load")
	run, err := runfile.ReadFile(a.cfg.Search.RunPath)
	if err != nil {
		return err
	}
	format, err := evaluator.ParseFormat(a.cfg.Evaluation.QrelsFormat)
	if err != nil {
		return apperrors.New(apperrors.ErrConfiguration, a.opts.configPath, err.Error())
	}
	mode, err := evaluator.ParseP10Mode(a.cfg.Evaluation.P10Mode)
	if err != nil {
		return apperrors.New(apperrors.ErrConfiguration, a.opts.configPath, err.Error())
	}
	qrels, err := evaluator.LoadQrels(a.cfg.Evaluation.QrelsPath, format)
	if err != nil {
		return err
	}
	load.Set("run_queries", len(run.Order), "judged_queries", len(qrels))
	load.End()

	sctx, score := tracing.Start(ctx, "score")
	report, err := evaluator.Evaluate(sctx, run.Ranked(), qrels, evaluator.Options{P10: mode, Workers: a.cfg.Search.Workers})
	if err != nil {
		return err
	}
	score.Set("map", report.Mean.MAP, "p10_mode", mode)
	score.End()
	a.metrics.EvaluationDone()
	if err := report.Format(a.out); err != nil {
		return err
	}
	if a.opts.perQuery {
		fmt.Fprintln(a.out)
		if err := report.FormatQueries(a.out); err != nil {
			return err
		}
	}
	a.archiveReport(ctx, report)
	return nil
}

// label names an archived evaluation; it defaults to the run file's base
// name without extension.
func (a *app) label() string {
	if a.cfg.Evaluation.Label != "" {
		return a.cfg.Evaluation.Label
	}
	base := filepath.Base(a.cfg.Search.RunPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
