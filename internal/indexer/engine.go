package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/metrics"
)

// Engine obtains the index for a corpus. The persisted index acts as a build
// cache: it is loaded when present, otherwise the corpus is indexed and the
// result saved. Staleness against the corpus on disk is not detected.
type Engine struct {
	cfg     config.IndexConfig
	corpus  config.CorpusConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewEngine(cfg config.IndexConfig, corpusCfg config.CorpusConfig, m *metrics.Metrics) *Engine {
	return &Engine{
		cfg:     cfg,
		corpus:  corpusCfg,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
}

// LoadTokenizer builds the normaliser shared by documents and queries. The
// built-in stop-word list is used when no stop-word file is configured.
func LoadTokenizer(cfg config.CorpusConfig) (*tokenizer.Tokenizer, error) {
	stop := tokenizer.DefaultStopwords()
	if cfg.StopwordsPath != "" {
		var err error
		if stop, err = tokenizer.LoadStopwords(cfg.StopwordsPath); err != nil {
			return nil, err
		}
	}
	return tokenizer.New(stop, tokenizer.Snowball{}), nil
}

// Open returns the index, loading the persisted copy unless a rebuild was
// requested or none exists yet.
func (e *Engine) Open(ctx context.Context, norm index.Normalizer) (*index.Index, store.Info, error) {
	if !e.cfg.Rebuild && store.Exists(e.cfg.Path) {
		start := time.Now()
		e.logger.Info("loading index", "path", e.cfg.Path)
		idx, info, err := store.Load(e.cfg.Path)
		if err != nil {
			return nil, store.Info{}, fmt.Errorf("loading index: %w", err)
		}
		elapsed := time.Since(start)
		e.metrics.ObserveIndex("loaded", idx.NumDocs, len(idx.Terms), elapsed)
		e.logger.Info("index loaded",
			"path", info.Path,
			"format", info.Format,
			"docs", idx.NumDocs,
			"terms", len(idx.Terms),
			"avg_doc_len", idx.AvgDocLength,
			"elapsed", elapsed,
		)
		return idx, info, nil
	}
	return e.Build(ctx, norm)
}

// Build indexes the configured corpus from scratch and persists it.
func (e *Engine) Build(ctx context.Context, norm index.Normalizer) (*index.Index, store.Info, error) {
	start := time.Now()
	docs, err := corpus.ReadDocuments(e.corpus.DocumentsDir)
	if err != nil {
		return nil, store.Info{}, fmt.Errorf("reading corpus: %w", err)
	}
	e.logger.Info("building index", "documents_dir", e.corpus.DocumentsDir, "docs", len(docs), "workers", e.cfg.Workers)

	idx, err := index.Build(ctx, docs, norm, index.BuildOptions{Workers: e.cfg.Workers})
	if err != nil {
		return nil, store.Info{}, err
	}
	if len(docs) == 0 {
		e.logger.Warn("corpus is empty; every query will return no results", "documents_dir", e.corpus.DocumentsDir)
	}
	empty := 0
	for _, length := range idx.DocLengths {
		if length == 0 {
			empty++
		}
	}
	if empty > 0 {
		e.logger.Warn("documents with no index terms", "count", empty)
	}

	info, err := store.Save(e.cfg.Path, idx)
	if err != nil {
		return nil, store.Info{}, fmt.Errorf("saving index: %w", err)
	}
	elapsed := time.Since(start)
	e.metrics.ObserveIndex("built", idx.NumDocs, len(idx.Terms), elapsed)
	e.logger.Info("index built",
		"path", info.Path,
		"format", info.Format,
		"compressed", info.Compressed,
		"size_bytes", info.SizeBytes,
		"docs", idx.NumDocs,
		"terms", len(idx.Terms),
		"avg_doc_len", idx.AvgDocLength,
		"elapsed", elapsed,
	)
	return idx, info, nil
}
