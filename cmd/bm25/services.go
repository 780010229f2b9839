package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/archive"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/evaluator"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/resilience"
)

// External services are optional. A service that is enabled but unreachable
// is logged and skipped; ranking and evaluation still complete.

// sharedCache connects the Redis-backed query cache, or returns nil when
// Redis is disabled or unreachable.
func (a *app) sharedCache(ctx context.Context) *cache.QueryCache {
	if !a.cfg.Redis.Enabled {
		return nil
	}
	client, err := pkgredis.NewClient(ctx, a.cfg.Redis)
	if err != nil {
		a.logger.Warn("redis unavailable, shared query cache disabled", "addr", a.cfg.Redis.Addr, "error", err)
		return nil
	}
	a.onClose(client.Close)
	a.checker.Register("query_cache", health.Probe(client.Ping))
	a.logger.Info("query cache enabled", "backend", "redis", "addr", a.cfg.Redis.Addr, "ttl", a.cfg.Redis.CacheTTL)
	breaker := resilience.NewBreaker("redis-cache", resilience.BreakerConfig{})
	return cache.New(cache.WithBreaker(client, breaker), a.cfg.Redis.CacheTTL, a.metrics)
}

// queryCache prefers the shared Redis cache and falls back to an in-process
// LRU. It returns nil when caching is turned off.
func (a *app) queryCache(ctx context.Context) *cache.QueryCache {
	if qc := a.sharedCache(ctx); qc != nil {
		return qc
	}
	size := a.cfg.Redis.LocalCacheSize
	if size <= 0 {
		return nil
	}
	a.logger.Info("query cache enabled", "backend", "local", "size", size, "ttl", a.cfg.Redis.CacheTTL)
	return cache.New(cache.NewLocalBackend(size, a.cfg.Redis.CacheTTL), a.cfg.Redis.CacheTTL, a.metrics)
}

// startCollector publishes query events to Kafka when enabled and the
// brokers answer.
func (a *app) startCollector(ctx context.Context) *analytics.Collector {
	if !a.cfg.Kafka.Enabled {
		return nil
	}
	producer := kafka.NewProducer(a.cfg.Kafka)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := producer.Ping(pingCtx)
	cancel()
	if err != nil {
		a.logger.Warn("kafka unavailable, query events will not be published", "brokers", a.cfg.Kafka.Brokers, "error", err)
		producer.Close()
		return nil
	}
	collector := analytics.NewCollector(producer, a.cfg.Kafka.BufferSize, a.metrics)
	collector.Start(ctx)
	a.onClose(func() error {
		collector.Close()
		return producer.Close()
	})
	a.checker.Register("analytics", health.Probe(producer.Ping))
	a.logger.Info("query events enabled", "topic", a.cfg.Kafka.Topic)
	return collector
}

// archiveReport stores the report in Postgres and prints the change against
// the previous run with the same label.
func (a *app) archiveReport(ctx context.Context, report evaluator.Report) {
	if !a.cfg.Postgres.Enabled {
		return
	}
	db, err := postgres.New(ctx, a.cfg.Postgres)
	if err != nil {
		a.logger.Warn("postgres unavailable, evaluation not archived", "host", a.cfg.Postgres.Host, "error", err)
		return
	}
	defer db.Close()

	store := archive.New(db)
	label := a.label()
	prev, err := store.LatestSummary(ctx, label)
	if err != nil {
		a.logger.Warn("loading previous evaluation failed", "label", label, "error", err)
	}
	id, err := store.SaveReport(ctx, label, report)
	if err != nil {
		a.logger.Warn("archiving evaluation failed", "label", label, "error", err)
		return
	}
	fmt.Fprintf(a.out, "\nArchived as %s (label %q)\n", id, label)
	if prev != nil {
		fmt.Fprintf(a.out, "Change vs previous: MAP %+.4f, Bpref %+.4f, P@10 %+.4f\n",
			report.Mean.MAP-prev.MAP, report.Mean.Bpref-prev.Bpref, report.Mean.P10-prev.P10)
	}
}
