package cache

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	pkgredis "github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/resilience"
)

// Backend stores encoded results by key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

var _ Backend = (*pkgredis.Client)(nil)

// WithBreaker routes every backend call through breaker. While the circuit
// is open calls fail immediately with resilience.ErrCircuitOpen, which the
// query cache treats as a miss.
func WithBreaker(backend Backend, breaker *resilience.Breaker) Backend {
	return &guarded{backend: backend, breaker: breaker}
}

type guarded struct {
	backend Backend
	breaker *resilience.Breaker
}

func (g *guarded) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	err = g.breaker.Do(func() error {
		var getErr error
		value, found, getErr = g.backend.Get(ctx, key)
		return getErr
	})
	return value, found, err
}

func (g *guarded) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return g.breaker.Do(func() error {
		return g.backend.Set(ctx, key, value, ttl)
	})
}

func (g *guarded) FlushByPattern(ctx context.Context, pattern string) (deleted int64, err error) {
	err = g.breaker.Do(func() error {
		var flushErr error
		deleted, flushErr = g.backend.FlushByPattern(ctx, pattern)
		return flushErr
	})
	return deleted, err
}

// LocalBackend is an in-process LRU used when Redis is disabled. Entries
// expire after the ttl given to NewLocalBackend; the per-call ttl is ignored.
type LocalBackend struct {
	lru *expirable.LRU[string, []byte]
}

func NewLocalBackend(size int, ttl time.Duration) *LocalBackend {
	return &LocalBackend{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (l *LocalBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := l.lru.Get(key)
	return v, ok, nil
}

func (l *LocalBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	l.lru.Add(key, value)
	return nil
}

// FlushByPattern supports the trailing-"*" prefix patterns the query cache
// issues.
func (l *LocalBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var deleted int64
	for _, key := range l.lru.Keys() {
		if strings.HasPrefix(key, prefix) && l.lru.Remove(key) {
			deleted++
		}
	}
	return deleted, nil
}

func (l *LocalBackend) Len() int {
	return l.lru.Len()
}
