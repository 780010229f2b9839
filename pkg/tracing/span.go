// Package tracing times the stages of a run. Spans nest through the
// context and the finished tree is written to a slog logger.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

type Span struct {
	Name  string
	Start time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	attrs    []any
	children []*Span
}

// Start opens a span as a child of the span carried by ctx, if any.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{Name: name, Start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// End fixes the span duration and returns it. Later calls return the first
// duration.
func (s *Span) End() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.duration = time.Since(s.Start)
		s.ended = true
	}
	return s.duration
}

// Duration is the elapsed time so far for an open span.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationLocked()
}

// Set records slog-style key/value attributes.
func (s *Span) Set(args ...any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, args...)
	s.mu.Unlock()
}

func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Log writes one record per span, depth first, with the parent path as the
// span name (e.g. "batch/rank").
func (s *Span) Log(logger *slog.Logger) {
	s.log(logger, "")
}

func (s *Span) log(logger *slog.Logger, prefix string) {
	path := prefix + s.Name
	s.mu.Lock()
	args := append([]any{"span", path, "duration_ms", float64(s.durationLocked().Microseconds()) / 1000}, s.attrs...)
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()
	logger.Info("span", args...)
	for _, child := range children {
		child.log(logger, path+"/")
	}
}

func (s *Span) durationLocked() time.Duration {
	if s.ended {
		return s.duration
	}
	return time.Since(s.Start)
}
