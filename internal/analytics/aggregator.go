package analytics

import (
	"sort"
	"strings"
	"sync"
)

// Summary aggregates the query events of one run.
type Summary struct {
	TotalQueries      int64       `json:"total_queries"`
	CacheHits         int64       `json:"cache_hits"`
	CacheMisses       int64       `json:"cache_misses"`
	ZeroResultCount   int64       `json:"zero_result_count"`
	AvgLatencyMs      float64     `json:"avg_latency_ms"`
	P50LatencyMs      float64     `json:"p50_latency_ms"`
	P95LatencyMs      float64     `json:"p95_latency_ms"`
	P99LatencyMs      float64     `json:"p99_latency_ms"`
	TopTerms          []TermCount `json:"top_terms"`
	ZeroResultQueries []string    `json:"zero_result_queries"`
}

type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Aggregator keeps in-process statistics over recorded events. It is safe
// for concurrent use by batch workers.
type Aggregator struct {
	mu          sync.Mutex
	total       int64
	cacheHits   int64
	zeroResults []string
	latencies   []float64
	termCounts  map[string]int64
}

func NewAggregator() *Aggregator {
	return &Aggregator{termCounts: make(map[string]int64)}
}

func (a *Aggregator) Record(event QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	if event.CacheHit {
		a.cacheHits++
	}
	if event.Results == 0 {
		a.zeroResults = append(a.zeroResults, event.QueryID)
	}
	a.latencies = append(a.latencies, event.LatencyMs)
	for _, t := range event.Terms {
		a.termCounts[t]++
	}
}

func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{
		TotalQueries:    a.total,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.total - a.cacheHits,
		ZeroResultCount: int64(len(a.zeroResults)),
	}
	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)
		var sum float64
		for _, l := range sorted {
			sum += l
		}
		s.AvgLatencyMs = sum / float64(len(sorted))
		s.P50LatencyMs = percentile(sorted, 50)
		s.P95LatencyMs = percentile(sorted, 95)
		s.P99LatencyMs = percentile(sorted, 99)
	}
	s.TopTerms = topN(a.termCounts, 10)
	s.ZeroResultQueries = append([]string(nil), a.zeroResults...)
	sort.Strings(s.ZeroResultQueries)
	return s
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then term.
func topN(counts map[string]int64, n int) []TermCount {
	result := make([]TermCount, 0, len(counts))
	for term, count := range counts {
		result = append(result, TermCount{Term: term, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return strings.Compare(result[i].Term, result[j].Term) < 0
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
