// Package evaluator scores ranked runs against relevance judgments with the
// standard set-based and rank-based IR metrics. Queries are matched by id.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// P10Mode decides P@10 for queries that retrieved fewer than ten documents.
type P10Mode string

const (
	// P10Strict scores such queries 0.
	P10Strict P10Mode = "strict"
	// P10Partial counts hits among the available ranks, still divided by 10.
	P10Partial P10Mode = "partial"
)

func ParseP10Mode(s string) (P10Mode, error) {
	switch P10Mode(s) {
	case P10Strict, P10Partial:
		return P10Mode(s), nil
	default:
		return "", fmt.Errorf("unknown P@10 mode %q", s)
	}
}

type Options struct {
	P10     P10Mode
	Workers int
}

// QueryMetrics are the per-query values averaged into a Report.
type QueryMetrics struct {
	QueryID           string  `json:"query_id"`
	NumRelevant       int     `json:"num_relevant"`
	NumRetrieved      int     `json:"num_retrieved"`
	RelevantRetrieved int     `json:"relevant_retrieved"`
	Precision         float64 `json:"precision"`
	Recall            float64 `json:"recall"`
	P10               float64 `json:"p10"`
	RPrecision        float64 `json:"r_precision"`
	AP                float64 `json:"ap"`
	Bpref             float64 `json:"bpref"`
}

// Summary holds the arithmetic means over all judged queries.
type Summary struct {
	Precision  float64 `json:"precision"`
	Recall     float64 `json:"recall"`
	P10        float64 `json:"p10"`
	RPrecision float64 `json:"r_precision"`
	MAP        float64 `json:"map"`
	Bpref      float64 `json:"bpref"`
}

// Report is the outcome of one evaluation. Queries is ordered by query id.
// Missing lists judged queries the run never answered; Unjudged lists run
// queries with no judgments, which do not affect the means.
type Report struct {
	P10Mode  P10Mode        `json:"p10_mode"`
	Queries  []QueryMetrics `json:"queries"`
	Mean     Summary        `json:"mean"`
	Missing  []string       `json:"missing"`
	Unjudged []string       `json:"unjudged"`
}

// Evaluate computes per-query metrics in parallel and reduces them to means
// over every query present in qrels.
func Evaluate(ctx context.Context, run map[string][]string, qrels Qrels, opts Options) (Report, error) {
	if opts.P10 == "" {
		opts.P10 = P10Strict
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ids := make([]string, 0, len(qrels))
	for qid := range qrels {
		ids = append(ids, qid)
	}
	sort.Strings(ids)

	report := Report{P10Mode: opts.P10, Queries: make([]QueryMetrics, len(ids))}
	for _, qid := range ids {
		if _, ok := run[qid]; !ok {
			report.Missing = append(report.Missing, qid)
			slog.Warn("judged query missing from run; scoring it zero", "query_id", qid)
		}
	}
	for qid := range run {
		if _, ok := qrels[qid]; !ok {
			report.Unjudged = append(report.Unjudged, qid)
		}
	}
	sort.Strings(report.Unjudged)
	if len(report.Unjudged) > 0 {
		slog.Warn("run queries without judgments are ignored", "count", len(report.Unjudged))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, qid := range ids {
		i, qid := i, qid
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m := EvaluateQuery(run[qid], qrels[qid], opts.P10)
			m.QueryID = qid
			report.Queries[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report.Mean = mean(report.Queries)
	return report, nil
}

// EvaluateQuery scores one ranked list. Repeated document ids only count at
// their first rank.
func EvaluateQuery(ranked []string, j Judgments, mode P10Mode) QueryMetrics {
	numRelevant := len(j.Relevant)
	m := QueryMetrics{NumRelevant: numRelevant}

	seen := make(map[string]struct{}, len(ranked))
	var (
		hits, hitsAtR, hitsAt10, nonRelAbove int
		apSum, bprefSum                      float64
	)
	rank := 0
	for _, doc := range ranked {
		if _, dup := seen[doc]; dup {
			continue
		}
		seen[doc] = struct{}{}
		rank++
		switch {
		case j.IsRelevant(doc):
			hits++
			apSum += float64(hits) / float64(rank)
			if rank <= numRelevant {
				hitsAtR++
			}
			if rank <= 10 {
				hitsAt10++
			}
			bprefSum += 1 - float64(min(nonRelAbove, numRelevant))/float64(numRelevant)
		case j.IsNonRelevant(doc):
			nonRelAbove++
		}
	}
	m.NumRetrieved = rank
	m.RelevantRetrieved = hits

	if rank > 0 {
		m.Precision = float64(hits) / float64(rank)
	}
	if mode == P10Partial || rank >= 10 {
		m.P10 = float64(hitsAt10) / 10
	}
	if numRelevant > 0 {
		r := float64(numRelevant)
		m.Recall = float64(hits) / r
		m.RPrecision = float64(hitsAtR) / r
		m.AP = apSum / r
		m.Bpref = bprefSum / r
	}
	return m
}

func mean(queries []QueryMetrics) Summary {
	if len(queries) == 0 {
		return Summary{}
	}
	var s Summary
	for _, q := range queries {
		s.Precision += q.Precision
		s.Recall += q.Recall
		s.P10 += q.P10
		s.RPrecision += q.RPrecision
		s.MAP += q.AP
		s.Bpref += q.Bpref
	}
	n := float64(len(queries))
	s.Precision /= n
	s.Recall /= n
	s.P10 /= n
	s.RPrecision /= n
	s.MAP /= n
	s.Bpref /= n
	return s
}
