package ranker

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer/index"
)

// ScoredDoc is one ranked document.
type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Params are the BM25 free parameters. K1 controls term-frequency
// saturation; B controls length normalisation (0 disables it).
type Params struct {
	K1 float64
	B  float64
}

func DefaultParams() Params {
	return Params{K1: 1, B: 0.75}
}

// Strategy selects how candidate documents are enumerated.
type Strategy string

const (
	StrategyAuto       Strategy = "auto"
	StrategyPostings   Strategy = "postings"
	StrategyExhaustive Strategy = "exhaustive"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyAuto, StrategyPostings, StrategyExhaustive:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown ranking strategy %q", s)
	}
}

// Select resolves auto: corpora of at most exhaustiveMaxDocs documents are
// scanned exhaustively, larger ones through postings.
func Select(s Strategy, numDocs, exhaustiveMaxDocs int) Strategy {
	if s != StrategyAuto {
		return s
	}
	if numDocs <= exhaustiveMaxDocs {
		return StrategyExhaustive
	}
	return StrategyPostings
}

// Score dispatches to the scorer for a resolved strategy.
func Score(s Strategy, terms []string, idx *index.Index, p Params) []ScoredDoc {
	if s == StrategyExhaustive {
		return RankExhaustive(terms, idx, p)
	}
	return Rank(terms, idx, p)
}

// Rank scores documents by visiting only the postings of each query term.
// Repeated query terms each add their own contribution. Documents matching
// no query term are absent from the result.
func Rank(terms []string, idx *index.Index, p Params) []ScoredDoc {
	scores := make(map[string]float64)
	for _, term := range terms {
		ts, ok := idx.Lookup(term)
		if !ok {
			continue
		}
		for _, docID := range ts.Postings {
			tf := idx.TermFreq(docID, term)
			scores[docID] += termScore(ts.IDF, tf, idx.DocLength(docID), idx.AvgDocLength, p)
		}
	}
	return sorted(scores)
}

// RankExhaustive is the small-corpus scorer: it walks every document for
// each query term and reads the precomputed term frequency, skipping
// documents where it is zero. Its output is identical to Rank.
func RankExhaustive(terms []string, idx *index.Index, p Params) []ScoredDoc {
	docIDs := idx.DocIDs()
	scores := make(map[string]float64)
	for _, term := range terms {
		ts, ok := idx.Lookup(term)
		if !ok {
			continue
		}
		for _, docID := range docIDs {
			tf := idx.TermFreq(docID, term)
			if tf == 0 {
				continue
			}
			scores[docID] += termScore(ts.IDF, tf, idx.DocLength(docID), idx.AvgDocLength, p)
		}
	}
	return sorted(scores)
}

// Truncate returns the first limit results; limit <= 0 keeps them all.
func Truncate(results []ScoredDoc, limit int) []ScoredDoc {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

func termScore(idf float64, tf int, docLen int, avgDocLen float64, p Params) float64 {
	freq := float64(tf)
	return idf * freq * (p.K1 + 1) / (freq + p.K1*lengthNorm(docLen, avgDocLen, p.B))
}

// lengthNorm is 1-b+b*len/avg. A degenerate corpus with avg 0 only holds
// empty documents, none of which can match, so the ratio is taken as 0.
func lengthNorm(docLen int, avgDocLen float64, b float64) float64 {
	ratio := 0.0
	if avgDocLen > 0 {
		ratio = float64(docLen) / avgDocLen
	}
	return 1 - b + b*ratio
}

// sorted orders by score descending, breaking ties by document id.
func sorted(scores map[string]float64) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{DocID: docID, Score: score})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	return result
}
