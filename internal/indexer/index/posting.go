package index

import (
	"math"
	"sort"
)

// TermStats is the dictionary entry of one term. Postings holds document ids
// in ascending order, one entry per document that contains the term.
type TermStats struct {
	DocFreq  int
	IDF      float64
	Postings []string
}

// Index is an immutable inverted index over a closed document set. It is
// safe for concurrent readers once built or loaded.
type Index struct {
	Terms        map[string]*TermStats
	TermFreqs    map[string]map[string]int
	DocLengths   map[string]int
	AvgDocLength float64
	NumDocs      int
}

// IDF is the probabilistic BM25 inverse document frequency. It is negative
// for terms present in more than half of the corpus and is never clipped.
func IDF(numDocs, docFreq int) float64 {
	n := float64(numDocs)
	df := float64(docFreq)
	return math.Log((n - df + 0.5) / (df + 0.5))
}

func (ix *Index) Lookup(term string) (*TermStats, bool) {
	ts, ok := ix.Terms[term]
	return ts, ok
}

func (ix *Index) TermFreq(docID, term string) int {
	return ix.TermFreqs[docID][term]
}

func (ix *Index) DocLength(docID string) int {
	return ix.DocLengths[docID]
}

// DocIDs returns every document id in ascending order.
func (ix *Index) DocIDs() []string {
	ids := make([]string, 0, len(ix.DocLengths))
	for id := range ix.DocLengths {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Vocabulary returns every indexed term in ascending order.
func (ix *Index) Vocabulary() []string {
	terms := make([]string, 0, len(ix.Terms))
	for term := range ix.Terms {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Equal reports exact equality of every statistic, including bit-identical
// IDF values.
func (ix *Index) Equal(other *Index) bool {
	if ix == nil || other == nil {
		return ix == other
	}
	if ix.NumDocs != other.NumDocs || ix.AvgDocLength != other.AvgDocLength {
		return false
	}
	if len(ix.Terms) != len(other.Terms) || len(ix.DocLengths) != len(other.DocLengths) ||
		len(ix.TermFreqs) != len(other.TermFreqs) {
		return false
	}
	for term, ts := range ix.Terms {
		ots, ok := other.Terms[term]
		if !ok || ts.DocFreq != ots.DocFreq || math.Float64bits(ts.IDF) != math.Float64bits(ots.IDF) {
			return false
		}
		if len(ts.Postings) != len(ots.Postings) {
			return false
		}
		for i := range ts.Postings {
			if ts.Postings[i] != ots.Postings[i] {
				return false
			}
		}
	}
	for doc, length := range ix.DocLengths {
		if olen, ok := other.DocLengths[doc]; !ok || olen != length {
			return false
		}
	}
	for doc, freqs := range ix.TermFreqs {
		ofreqs, ok := other.TermFreqs[doc]
		if !ok || len(freqs) != len(ofreqs) {
			return false
		}
		for term, n := range freqs {
			if ofreqs[term] != n {
				return false
			}
		}
	}
	return true
}
