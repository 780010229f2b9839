package store

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer/index"
)

// SchemaVersion is bumped whenever the persisted layout changes.
const SchemaVersion = 1

// record is the persisted form of an index. Optional pointers mark fields
// whose absence must be detected on load rather than read as zero.
type record struct {
	Version   int                       `json:"version"`
	NumDocs   *int                      `json:"num_docs"`
	AvgDocLen *float64                  `json:"avg_doclen"`
	Index     map[string]termRecord     `json:"index"`
	TFDict    map[string]map[string]int `json:"tf_dict"`
	LenDict   map[string]int            `json:"len_dict"`
}

type termRecord struct {
	Postings []string `json:"postings"`
	IDF      *float64 `json:"idf"`
}

func toRecord(idx *index.Index) *record {
	numDocs := idx.NumDocs
	avg := idx.AvgDocLength
	rec := &record{
		Version:   SchemaVersion,
		NumDocs:   &numDocs,
		AvgDocLen: &avg,
		Index:     make(map[string]termRecord, len(idx.Terms)),
		TFDict:    make(map[string]map[string]int, len(idx.TermFreqs)),
		LenDict:   make(map[string]int, len(idx.DocLengths)),
	}
	for term, ts := range idx.Terms {
		idf := ts.IDF
		rec.Index[term] = termRecord{Postings: ts.Postings, IDF: &idf}
	}
	for doc, length := range idx.DocLengths {
		rec.LenDict[doc] = length
		freqs := idx.TermFreqs[doc]
		if freqs == nil {
			freqs = map[string]int{}
		}
		rec.TFDict[doc] = freqs
	}
	return rec
}

// validate checks every structural invariant of a decoded record and returns
// a description of the first violation, or "" when the record is sound.
func (r *record) validate() string {
	switch {
	case r.Version != SchemaVersion:
		return "unsupported schema version"
	case r.NumDocs == nil:
		return "missing num_docs"
	case r.AvgDocLen == nil:
		return "missing avg_doclen"
	case r.Index == nil:
		return "missing index"
	case r.TFDict == nil:
		return "missing tf_dict"
	case r.LenDict == nil:
		return "missing len_dict"
	}
	if *r.NumDocs != len(r.LenDict) {
		return "num_docs does not match len_dict"
	}
	if math.IsNaN(*r.AvgDocLen) || math.IsInf(*r.AvgDocLen, 0) || *r.AvgDocLen < 0 {
		return "avg_doclen is not a finite non-negative number"
	}
	for term, tr := range r.Index {
		if tr.IDF == nil {
			return "term " + term + " has no idf"
		}
		if math.IsNaN(*tr.IDF) || math.IsInf(*tr.IDF, 0) {
			return "term " + term + " has a non-finite idf"
		}
		if len(tr.Postings) == 0 {
			return "term " + term + " has empty postings"
		}
		for i, doc := range tr.Postings {
			if i > 0 && tr.Postings[i-1] >= doc {
				return "postings of term " + term + " are not strictly ascending"
			}
			if _, ok := r.LenDict[doc]; !ok {
				return "postings of term " + term + " reference unknown document " + doc
			}
			if r.TFDict[doc][term] <= 0 {
				return "postings of term " + term + " list " + doc + " without a tf entry"
			}
		}
	}
	for doc, length := range r.LenDict {
		freqs, ok := r.TFDict[doc]
		if !ok {
			return "document " + doc + " missing from tf_dict"
		}
		total := 0
		for term, n := range freqs {
			tr, ok := r.Index[term]
			if !ok {
				return "tf_dict of " + doc + " names unindexed term " + term
			}
			if n <= 0 {
				return "tf_dict of " + doc + " has non-positive count for " + term
			}
			if i := sort.SearchStrings(tr.Postings, doc); i == len(tr.Postings) || tr.Postings[i] != doc {
				return "postings of term " + term + " omit document " + doc
			}
			total += n
		}
		if total != length {
			return "len_dict of " + doc + " disagrees with tf_dict"
		}
	}
	if len(r.TFDict) != len(r.LenDict) {
		return "tf_dict names documents absent from len_dict"
	}
	return ""
}

func (r *record) toIndex() *index.Index {
	idx := &index.Index{
		Terms:        make(map[string]*index.TermStats, len(r.Index)),
		TermFreqs:    r.TFDict,
		DocLengths:   r.LenDict,
		AvgDocLength: *r.AvgDocLen,
		NumDocs:      *r.NumDocs,
	}
	for term, tr := range r.Index {
		idx.Terms[term] = &index.TermStats{
			DocFreq:  len(tr.Postings),
			IDF:      *tr.IDF,
			Postings: tr.Postings,
		}
	}
	return idx
}
