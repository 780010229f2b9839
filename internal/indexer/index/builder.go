package index

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Normalizer turns raw text into ordered index terms.
type Normalizer interface {
	Normalize(text string) []string
}

// BuildOptions tunes index construction.
type BuildOptions struct {
	// Workers is the number of parallel chunk builders. Zero means
	// runtime.GOMAXPROCS(0).
	Workers int
}

// Build normalises every document once and produces the inverted index.
// Documents are split into contiguous chunks of ascending id, each chunk is
// indexed by its own worker into a private partial, and the partials are
// merged in chunk order so postings come out sorted without a final sort.
// ctx is checked between documents.
func Build(ctx context.Context, docs map[string]string, norm Normalizer, opts BuildOptions) (*Index, error) {
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(ids) {
		workers = len(ids)
	}

	chunks := partition(ids, workers)
	partials := make([]*memoryIndex, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			partial := newMemoryIndex()
			for _, id := range chunk {
				if err := gctx.Err(); err != nil {
					return fmt.Errorf("building index: %w", err)
				}
				partial.addDocument(id, norm.Normalize(docs[id]))
			}
			partials[i] = partial
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := newMemoryIndex()
	for _, p := range partials {
		merged.merge(p)
	}
	return finalize(merged), nil
}

// finalize computes corpus-level statistics: average document length and
// the IDF of every term from its final postings size.
func finalize(m *memoryIndex) *Index {
	n := len(m.docLengths)
	idx := &Index{
		Terms:      make(map[string]*TermStats, len(m.postings)),
		TermFreqs:  m.termFreqs,
		DocLengths: m.docLengths,
		NumDocs:    n,
	}
	if n > 0 {
		idx.AvgDocLength = float64(m.totalTokens) / float64(n)
	}
	for term, docs := range m.postings {
		idx.Terms[term] = &TermStats{
			DocFreq:  len(docs),
			IDF:      IDF(n, len(docs)),
			Postings: docs,
		}
	}
	return idx
}

// partition splits ids into n contiguous chunks of near-equal size.
func partition(ids []string, n int) [][]string {
	if n <= 0 {
		return nil
	}
	chunks := make([][]string, 0, n)
	size := len(ids) / n
	rem := len(ids) % n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < rem {
			end++
		}
		chunks = append(chunks, ids[start:end])
		start = end
	}
	return chunks
}
