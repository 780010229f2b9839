package index

// memoryIndex accumulates the statistics of one contiguous chunk of
// documents. Each build worker owns exactly one, so no locking is needed;
// partials are folded together once per chunk by merge.
type memoryIndex struct {
	postings    map[string][]string
	termFreqs   map[string]map[string]int
	docLengths  map[string]int
	totalTokens int64
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{
		postings:   make(map[string][]string),
		termFreqs:  make(map[string]map[string]int),
		docLengths: make(map[string]int),
	}
}

// addDocument records one document's normalised terms. Postings receive the
// document once per distinct term.
func (m *memoryIndex) addDocument(docID string, terms []string) {
	termData := make(map[string]int)
	for _, term := range terms {
		termData[term]++
	}
	for term := range termData {
		m.postings[term] = append(m.postings[term], docID)
	}
	m.termFreqs[docID] = termData
	m.docLengths[docID] = len(terms)
	m.totalTokens += int64(len(terms))
}

// merge folds other into m. Document sets of the two partials are disjoint.
func (m *memoryIndex) merge(other *memoryIndex) {
	for term, docs := range other.postings {
		m.postings[term] = append(m.postings[term], docs...)
	}
	for docID, freqs := range other.termFreqs {
		m.termFreqs[docID] = freqs
	}
	for docID, length := range other.docLengths {
		m.docLengths[docID] = length
	}
	m.totalTokens += other.totalTokens
}
