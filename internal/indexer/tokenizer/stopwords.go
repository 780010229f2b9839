package tokenizer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/errors"
)

// StopSet is a set of lower-cased stop-words.
type StopSet map[string]struct{}

func (s StopSet) Contains(word string) bool {
	_, ok := s[word]
	return ok
}

// LoadStopwords reads a newline-delimited stop-word file.
func LoadStopwords(path string) (StopSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Configuration(path, err)
	}
	defer f.Close()
	set, err := ReadStopwords(f)
	if err != nil {
		return nil, fmt.Errorf("reading stopwords %s: %w", path, err)
	}
	return set, nil
}

// ReadStopwords reads one stop-word per line. Lines are trimmed and
// lower-cased; blank lines are skipped.
func ReadStopwords(r io.Reader) (StopSet, error) {
	set := make(StopSet)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		word := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if word == "" {
			continue
		}
		set[word] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return set, nil
}

var defaultStopwords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an",
	"and", "any", "are", "as", "at", "be", "because", "been", "before",
	"being", "below", "between", "both", "but", "by", "can", "could", "did",
	"do", "does", "doing", "down", "during", "each", "few", "for", "from",
	"further", "had", "has", "have", "having", "he", "her", "here", "hers",
	"herself", "him", "himself", "his", "how", "i", "if", "in", "into", "is",
	"it", "its", "itself", "me", "more", "most", "my", "myself", "no", "nor",
	"not", "of", "off", "on", "once", "only", "or", "other", "our", "ours",
	"ourselves", "out", "over", "own", "same", "she", "should", "so", "some",
	"such", "than", "that", "the", "their", "theirs", "them", "themselves",
	"then", "there", "these", "they", "this", "those", "through", "to", "too",
	"under", "until", "up", "very", "was", "we", "were", "what", "when",
	"where", "which", "while", "who", "whom", "why", "will", "with", "would",
	"you", "your", "yours", "yourself", "yourselves",
}

// DefaultStopwords returns the built-in English stop-word list, used when no
// stop-word file is configured.
func DefaultStopwords() StopSet {
	set := make(StopSet, len(defaultStopwords))
	for _, w := range defaultStopwords {
		set[w] = struct{}{}
	}
	return set
}
