// Package tokenizer turns raw document and query text into index terms.
// It lower-cases input, strips punctuation and digits, splits on whitespace,
// removes stop-words, and stems the surviving tokens.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// Stemmer reduces a word to its morphological root. Implementations must be
// deterministic.
type Stemmer interface {
	Stem(word string) string
}

// Snowball stems English words with the Snowball (Porter2) algorithm.
type Snowball struct{}

func (Snowball) Stem(word string) string {
	return english.Stem(word, true)
}

// Identity leaves words untouched.
type Identity struct{}

func (Identity) Stem(word string) string {
	return word
}

// Tokenizer binds a stop-word set and a stemmer so that documents and
// queries are always normalised the same way.
type Tokenizer struct {
	stopwords StopSet
	stemmer   Stemmer
}

// New returns a Tokenizer. A nil stemmer falls back to Snowball and a nil
// stop-word set disables stop-word removal.
func New(stopwords StopSet, stemmer Stemmer) *Tokenizer {
	if stemmer == nil {
		stemmer = Snowball{}
	}
	if stopwords == nil {
		stopwords = StopSet{}
	}
	return &Tokenizer{stopwords: stopwords, stemmer: stemmer}
}

// Normalize is the method form of the package-level Normalize.
func (t *Tokenizer) Normalize(text string) []string {
	return Normalize(text, t.stopwords, t.stemmer)
}

// Normalize returns the ordered index terms of text. Stop-words are matched
// before stemming. Empty input yields an empty, non-nil slice.
func Normalize(text string, stopwords StopSet, stemmer Stemmer) []string {
	cleaned := strings.Map(keepRune, strings.ToLower(text))
	words := strings.Fields(cleaned)
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if stopwords.Contains(word) {
			continue
		}
		stemmed := stemmer.Stem(word)
		if stemmed == "" {
			continue
		}
		terms = append(terms, stemmed)
	}
	return terms
}

// keepRune drops every rune that is neither a word rune nor whitespace, and
// every digit.
func keepRune(r rune) rune {
	if unicode.IsSpace(r) {
		return r
	}
	if unicode.IsDigit(r) {
		return -1
	}
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) || r == '_' {
		return r
	}
	return -1
}
