package parser

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/errors"
)

// Query is one line of a query file after normalisation. Terms keeps query
// order and duplicates.
type Query struct {
	ID    string   `json:"id"`
	Raw   string   `json:"raw"`
	Terms []string `json:"terms"`
}

// Parse splits "<id> <raw text>" on the first run of whitespace and
// normalises the text. Blank lines report false.
func Parse(line string, norm index.Normalizer) (Query, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Query{}, false
	}
	id, raw := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		id, raw = line[:i], strings.TrimSpace(line[i:])
	}
	return Query{ID: id, Raw: raw, Terms: norm.Normalize(raw)}, true
}

// FromText builds an ad-hoc query such as one typed at the prompt.
func FromText(id, text string, norm index.Normalizer) Query {
	raw := strings.TrimSpace(text)
	return Query{ID: id, Raw: raw, Terms: norm.Normalize(raw)}
}

func ReadQueries(r io.Reader, norm index.Normalizer) ([]Query, error) {
	return readQueries(r, "", norm)
}

// LoadQueries reads a query file. A missing file is a configuration error.
func LoadQueries(path string, norm index.Normalizer) ([]Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Configuration(path, err)
	}
	defer f.Close()
	return readQueries(f, path, norm)
}

func readQueries(r io.Reader, path string, norm index.Normalizer) ([]Query, error) {
	var queries []Query
	seen := make(map[string]int)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		q, ok := Parse(scanner.Text(), norm)
		if !ok {
			continue
		}
		if prev, dup := seen[q.ID]; dup {
			return nil, apperrors.Malformed(path, lineNo, "duplicate query id %q (first seen on line %d)", q.ID, prev)
		}
		seen[q.ID] = lineNo
		if len(q.Terms) == 0 {
			slog.Warn("query has no index terms after normalisation", "query_id", q.ID, "line", lineNo)
		}
		queries = append(queries, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading queries: %w", err)
	}
	return queries, nil
}
