package evaluator

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/errors"
)

// Format names a qrels file layout.
type Format string

const (
	// FormatSimple lines are "<qid> <relevant doc ids...>".
	FormatSimple Format = "simple"
	// FormatTREC lines are "<qid> <iteration> <doc id> <relevance>"; a
	// relevance <= 0 is an explicit nonrelevant judgment.
	FormatTREC Format = "trec"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatSimple, FormatTREC:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown qrels format %q", s)
	}
}

// Judgments are the binary relevance judgments for one query.
type Judgments struct {
	Relevant    map[string]struct{}
	NonRelevant map[string]struct{}
}

func newJudgments() Judgments {
	return Judgments{
		Relevant:    make(map[string]struct{}),
		NonRelevant: make(map[string]struct{}),
	}
}

func (j Judgments) IsRelevant(docID string) bool {
	_, ok := j.Relevant[docID]
	return ok
}

func (j Judgments) IsNonRelevant(docID string) bool {
	_, ok := j.NonRelevant[docID]
	return ok
}

// Qrels maps query id to its judgments.
type Qrels map[string]Judgments

// NewQrels builds binary qrels from relevant document lists.
func NewQrels(relevant map[string][]string) Qrels {
	q := make(Qrels, len(relevant))
	for qid, docs := range relevant {
		j := newJudgments()
		for _, d := range docs {
			j.Relevant[d] = struct{}{}
		}
		q[qid] = j
	}
	return q
}

func ReadQrels(r io.Reader, format Format) (Qrels, error) {
	return readQrels(r, "", format)
}

// LoadQrels reads a qrels file. A missing file is a configuration error.
func LoadQrels(path string, format Format) (Qrels, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Configuration(path, err)
		}
		return nil, fmt.Errorf("opening qrels: %w", err)
	}
	defer f.Close()
	return readQrels(f, path, format)
}

// readQrels merges repeated query ids. A document judged relevant anywhere
// is never also counted as nonrelevant.
func readQrels(r io.Reader, path string, format Format) (Qrels, error) {
	qrels := make(Qrels)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		qid := fields[0]
		j, ok := qrels[qid]
		if !ok {
			j = newJudgments()
			qrels[qid] = j
		}
		switch format {
		case FormatSimple:
			for _, doc := range fields[1:] {
				j.Relevant[doc] = struct{}{}
				delete(j.NonRelevant, doc)
			}
		case FormatTREC:
			if len(fields) != 4 {
				return nil, apperrors.Malformed(path, lineNo, "expected 4 fields, got %d", len(fields))
			}
			rel, err := strconv.Atoi(fields[3])
			if err != nil {
				return nil, apperrors.Malformed(path, lineNo, "invalid relevance %q", fields[3])
			}
			doc := fields[2]
			if rel > 0 {
				j.Relevant[doc] = struct{}{}
				delete(j.NonRelevant, doc)
			} else if !j.IsRelevant(doc) {
				j.NonRelevant[doc] = struct{}{}
			}
		default:
			return nil, apperrors.Newf(apperrors.ErrConfiguration, path, "unknown qrels format %q", format)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading qrels: %w", err)
	}
	return qrels, nil
}
