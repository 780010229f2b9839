// Package runfile reads and writes ranked results in the tab-delimited
// "<query_id>\t<rank>\t<doc_id>\t<score>" format consumed by the evaluator.
package runfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/errors"
)

// Entry is one retrieved (query, document) pair.
type Entry struct {
	QueryID string
	Rank    int
	DocID   string
	Score   float64
}

// Run holds ranked results per query. Order fixes the query output order;
// Results lists each query's documents best first.
type Run struct {
	Order   []string
	Results map[string][]ranker.ScoredDoc
}

func New() Run {
	return Run{Results: make(map[string][]ranker.ScoredDoc)}
}

// Add appends a query's results, keeping first-seen order.
func (r *Run) Add(queryID string, results []ranker.ScoredDoc) {
	if r.Results == nil {
		r.Results = make(map[string][]ranker.ScoredDoc)
	}
	if _, ok := r.Results[queryID]; !ok {
		r.Order = append(r.Order, queryID)
	}
	r.Results[queryID] = results
}

// Ranked returns each query's document ids in rank order.
func (r Run) Ranked() map[string][]string {
	out := make(map[string][]string, len(r.Results))
	for qid, results := range r.Results {
		ids := make([]string, len(results))
		for i, sd := range results {
			ids[i] = sd.DocID
		}
		out[qid] = ids
	}
	return out
}

// Entries flattens the run in output order with 1-based contiguous ranks.
func (r Run) Entries() []Entry {
	var entries []Entry
	for _, qid := range r.Order {
		for i, sd := range r.Results[qid] {
			entries = append(entries, Entry{QueryID: qid, Rank: i + 1, DocID: sd.DocID, Score: sd.Score})
		}
	}
	return entries
}

// Write emits one line per entry. Scores use the shortest representation
// that round-trips exactly.
func Write(w io.Writer, run Run) error {
	bw := bufio.NewWriter(w)
	for _, e := range run.Entries() {
		if _, err := fmt.Fprintf(bw, "%s\t%d\t%s\t%s\n", e.QueryID, e.Rank, e.DocID, strconv.FormatFloat(e.Score, 'g', -1, 64)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the run through a temporary file renamed over path, so a
// failed write never leaves a truncated run behind.
func WriteFile(path string, run Run) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp run file: %w", err)
	}
	tmpPath := f.Name()
	committed := false
	defer func() {
		f.Close()
		if !committed {
			os.Remove(tmpPath)
		}
	}()
	if err := Write(f, run); err != nil {
		return fmt.Errorf("writing run file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing run file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing run file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming run file: %w", err)
	}
	committed = true
	return nil
}

func Read(r io.Reader) (Run, error) {
	return read(r, "")
}

// ReadFile parses the run file at path. A missing file is a configuration
// error.
func ReadFile(path string) (Run, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Run{}, apperrors.Configuration(path, err)
		}
		return Run{}, fmt.Errorf("opening run file: %w", err)
	}
	defer f.Close()
	return read(f, path)
}

// read accepts any whitespace between fields. Entries are re-sorted by rank
// within each query, so files need not list ranks in order.
func read(r io.Reader, path string) (Run, error) {
	byQuery := make(map[string][]Entry)
	var order []string
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return Run{}, apperrors.Malformed(path, lineNo, "%v", err)
		}
		if _, ok := byQuery[e.QueryID]; !ok {
			order = append(order, e.QueryID)
		}
		byQuery[e.QueryID] = append(byQuery[e.QueryID], e)
	}
	if err := scanner.Err(); err != nil {
		return Run{}, fmt.Errorf("reading run file: %w", err)
	}

	run := Run{Order: order, Results: make(map[string][]ranker.ScoredDoc, len(byQuery))}
	for _, qid := range order {
		entries := byQuery[qid]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })
		results := make([]ranker.ScoredDoc, len(entries))
		for i, e := range entries {
			if i > 0 && entries[i-1].Rank == e.Rank {
				return Run{}, apperrors.Newf(apperrors.ErrMalformedInput, path, "query %s: duplicate rank %d", qid, e.Rank)
			}
			results[i] = ranker.ScoredDoc{DocID: e.DocID, Score: e.Score}
		}
		run.Results[qid] = results
	}
	return run, nil
}

func parseLine(line string) (Entry, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Entry{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}
	rank, err := strconv.Atoi(fields[1])
	if err != nil || rank < 1 {
		return Entry{}, fmt.Errorf("invalid rank %q", fields[1])
	}
	score, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid score %q", fields[3])
	}
	return Entry{QueryID: fields[0], Rank: rank, DocID: fields[2], Score: score}, nil
}
