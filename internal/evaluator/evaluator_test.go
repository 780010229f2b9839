package evaluator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/errors"
)

const eps = 1e-12

func TestEvaluateQueryWorkedExample(t *testing.T) {
	qrels := NewQrels(map[string][]string{"Q1": {"D2", "D5"}})
	m := EvaluateQuery([]string{"D1", "D2", "D3"}, qrels["Q1"], P10Strict)

	assert.Equal(t, 2, m.NumRelevant)
	assert.Equal(t, 3, m.NumRetrieved)
	assert.Equal(t, 1, m.RelevantRetrieved)
	assert.InDelta(t, 1.0/3.0, m.Precision, eps)
	assert.InDelta(t, 0.5, m.Recall, eps)
	assert.InDelta(t, 0.5, m.RPrecision, eps)
	assert.InDelta(t, 0.25, m.AP, eps)
	assert.Equal(t, 0.0, m.P10)
	assert.InDelta(t, m.Recall, m.Bpref, eps, "no nonrelevant judgments reduces bpref to recall")

	partial := EvaluateQuery([]string{"D1", "D2", "D3"}, qrels["Q1"], P10Partial)
	assert.InDelta(t, 0.1, partial.P10, eps)
}

func TestRPrecisionWindowsToR(t *testing.T) {
	qrels := NewQrels(map[string][]string{"q": {"a", "b"}})
	m := EvaluateQuery([]string{"x", "y", "a", "b"}, qrels["q"], P10Strict)
	assert.Equal(t, 0.0, m.RPrecision)
	assert.Equal(t, 1.0, m.Recall)
}

func TestP10(t *testing.T) {
	rel := make([]string, 0, 12)
	ranked := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		ranked = append(ranked, fmt.Sprintf("d%02d", i))
		if i%2 == 0 {
			rel = append(rel, fmt.Sprintf("d%02d", i))
		}
	}
	qrels := NewQrels(map[string][]string{"q": rel})
	m := EvaluateQuery(ranked, qrels["q"], P10Strict)
	assert.InDelta(t, 0.5, m.P10, eps, "only the first ten ranks count")
}

func TestBprefWithNonRelevantJudgments(t *testing.T) {
	qrels, err := ReadQrels(strings.NewReader(
		"q 0 a 1\nq 0 b 1\nq 0 x 0\nq 0 y 0\n"), FormatTREC)
	require.NoError(t, err)

	m := EvaluateQuery([]string{"x", "a", "y", "b"}, qrels["q"], P10Strict)
	// a has one nonrelevant above it (1 - 1/2), b has two (1 - 2/2).
	assert.InDelta(t, 0.25, m.Bpref, eps)
	assert.InDelta(t, 1.0, m.Recall, eps)

	m = EvaluateQuery([]string{"a", "b", "x", "y"}, qrels["q"], P10Strict)
	assert.InDelta(t, 1.0, m.Bpref, eps)
}

func TestUnjudgedDocumentsDoNotAffectBpref(t *testing.T) {
	qrels, err := ReadQrels(strings.NewReader("q 0 a 1\nq 0 x 0\n"), FormatTREC)
	require.NoError(t, err)
	m := EvaluateQuery([]string{"u1", "u2", "a"}, qrels["q"], P10Strict)
	assert.Equal(t, 1.0, m.Bpref)
	assert.InDelta(t, 1.0/3.0, m.AP, eps)
}

func TestEmptyQrelsQuery(t *testing.T) {
	qrels, err := ReadQrels(strings.NewReader("q3\n"), FormatSimple)
	require.NoError(t, err)
	require.Contains(t, qrels, "q3")

	m := EvaluateQuery([]string{"a", "b"}, qrels["q3"], P10Strict)
	assert.Equal(t, 0.0, m.Precision)
	assert.Equal(t, 0.0, m.Recall)
	assert.Equal(t, 0.0, m.AP)
	assert.Equal(t, 0.0, m.RPrecision)
	assert.Equal(t, 0.0, m.Bpref)

	none := EvaluateQuery(nil, qrels["q3"], P10Partial)
	assert.Equal(t, QueryMetrics{}, none)
}

func TestEvaluateMatchesByID(t *testing.T) {
	qrels, err := ReadQrels(strings.NewReader("Q2 d7\nQ1 D2 D5\n"), FormatSimple)
	require.NoError(t, err)
	run := map[string][]string{
		"Q1": {"D1", "D2", "D3"},
		"Q2": {"d7"},
		"Q9": {"zz"},
	}
	report, err := Evaluate(context.Background(), run, qrels, Options{Workers: 2})
	require.NoError(t, err)

	require.Len(t, report.Queries, 2)
	assert.Equal(t, "Q1", report.Queries[0].QueryID)
	assert.Equal(t, "Q2", report.Queries[1].QueryID)
	assert.Equal(t, []string{"Q9"}, report.Unjudged)
	assert.Empty(t, report.Missing)
	assert.Equal(t, P10Strict, report.P10Mode)

	assert.InDelta(t, (1.0/3.0+1.0)/2, report.Mean.Precision, eps)
	assert.InDelta(t, (0.5+1.0)/2, report.Mean.Recall, eps)
	assert.InDelta(t, (0.25+1.0)/2, report.Mean.MAP, eps)
}

func TestEvaluateMissingQueryContributesZero(t *testing.T) {
	qrels := NewQrels(map[string][]string{"a": {"d1"}, "b": {"d2"}})
	report, err := Evaluate(context.Background(), map[string][]string{"a": {"d1"}}, qrels, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, report.Missing)
	assert.InDelta(t, 0.5, report.Mean.Precision, eps)
	assert.InDelta(t, 0.5, report.Mean.Recall, eps)
	assert.InDelta(t, 0.5, report.Mean.MAP, eps)
	assert.InDelta(t, 0.5, report.Mean.Bpref, eps)
	assert.Equal(t, QueryMetrics{QueryID: "b", NumRelevant: 1}, report.Queries[1])
}

func TestEvaluateEmptyQrels(t *testing.T) {
	report, err := Evaluate(context.Background(), map[string][]string{"a": {"d"}}, Qrels{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, Summary{}, report.Mean)
	assert.Equal(t, []string{"a"}, report.Unjudged)
}

func TestEvaluateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	qrels := NewQrels(map[string][]string{"a": {"d1"}})
	_, err := Evaluate(ctx, map[string][]string{"a": {"d1"}}, qrels, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateParallelMatchesSerial(t *testing.T) {
	relevant := make(map[string][]string)
	run := make(map[string][]string)
	for q := 0; q < 50; q++ {
		qid := fmt.Sprintf("q%02d", q)
		for d := 0; d < 30; d++ {
			doc := fmt.Sprintf("d%02d", (d*7+q)%40)
			run[qid] = append(run[qid], doc)
			if (d+q)%5 == 0 {
				relevant[qid] = append(relevant[qid], fmt.Sprintf("d%02d", (d*3+q)%40))
			}
		}
	}
	qrels := NewQrels(relevant)
	serial, err := Evaluate(context.Background(), run, qrels, Options{Workers: 1})
	require.NoError(t, err)
	parallel, err := Evaluate(context.Background(), run, qrels, Options{Workers: 8})
	require.NoError(t, err)
	assert.Equal(t, serial, parallel)
}

func TestRepeatedRetrievalCountsOnce(t *testing.T) {
	qrels := NewQrels(map[string][]string{"q": {"a"}})
	m := EvaluateQuery([]string{"a", "a", "b"}, qrels["q"], P10Strict)
	assert.Equal(t, 2, m.NumRetrieved)
	assert.Equal(t, 1, m.RelevantRetrieved)
	assert.Equal(t, 0.5, m.Precision)
}

func TestReadQrelsTREC(t *testing.T) {
	input := "1 0 d1 1\n1 0 d2 0\n1 0 d3 -1\n1 0 d2 2\n\n2 0 d9 0\n"
	qrels, err := ReadQrels(strings.NewReader(input), FormatTREC)
	require.NoError(t, err)

	assert.True(t, qrels["1"].IsRelevant("d1"))
	assert.True(t, qrels["1"].IsRelevant("d2"), "a later positive judgment wins")
	assert.False(t, qrels["1"].IsNonRelevant("d2"))
	assert.True(t, qrels["1"].IsNonRelevant("d3"))
	assert.Empty(t, qrels["2"].Relevant)
	assert.Len(t, qrels["2"].NonRelevant, 1)
}

func TestReadQrelsMalformed(t *testing.T) {
	_, err := ReadQrels(strings.NewReader("1 0 d1 1\n1 d2 1\n"), FormatTREC)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)
	assert.Contains(t, err.Error(), "line 2")

	_, err = ReadQrels(strings.NewReader("1 0 d1 yes\n"), FormatTREC)
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)
}

func TestLoadQrels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qrels.txt")
	require.NoError(t, os.WriteFile(path, []byte("1 184 29 31\n1 12\n"), 0o644))
	qrels, err := LoadQrels(path, FormatSimple)
	require.NoError(t, err)
	assert.Len(t, qrels["1"].Relevant, 4, "repeated query lines merge")

	_, err = LoadQrels(filepath.Join(t.TempDir(), "missing"), FormatSimple)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestParseOptions(t *testing.T) {
	_, err := ParseFormat("csv")
	assert.Error(t, err)
	f, err := ParseFormat("trec")
	require.NoError(t, err)
	assert.Equal(t, FormatTREC, f)

	_, err = ParseP10Mode("lenient")
	assert.Error(t, err)
	m, err := ParseP10Mode("partial")
	require.NoError(t, err)
	assert.Equal(t, P10Partial, m)
}

func TestReportFormat(t *testing.T) {
	qrels := NewQrels(map[string][]string{"Q1": {"D2", "D5"}})
	report, err := Evaluate(context.Background(), map[string][]string{"Q1": {"D1", "D2", "D3"}}, qrels, Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.Format(&buf))
	out := buf.String()
	assert.Contains(t, out, "P@10 policy: strict")
	assert.Contains(t, out, "Precision Avg: 0.3333\n")
	assert.Contains(t, out, "Recall Avg: 0.5000\n")
	assert.Contains(t, out, "R-Precision Avg: 0.5000\n")
	assert.Contains(t, out, "MAP Avg: 0.2500\n")
	assert.Contains(t, out, "Bpref Avg: 0.5000\n")

	buf.Reset()
	require.NoError(t, report.FormatQueries(&buf))
	assert.Contains(t, buf.String(), "Q1")
	assert.Contains(t, buf.String(), "0.2500")
}
