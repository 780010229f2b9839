package evaluator

import (
	"fmt"
	"io"
	"text/tabwriter"
)

func (m P10Mode) describe() string {
	if m == P10Partial {
		return "partial (hits in available ranks / 10)"
	}
	return "strict (0 when fewer than 10 retrieved)"
}

// Format prints the averaged metrics.
func (r Report) Format(w io.Writer) error {
	lines := []struct {
		label string
		value float64
	}{
		{"Precision Avg", r.Mean.Precision},
		{"Recall Avg", r.Mean.Recall},
		{"P@10 Avg", r.Mean.P10},
		{"R-Precision Avg", r.Mean.RPrecision},
		{"MAP Avg", r.Mean.MAP},
		{"Bpref Avg", r.Mean.Bpref},
	}
	if _, err := fmt.Fprintf(w, "Queries evaluated: %d (missing from run: %d, unjudged: %d)\n",
		len(r.Queries), len(r.Missing), len(r.Unjudged)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "P@10 policy: %s\n", r.P10Mode.describe()); err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s: %.4f\n", l.label, l.value); err != nil {
			return err
		}
	}
	return nil
}

// FormatQueries prints one aligned row per judged query.
func (r Report) FormatQueries(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "query\trel\tret\trel_ret\tP\tR\tP@10\tR-Prec\tAP\tBpref\t")
	for _, q := range r.Queries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t\n",
			q.QueryID, q.NumRelevant, q.NumRetrieved, q.RelevantRetrieved,
			q.Precision, q.Recall, q.P10, q.RPrecision, q.AP, q.Bpref)
	}
	return tw.Flush()
}
