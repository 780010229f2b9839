// bm25 builds an inverted index over a document corpus, ranks queries
// against it with BM25, and evaluates ranked runs against relevance
// judgments.
//
// Modes:
//
//	build        index the corpus and persist the index
//	batch        score every query in the query file and write a run file
//	interactive  prompt for queries and print the top results
//	evaluate     score a run file against qrels and print the metrics
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(apperrors.ExitCode(err))
	}
}

// options are the command-line overrides layered on top of the config file.
type options struct {
	configPath  string
	mode        string
	documents   string
	stopwords   string
	indexPath   string
	queries     string
	runPath     string
	qrels       string
	qrelsFormat string
	p10         string
	strategy    string
	k1          float64
	b           float64
	limit       int
	workers     int
	rebuild     bool
	label       string
	perQuery    bool
}

func parseFlags(args []string, stderr io.Writer) (*options, *pflag.FlagSet, error) {
	var o options
	fs := pflag.NewFlagSet("bm25", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.configPath, "config", "c", "", "path to YAML config file")
	fs.StringVarP(&o.mode, "mode", "m", "batch", "build | batch | interactive | evaluate")
	fs.StringVar(&o.documents, "documents", "", "corpus directory (flat or nested)")
	fs.StringVar(&o.stopwords, "stopwords", "", "stop-word file, one word per line")
	fs.StringVar(&o.indexPath, "index", "", "persisted index path (.json, .cbor, optionally .zst)")
	fs.StringVar(&o.queries, "queries", "", "query file: <id> <text> per line")
	fs.StringVar(&o.runPath, "run", "", "run file written by batch and read by evaluate")
	fs.StringVar(&o.qrels, "qrels", "", "relevance judgments file")
	fs.StringVar(&o.qrelsFormat, "qrels-format", "", "simple | trec")
	fs.StringVar(&o.p10, "p10", "", "P@10 policy when fewer than 10 are retrieved: strict | partial")
	fs.StringVar(&o.strategy, "strategy", "", "scoring strategy: auto | postings | exhaustive")
	fs.Float64Var(&o.k1, "k1", 0, "BM25 term-frequency saturation")
	fs.Float64Var(&o.b, "b", 0, "BM25 length normalisation in [0,1]")
	fs.IntVarP(&o.limit, "limit", "k", 0, "results per query (batch: 0 keeps all; interactive: top K)")
	fs.IntVar(&o.workers, "workers", 0, "parallel workers for indexing, scoring and evaluation")
	fs.BoolVar(&o.rebuild, "rebuild", false, "rebuild the index even if a persisted copy exists")
	fs.StringVar(&o.label, "label", "", "label stored with archived evaluations")
	fs.BoolVar(&o.perQuery, "per-query", false, "print per-query metrics after the summary")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 {
		return nil, nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return &o, fs, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, fs, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	a, ctx, err := newApp(ctx, opts, fs, stdin, stdout, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	switch opts.mode {
	case "build":
		return a.build(ctx)
	case "batch":
		return a.batch(ctx)
	case "interactive":
		return a.interactive(ctx)
	case "evaluate":
		return a.evaluate(ctx)
	default:
		return apperrors.Newf(apperrors.ErrConfiguration, "", "unknown mode %q (want build, batch, interactive or evaluate)", opts.mode)
	}
}
