// Package archive stores evaluation reports in PostgreSQL so runs can be
// compared over time.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/internal/evaluator"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS eval_runs (
    id              UUID PRIMARY KEY,
    label           TEXT NOT NULL,
    p10_mode        TEXT NOT NULL,
    num_queries     INTEGER NOT NULL,
    mean_precision  DOUBLE PRECISION NOT NULL,
    mean_recall     DOUBLE PRECISION NOT NULL,
    mean_p10        DOUBLE PRECISION NOT NULL,
    mean_r_precision DOUBLE PRECISION NOT NULL,
    map             DOUBLE PRECISION NOT NULL,
    mean_bpref      DOUBLE PRECISION NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS eval_runs_label_created ON eval_runs (label, created_at DESC);
CREATE TABLE IF NOT EXISTS eval_query_metrics (
    run_id             UUID NOT NULL REFERENCES eval_runs(id) ON DELETE CASCADE,
    query_id           TEXT NOT NULL,
    num_relevant       INTEGER NOT NULL,
    num_retrieved      INTEGER NOT NULL,
    relevant_retrieved INTEGER NOT NULL,
    precision          DOUBLE PRECISION NOT NULL,
    recall             DOUBLE PRECISION NOT NULL,
    p10                DOUBLE PRECISION NOT NULL,
    r_precision        DOUBLE PRECISION NOT NULL,
    ap                 DOUBLE PRECISION NOT NULL,
    bpref              DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (run_id, query_id)
);`

// Archive persists evaluation reports.
type Archive struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Archive {
	return &Archive{
		db:     db,
		logger: slog.Default().With("component", "eval-archive"),
	}
}

// EnsureSchema creates the archive tables if they do not exist.
func (a *Archive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating archive schema: %w", err)
	}
	return nil
}

// SaveReport writes one eval_runs row and a row per judged query in a
// single transaction and returns the new run id.
func (a *Archive) SaveReport(ctx context.Context, label string, report evaluator.Report) (uuid.UUID, error) {
	if err := a.EnsureSchema(ctx); err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	err := a.db.InTx(ctx, func(tx *sql.Tx) error {
		m := report.Mean
		_, err := tx.ExecContext(ctx,
			`INSERT INTO eval_runs
			 (id, label, p10_mode, num_queries, mean_precision, mean_recall, mean_p10, mean_r_precision, map, mean_bpref, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			id, label, string(report.P10Mode), len(report.Queries),
			m.Precision, m.Recall, m.P10, m.RPrecision, m.MAP, m.Bpref, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting eval run: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO eval_query_metrics
			 (run_id, query_id, num_relevant, num_retrieved, relevant_retrieved, precision, recall, p10, r_precision, ap, bpref)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
		if err != nil {
			return fmt.Errorf("preparing query metrics insert: %w", err)
		}
		defer stmt.Close()
		for _, q := range report.Queries {
			if _, err := stmt.ExecContext(ctx,
				id, q.QueryID, q.NumRelevant, q.NumRetrieved, q.RelevantRetrieved,
				q.Precision, q.Recall, q.P10, q.RPrecision, q.AP, q.Bpref,
			); err != nil {
				return fmt.Errorf("inserting metrics for query %s: %w", q.QueryID, err)
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	a.logger.Info("evaluation archived", "run_id", id, "label", label, "queries", len(report.Queries), "map", report.Mean.MAP)
	return id, nil
}

// LatestSummary loads the means of the most recent run with label. It
// returns nil, nil when no such run exists.
func (a *Archive) LatestSummary(ctx context.Context, label string) (*evaluator.Summary, error) {
	if err := a.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	var s evaluator.Summary
	err := a.db.DB.QueryRowContext(ctx,
		`SELECT mean_precision, mean_recall, mean_p10, mean_r_precision, map, mean_bpref
		 FROM eval_runs WHERE label = $1 ORDER BY created_at DESC LIMIT 1`,
		label,
	).Scan(&s.Precision, &s.Recall, &s.P10, &s.RPrecision, &s.MAP, &s.Bpref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest run: %w", err)
	}
	return &s, nil
}
