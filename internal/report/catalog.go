package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/postgres"
)

const catalogSchema = `CREATE TABLE IF NOT EXISTS index_builds (
    build_id      TEXT PRIMARY KEY,
    source        TEXT NOT NULL,
    status        TEXT NOT NULL,
    documents     BIGINT NOT NULL,
    postings      BIGINT NOT NULL,
    terms_written BIGINT NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ NOT NULL,
    report        JSONB NOT NULL
)`

const catalogIndex = `CREATE INDEX IF NOT EXISTS index_builds_started_at ON index_builds (started_at DESC)`

const upsertBuild = `INSERT INTO index_builds
    (build_id, source, status, documents, postings, terms_written, started_at, finished_at, report)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (build_id) DO UPDATE SET
    status = EXCLUDED.status,
    documents = EXCLUDED.documents,
    postings = EXCLUDED.postings,
    terms_written = EXCLUDED.terms_written,
    finished_at = EXCLUDED.finished_at,
    report = EXCLUDED.report`

// Catalog records finished builds in the index_builds table, one row per
// build id.
type Catalog struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewCatalog(db *postgres.Client) *Catalog {
	return &Catalog{
		db:     db,
		logger: slog.Default().With("component", "build-catalog"),
	}
}

// EnsureSchema creates the index_builds table if it does not exist.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	if err := c.db.Migrate(ctx, catalogSchema, catalogIndex); err != nil {
		return fmt.Errorf("creating index_builds table: %w", err)
	}
	return nil
}

// RecordBuild upserts the row for r.BuildID.
func (c *Catalog) RecordBuild(ctx context.Context, r Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling build report: %w", err)
	}
	err = c.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, upsertBuild,
			r.BuildID, r.Stats.Source, r.Status,
			r.Stats.Documents, r.Stats.Postings, r.Stats.TermsWritten,
			r.Stats.StartedAt.UTC(), r.ReportedAt, data,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("recording build %s: %w", r.BuildID, err)
	}
	c.logger.Info("build recorded", "build_id", r.BuildID, "status", r.Status)
	return nil
}
