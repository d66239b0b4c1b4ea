// Package migration applies the schema on startup when it is missing. The
// documents table is the sentinel: when it exists, migration is skipped
// entirely, so the steps only need to be correct for an empty database.
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_extension_uuid_ossp",
		SQL:  `CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	},
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id               UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  type             TEXT        NOT NULL DEFAULT 'note',
  title            TEXT        NOT NULL,
  content          TEXT        NOT NULL,
  source_url       TEXT,
  status           TEXT        NOT NULL DEFAULT 'pending',
  processing_error TEXT,
  last_error       TEXT,
  retry_count      INT         NOT NULL DEFAULT 0 CHECK (retry_count >= 0),
  max_retries      INT         NOT NULL DEFAULT 3 CHECK (max_retries >= 0),
  next_attempt_at  TIMESTAMPTZ,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_document_tags",
		SQL: `CREATE TABLE IF NOT EXISTS document_tags (
  document_id UUID NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
  tag         TEXT NOT NULL,
  PRIMARY KEY (document_id, tag)
);`,
	},
	{
		Name: "create_table_document_links",
		SQL: `CREATE TABLE IF NOT EXISTS document_links (
  source_doc_id UUID NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
  target_doc_id UUID NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
  PRIMARY KEY (source_doc_id, target_doc_id)
);`,
	},
	{
		Name: "create_index_documents_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status);`,
	},
	{
		Name: "create_index_documents_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at);`,
	},
	{
		// Serves the retry sweep: failed rows ordered by age.
		Name: "create_index_documents_retry",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_retry ON documents (created_at) WHERE status = 'failed';`,
	},
	{
		Name: "create_index_document_tags_tag",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_document_tags_tag ON document_tags (tag);`,
	},
	{
		Name: "create_index_document_links_target",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_document_links_target ON document_links (target_doc_id);`,
	},
}

// EnsureMigrated checks if the documents table exists and runs the migration
// steps if it does not.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	start := time.Now()

	var exists bool
	query := "SELECT to_regclass('public.documents') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		return fmt.Errorf("check sentinel table: %w", err)
	}

	if exists {
		log.Info("schema already exists, skipping migration")
		return nil
	}

	log.Info("running schema migration")
	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			return fmt.Errorf("migration step %s: %w", step.Name, err)
		}
		log.Debug("migration step applied", "step", step.Name, "duration_ms", time.Since(stepStart).Milliseconds())
	}

	log.Info("schema migration finished", "steps", len(steps), "duration_ms", time.Since(start).Milliseconds())
	return nil
}
