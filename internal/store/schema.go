package store

import (
	"context"
	"fmt"
)

// ddl creates the statement_imports table. The unique index on
// (owner_id, account_id, file_hash) is what turns a duplicate upload into a
// 23505 at insert time, so deduplication needs no read-before-write.
var ddl = []string{
	`CREATE TABLE IF NOT EXISTS statement_imports (
		id                    TEXT PRIMARY KEY,
		owner_id              TEXT NOT NULL,
		account_id            TEXT NOT NULL,
		file_name             TEXT NOT NULL,
		file_path             TEXT NOT NULL,
		mime_type             TEXT NOT NULL,
		file_size_bytes       BIGINT NOT NULL,
		file_hash             CHAR(64) NOT NULL,
		status                TEXT NOT NULL DEFAULT 'pending',
		parsing_method        TEXT NOT NULL DEFAULT '',
		total_transactions    INTEGER NOT NULL DEFAULT 0,
		imported_transactions INTEGER NOT NULL DEFAULT 0,
		failed_transactions   INTEGER NOT NULL DEFAULT 0,
		confidence_score      DOUBLE PRECISION,
		error_message         TEXT,
		metadata              JSONB,
		correlation_id        TEXT NOT NULL,
		created_at            TIMESTAMPTZ NOT NULL,
		updated_at            TIMESTAMPTZ NOT NULL,
		completed_at          TIMESTAMPTZ,

		CONSTRAINT statement_imports_status_check CHECK (
			status IN ('pending', 'processing', 'review', 'completed', 'failed', 'cancelled')
		),
		CONSTRAINT statement_imports_counts_check CHECK (
			total_transactions >= 0 AND imported_transactions >= 0 AND failed_transactions >= 0
		),
		CONSTRAINT statement_imports_confidence_check CHECK (
			confidence_score IS NULL OR (confidence_score >= 0 AND confidence_score <= 100)
		)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS statement_imports_owner_account_hash_idx
		ON statement_imports (owner_id, account_id, file_hash)`,
	`CREATE INDEX IF NOT EXISTS statement_imports_account_created_idx
		ON statement_imports (account_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS statement_imports_status_idx
		ON statement_imports (status)`,
}

// InitSchema creates the table and indexes if they do not exist.
func (s *ImportStore) InitSchema(ctx context.Context) error {
	for _, stmt := range ddl {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init statement_imports schema: %w", err)
		}
	}
	s.log.Info("statement_imports schema ready")
	return nil
}
