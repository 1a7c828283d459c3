package postgres

import (
	"context"
	"fmt"
)

// schema holds the DDL applied at startup. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS resumes (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		file_format TEXT NOT NULL,
		mime TEXT NOT NULL DEFAULT '',
		size BIGINT NOT NULL DEFAULT 0,
		content_hash TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		profile JSONB NOT NULL DEFAULT '{}'::jsonb,
		parsing_method TEXT NOT NULL DEFAULT '',
		chunk_count INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS resumes_content_hash_idx ON resumes (content_hash)`,
	`CREATE TABLE IF NOT EXISTS ingest_jobs (
		id UUID PRIMARY KEY,
		resume_id TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		chunk_count INT NOT NULL DEFAULT 0,
		skipped BOOLEAN NOT NULL DEFAULT FALSE,
		idempotency_key TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ingest_jobs_resume_id_idx ON ingest_jobs (resume_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ingest_jobs_idem_key_idx ON ingest_jobs (idempotency_key) WHERE idempotency_key IS NOT NULL`,
}

// EnsureSchema applies the DDL. Safe to run on every startup.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("op=schema.ensure: %w", err)
		}
	}
	return nil
}
