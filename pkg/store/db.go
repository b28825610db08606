// Package store implements the Workspace Store (C12): Postgres-backed
// persistence for uploads, chat messages, and analysis results, plus a
// cache layer that accelerates but never replaces that persistence.
// The singleton pool pattern is adapted from the teacher's
// pkg/core/store/db.go InitDB/GetPool/Close.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pool     *pgxpool.Pool
	poolOnce sync.Once
)

// InitDB initializes the shared connection pool from databaseURL.
// Called once at startup (cmd/finsight); safe to call from tests with a
// throwaway DSN, since pgx only connects lazily on first query.
func InitDB(ctx context.Context, databaseURL string) error {
	var err error
	poolOnce.Do(func() {
		if databaseURL == "" {
			err = fmt.Errorf("DATABASE_URL not set")
			return
		}
		cfg, parseErr := pgxpool.ParseConfig(databaseURL)
		if parseErr != nil {
			err = fmt.Errorf("parse database config: %w", parseErr)
			return
		}
		pool, err = pgxpool.NewWithConfig(ctx, cfg)
	})
	return err
}

// GetPool returns the shared pool. Nil until InitDB succeeds.
func GetPool() *pgxpool.Pool { return pool }

// Close releases the pool's connections.
func Close() {
	if pool != nil {
		pool.Close()
	}
}

// schema is the DDL for the five tables the Workspace Store owns. Not
// run automatically — `finsight migrate` applies it explicitly, the
// same separation the teacher keeps between InitDB and any migration
// tooling.
const schema = `
CREATE TABLE IF NOT EXISTS uploads (
	upload_id    TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	filename     TEXT NOT NULL,
	document_type TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	summary_metadata JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id          TEXT PRIMARY KEY,
	upload_id   TEXT NOT NULL REFERENCES uploads(upload_id) ON DELETE CASCADE,
	user_id     TEXT NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	agent_name  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_upload_created ON chat_messages(upload_id, created_at);

CREATE TABLE IF NOT EXISTS analysis_results (
	id          BIGSERIAL PRIMARY KEY,
	upload_id   TEXT NOT NULL REFERENCES uploads(upload_id) ON DELETE CASCADE,
	user_id     TEXT NOT NULL,
	agent_name  TEXT NOT NULL,
	status      TEXT NOT NULL,
	summary     TEXT NOT NULL DEFAULT '',
	findings    JSONB NOT NULL DEFAULT '{}',
	mode        TEXT NOT NULL DEFAULT 'insights',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (upload_id, agent_name)
);

CREATE TABLE IF NOT EXISTS financial_statements (
	upload_id   TEXT PRIMARY KEY REFERENCES uploads(upload_id) ON DELETE CASCADE,
	payload     JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS vector_doc_snapshots (
	upload_id   TEXT NOT NULL REFERENCES uploads(upload_id) ON DELETE CASCADE,
	doc_id      TEXT NOT NULL,
	payload     JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (upload_id, doc_id)
);
`

// Migrate applies the schema. Idempotent: every statement is
// IF NOT EXISTS.
func Migrate(ctx context.Context, p *pgxpool.Pool) error {
	_, err := p.Exec(ctx, schema)
	return err
}
