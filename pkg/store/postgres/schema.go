package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the transcript tables. Execute it via [Migrate]
// or apply it manually during deployment.
//
// The UNIQUE constraint on utterances(session_id, local_id) is the
// server-side idempotency key: a retried outbox write upserts into the same
// row instead of duplicating it. translations(utterance_id, target_language)
// is unique so a re-translation replaces rather than accumulates.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id               TEXT PRIMARY KEY,
    title            TEXT NOT NULL DEFAULT '',
    source_language  TEXT NOT NULL,
    target_languages JSONB NOT NULL DEFAULT '[]',
    status           TEXT NOT NULL DEFAULT 'active',
    utterance_count  INTEGER NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    ended_at         TIMESTAMPTZ,
    duration_seconds INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS utterances (
    id              TEXT PRIMARY KEY,
    local_id        TEXT NOT NULL,
    session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    speaker_id      TEXT NOT NULL DEFAULT '',
    original_text   TEXT NOT NULL,
    source_language TEXT NOT NULL DEFAULT '',
    start_offset_ns BIGINT NOT NULL DEFAULT 0,
    end_offset_ns   BIGINT NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL,
    UNIQUE (session_id, local_id)
);
CREATE INDEX IF NOT EXISTS idx_utterances_session_created
    ON utterances(session_id, created_at);

CREATE TABLE IF NOT EXISTS translations (
    id              TEXT PRIMARY KEY,
    utterance_id    TEXT NOT NULL REFERENCES utterances(id) ON DELETE CASCADE,
    target_language TEXT NOT NULL,
    translated_text TEXT NOT NULL DEFAULT '',
    provider        TEXT NOT NULL DEFAULT '',
    UNIQUE (utterance_id, target_language)
);
`

// Migrate executes the [Schema] DDL, creating all tables and indexes if they
// do not already exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres store: migrate: %w", err)
	}
	return nil
}
