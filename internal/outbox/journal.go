package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Journal is the durable local record of pending outbox items. Items written
// here survive process restarts; the journal is keyed by a per-user
// namespace so the queue carries across sessions.
type Journal interface {
	// Append durably records item under namespace, keyed by its LocalID.
	// Re-appending an existing item overwrites its attempt count.
	Append(ctx context.Context, namespace string, item Item) error

	// Remove deletes the item with localID from namespace. Removing an
	// unknown id is not an error.
	Remove(ctx context.Context, namespace, localID string) error

	// Load returns all items in namespace, oldest first.
	Load(ctx context.Context, namespace string) ([]Item, error)

	// Clear removes every item in namespace.
	Clear(ctx context.Context, namespace string) error

	// Close releases the underlying storage.
	Close() error
}

// sqliteJournal implements [Journal] on a local SQLite database.
type sqliteJournal struct {
	db *sql.DB
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS outbox_items (
    namespace     TEXT NOT NULL,
    local_id      TEXT NOT NULL,
    payload       TEXT NOT NULL,
    enqueued_at   INTEGER NOT NULL,
    attempt_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (namespace, local_id)
);
CREATE INDEX IF NOT EXISTS idx_outbox_items_namespace_enqueued
    ON outbox_items(namespace, enqueued_at);
`

// OpenJournal opens (creating if necessary) the SQLite-backed journal at path.
// The special path ":memory:" keeps the journal in memory, which is useful
// in tests but defeats restart durability.
func OpenJournal(path string) (Journal, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("outbox journal: open %q: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("outbox journal: ping: %w", err)
	}

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("outbox journal: migrate: %w", err)
	}

	return &sqliteJournal{db: db}, nil
}

// Append implements [Journal.Append].
func (j *sqliteJournal) Append(ctx context.Context, namespace string, item Item) error {
	payload, err := json.Marshal(item.Utterance)
	if err != nil {
		return fmt.Errorf("outbox journal: marshal item: %w", err)
	}

	const q = `
		INSERT INTO outbox_items (namespace, local_id, payload, enqueued_at, attempt_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (namespace, local_id)
		DO UPDATE SET attempt_count = excluded.attempt_count`

	_, err = j.db.ExecContext(ctx, q,
		namespace,
		item.Utterance.LocalID,
		string(payload),
		item.EnqueuedAt.UnixMicro(),
		item.AttemptCount,
	)
	if err != nil {
		return fmt.Errorf("outbox journal: append: %w", err)
	}
	return nil
}

// Remove implements [Journal.Remove].
func (j *sqliteJournal) Remove(ctx context.Context, namespace, localID string) error {
	const q = `DELETE FROM outbox_items WHERE namespace = ? AND local_id = ?`
	if _, err := j.db.ExecContext(ctx, q, namespace, localID); err != nil {
		return fmt.Errorf("outbox journal: remove: %w", err)
	}
	return nil
}

// Load implements [Journal.Load].
func (j *sqliteJournal) Load(ctx context.Context, namespace string) ([]Item, error) {
	const q = `
		SELECT payload, enqueued_at, attempt_count
		FROM outbox_items
		WHERE namespace = ?
		ORDER BY enqueued_at ASC, local_id ASC`

	rows, err := j.db.QueryContext(ctx, q, namespace)
	if err != nil {
		return nil, fmt.Errorf("outbox journal: load: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			payload    string
			enqueuedAt int64
			attempts   int
		)
		if err := rows.Scan(&payload, &enqueuedAt, &attempts); err != nil {
			return nil, fmt.Errorf("outbox journal: scan: %w", err)
		}
		var item Item
		if err := json.Unmarshal([]byte(payload), &item.Utterance); err != nil {
			return nil, fmt.Errorf("outbox journal: unmarshal item: %w", err)
		}
		item.EnqueuedAt = time.UnixMicro(enqueuedAt)
		item.AttemptCount = attempts
		items = append(items, item)
	}
	return items, rows.Err()
}

// Clear implements [Journal.Clear].
func (j *sqliteJournal) Clear(ctx context.Context, namespace string) error {
	const q = `DELETE FROM outbox_items WHERE namespace = ?`
	if _, err := j.db.ExecContext(ctx, q, namespace); err != nil {
		return fmt.Errorf("outbox journal: clear: %w", err)
	}
	return nil
}

// Close implements [Journal.Close].
func (j *sqliteJournal) Close() error {
	return j.db.Close()
}
