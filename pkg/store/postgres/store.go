// Package postgres provides the PostgreSQL-backed implementation of
// [store.Store].
//
// Utterance writes are idempotent on (session_id, local_id) so that outbox
// retries can never duplicate rows, and [Store.ReplaceUtterances] runs its
// delete-then-insert inside one transaction so a crash mid-operation can
// never leave a session with neither the old nor the new utterances.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyvox/polyvox/pkg/store"
	"github.com/polyvox/polyvox/pkg/types"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed transcript store. It holds a single
// [pgxpool.Pool]. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, and runs [Migrate] to ensure all required tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CreateSession implements [store.Store.CreateSession].
func (s *Store) CreateSession(ctx context.Context, sess *types.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	targets, err := json.Marshal(emptySlice(sess.TargetLanguages))
	if err != nil {
		return fmt.Errorf("postgres store: marshal target languages: %w", err)
	}

	const q = `
		INSERT INTO sessions
		    (id, title, source_language, target_languages, status, utterance_count, created_at, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.pool.Exec(ctx, q,
		sess.ID,
		sess.Title,
		sess.SourceLanguage,
		targets,
		string(sess.Status),
		sess.UtteranceCount,
		sess.CreatedAt,
		sess.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("postgres store: create session: %w", err)
	}
	return nil
}

// GetSession implements [store.Store.GetSession].
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	const q = `
		SELECT id, title, source_language, target_languages, status, utterance_count, created_at, ended_at, duration_seconds
		FROM   sessions
		WHERE  id = $1`

	sess, err := scanSession(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres store: get session: %w", err)
	}
	return sess, nil
}

// UpdateSession implements [store.Store.UpdateSession].
func (s *Store) UpdateSession(ctx context.Context, sess *types.Session) error {
	targets, err := json.Marshal(emptySlice(sess.TargetLanguages))
	if err != nil {
		return fmt.Errorf("postgres store: marshal target languages: %w", err)
	}

	const q = `
		UPDATE sessions
		SET    title = $2, source_language = $3, target_languages = $4, status = $5,
		       utterance_count = $6, ended_at = $7, duration_seconds = $8
		WHERE  id = $1`

	var endedAt *time.Time
	if !sess.EndedAt.IsZero() {
		endedAt = &sess.EndedAt
	}

	tag, err := s.pool.Exec(ctx, q,
		sess.ID,
		sess.Title,
		sess.SourceLanguage,
		targets,
		string(sess.Status),
		sess.UtteranceCount,
		endedAt,
		sess.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("postgres store: update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListSessions implements [store.Store.ListSessions].
func (s *Store) ListSessions(ctx context.Context) ([]types.Session, error) {
	const q = `
		SELECT id, title, source_language, target_languages, status, utterance_count, created_at, ended_at, duration_seconds
		FROM   sessions
		ORDER  BY created_at DESC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list sessions: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Session, error) {
		sess, err := scanSession(row)
		if err != nil {
			return types.Session{}, err
		}
		return *sess, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: list sessions: %w", err)
	}
	return sessions, nil
}

// InsertUtterance implements [store.Store.InsertUtterance].
func (s *Store) InsertUtterance(ctx context.Context, u *types.Utterance) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("postgres store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	id, err := insertUtteranceTx(ctx, tx, u)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("postgres store: commit: %w", err)
	}
	return id, nil
}

// InsertUtterances implements [store.Store.InsertUtterances].
func (s *Store) InsertUtterances(ctx context.Context, us []*types.Utterance) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range us {
		if _, err := insertUtteranceTx(ctx, tx, u); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	return nil
}

// DeleteUtterances implements [store.Store.DeleteUtterances].
func (s *Store) DeleteUtterances(ctx context.Context, sessionID string, ids []string) error {
	const q = `DELETE FROM utterances WHERE session_id = $1 AND id = ANY($2)`

	if _, err := s.pool.Exec(ctx, q, sessionID, ids); err != nil {
		return fmt.Errorf("postgres store: delete utterances: %w", err)
	}
	return nil
}

// ReplaceUtterances implements [store.Store.ReplaceUtterances]. Delete and
// insert run in a single transaction.
func (s *Store) ReplaceUtterances(ctx context.Context, sessionID string, deleteIDs []string, replacements []*types.Utterance) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const del = `DELETE FROM utterances WHERE session_id = $1 AND id = ANY($2)`
	if _, err := tx.Exec(ctx, del, sessionID, deleteIDs); err != nil {
		return fmt.Errorf("postgres store: replace delete: %w", err)
	}

	for _, u := range replacements {
		if _, err := insertUtteranceTx(ctx, tx, u); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: replace commit: %w", err)
	}
	return nil
}

// UpsertTranslation implements [store.Store.UpsertTranslation].
func (s *Store) UpsertTranslation(ctx context.Context, tr *types.Translation) error {
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	return upsertTranslation(ctx, s.pool, tr)
}

// ListUtterances implements [store.Store.ListUtterances].
func (s *Store) ListUtterances(ctx context.Context, sessionID string) ([]types.Utterance, error) {
	const q = `
		SELECT id, local_id, session_id, speaker_id, original_text, source_language, start_offset_ns, end_offset_ns, created_at
		FROM   utterances
		WHERE  session_id = $1
		ORDER  BY created_at`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list utterances: %w", err)
	}
	us, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Utterance, error) {
		var (
			u       types.Utterance
			startNS int64
			endNS   int64
		)
		if err := row.Scan(&u.ID, &u.LocalID, &u.SessionID, &u.SpeakerID,
			&u.OriginalText, &u.SourceLanguage, &startNS, &endNS, &u.CreatedAt); err != nil {
			return types.Utterance{}, err
		}
		u.Start = time.Duration(startNS)
		u.End = time.Duration(endNS)
		return u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: list utterances: %w", err)
	}
	if len(us) == 0 {
		return us, nil
	}

	ids := make([]string, len(us))
	byID := make(map[string]*types.Utterance, len(us))
	for i := range us {
		ids[i] = us[i].ID
		byID[us[i].ID] = &us[i]
	}

	const tq = `
		SELECT id, utterance_id, target_language, translated_text, provider
		FROM   translations
		WHERE  utterance_id = ANY($1)
		ORDER  BY target_language`

	trows, err := s.pool.Query(ctx, tq, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list translations: %w", err)
	}
	translations, err := pgx.CollectRows(trows, func(row pgx.CollectableRow) (types.Translation, error) {
		var tr types.Translation
		err := row.Scan(&tr.ID, &tr.UtteranceID, &tr.TargetLanguage, &tr.TranslatedText, &tr.Provider)
		return tr, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: list translations: %w", err)
	}
	for _, tr := range translations {
		if u, ok := byID[tr.UtteranceID]; ok {
			u.Translations = append(u.Translations, tr)
		}
	}
	return us, nil
}

// execer abstracts pool vs. transaction for shared write helpers. Both
// *pgxpool.Pool and pgx.Tx satisfy it.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// insertUtteranceTx performs the idempotent utterance insert inside tx and
// writes the utterance's translations. The ON CONFLICT clause makes retried
// writes return the existing row's id instead of creating a duplicate.
func insertUtteranceTx(ctx context.Context, tx pgx.Tx, u *types.Utterance) (string, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.LocalID == "" {
		u.LocalID = u.ID
	}

	const q = `
		INSERT INTO utterances
		    (id, local_id, session_id, speaker_id, original_text, source_language, start_offset_ns, end_offset_ns, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, local_id) DO UPDATE SET local_id = EXCLUDED.local_id
		RETURNING id`

	var id string
	err := tx.QueryRow(ctx, q,
		u.ID,
		u.LocalID,
		u.SessionID,
		u.SpeakerID,
		u.OriginalText,
		u.SourceLanguage,
		u.Start.Nanoseconds(),
		u.End.Nanoseconds(),
		u.CreatedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("postgres store: insert utterance: %w", err)
	}
	u.ID = id

	for i := range u.Translations {
		tr := &u.Translations[i]
		tr.UtteranceID = id
		if tr.ID == "" {
			tr.ID = uuid.NewString()
		}
		if err := upsertTranslation(ctx, tx, tr); err != nil {
			return "", err
		}
	}
	return id, nil
}

// upsertTranslation writes the current translation for the pair
// (utterance_id, target_language), replacing any previous one.
func upsertTranslation(ctx context.Context, db execer, tr *types.Translation) error {
	const q = `
		INSERT INTO translations (id, utterance_id, target_language, translated_text, provider)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (utterance_id, target_language)
		DO UPDATE SET translated_text = EXCLUDED.translated_text, provider = EXCLUDED.provider`

	if _, err := db.Exec(ctx, q, tr.ID, tr.UtteranceID, tr.TargetLanguage, tr.TranslatedText, tr.Provider); err != nil {
		return fmt.Errorf("postgres store: upsert translation: %w", err)
	}
	return nil
}

// scanSession scans one sessions row.
func scanSession(row pgx.Row) (*types.Session, error) {
	var (
		sess    types.Session
		targets []byte
		status  string
		endedAt *time.Time
	)
	if err := row.Scan(&sess.ID, &sess.Title, &sess.SourceLanguage, &targets,
		&status, &sess.UtteranceCount, &sess.CreatedAt, &endedAt, &sess.DurationSeconds); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(targets, &sess.TargetLanguages); err != nil {
		return nil, fmt.Errorf("unmarshal target languages: %w", err)
	}
	sess.Status = types.SessionStatus(status)
	if endedAt != nil {
		sess.EndedAt = *endedAt
	}
	return &sess, nil
}

// emptySlice returns a non-nil slice so JSONB columns store [] instead of null.
func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
