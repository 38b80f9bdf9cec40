// Package store defines the durable storage backend for sessions, utterances,
// and translations.
//
// Two implementations exist: an in-memory store ([MemStore]) for tests and
// single-process development runs, and a PostgreSQL store (pkg/store/postgres)
// for production. Both honour the same idempotency contract: utterance writes
// are keyed by (SessionID, LocalID), so a retried outbox write can never
// create a duplicate row.
//
// All implementations must be safe for concurrent use.
package store

import (
	"context"
	"errors"

	"github.com/polyvox/polyvox/pkg/types"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the durable backend for the transcript pipeline.
type Store interface {
	// CreateSession persists a new session and assigns its ID.
	CreateSession(ctx context.Context, s *types.Session) error

	// GetSession retrieves a session by ID.
	// Returns [ErrNotFound] when no session with that ID exists.
	GetSession(ctx context.Context, id string) (*types.Session, error)

	// UpdateSession replaces the stored session record.
	// Returns [ErrNotFound] when no session with that ID exists.
	UpdateSession(ctx context.Context, s *types.Session) error

	// ListSessions returns all sessions ordered by creation time descending.
	ListSessions(ctx context.Context) ([]types.Session, error)

	// InsertUtterance persists u together with its translations and returns
	// the storage-assigned utterance ID. The write is idempotent on
	// (u.SessionID, u.LocalID): re-inserting an already-persisted utterance
	// returns the existing ID without duplicating the row.
	InsertUtterance(ctx context.Context, u *types.Utterance) (string, error)

	// InsertUtterances bulk-inserts utterances with their translations,
	// assigning IDs in place.
	InsertUtterances(ctx context.Context, us []*types.Utterance) error

	// DeleteUtterances removes the given utterances (and their translations)
	// from sessionID. Unknown IDs are ignored.
	DeleteUtterances(ctx context.Context, sessionID string, ids []string) error

	// ReplaceUtterances atomically deletes the utterances named by deleteIDs
	// and inserts replacements, assigning IDs in place. Either both steps
	// apply or neither does — a crash mid-operation can never leave the
	// session with neither the old nor the new utterances.
	ReplaceUtterances(ctx context.Context, sessionID string, deleteIDs []string, replacements []*types.Utterance) error

	// UpsertTranslation writes the current translation for the pair
	// (tr.UtteranceID, tr.TargetLanguage), replacing any previous one.
	UpsertTranslation(ctx context.Context, tr *types.Translation) error

	// ListUtterances returns all utterances for sessionID with their
	// translations, ordered by creation time ascending.
	ListUtterances(ctx context.Context, sessionID string) ([]types.Utterance, error)
}
