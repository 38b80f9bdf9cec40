package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"sync"

	"github.com/polyvox/polyvox/pkg/types"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for tests and single-process development runs.
type MemStore struct {
	mu         sync.RWMutex
	sessions   map[string]types.Session
	utterances map[string][]types.Utterance // keyed by session ID, insertion order
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		sessions:   make(map[string]types.Session),
		utterances: make(map[string][]types.Utterance),
	}
}

// CreateSession implements [Store.CreateSession].
func (s *MemStore) CreateSession(ctx context.Context, sess *types.Session) error {
	if sess.ID == "" {
		id, err := generateID()
		if err != nil {
			return fmt.Errorf("memstore: generate id: %w", err)
		}
		sess.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess
	return nil
}

// GetSession implements [Store.GetSession].
func (s *MemStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// UpdateSession implements [Store.UpdateSession].
func (s *MemStore) UpdateSession(ctx context.Context, sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; !ok {
		return ErrNotFound
	}
	s.sessions[sess.ID] = *sess
	return nil
}

// ListSessions implements [Store.ListSessions].
func (s *MemStore) ListSessions(ctx context.Context) ([]types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	slices.SortFunc(out, func(a, b types.Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// InsertUtterance implements [Store.InsertUtterance].
func (s *MemStore) InsertUtterance(ctx context.Context, u *types.Utterance) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(u)
}

// InsertUtterances implements [Store.InsertUtterances].
func (s *MemStore) InsertUtterances(ctx context.Context, us []*types.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range us {
		if _, err := s.insertLocked(u); err != nil {
			return err
		}
	}
	return nil
}

// insertLocked performs the idempotent insert. Must be called with s.mu held.
func (s *MemStore) insertLocked(u *types.Utterance) (string, error) {
	// Idempotency: an utterance with the same (session, local id) already
	// persisted is the same write retried.
	if u.LocalID != "" {
		for _, existing := range s.utterances[u.SessionID] {
			if existing.LocalID == u.LocalID {
				u.ID = existing.ID
				return existing.ID, nil
			}
		}
	}

	if u.ID == "" {
		id, err := generateID()
		if err != nil {
			return "", fmt.Errorf("memstore: generate id: %w", err)
		}
		u.ID = id
	}
	for i := range u.Translations {
		u.Translations[i].UtteranceID = u.ID
	}

	s.utterances[u.SessionID] = append(s.utterances[u.SessionID], cloneUtterance(*u))
	return u.ID, nil
}

// DeleteUtterances implements [Store.DeleteUtterances].
func (s *MemStore) DeleteUtterances(ctx context.Context, sessionID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(sessionID, ids)
	return nil
}

func (s *MemStore) deleteLocked(sessionID string, ids []string) {
	kept := s.utterances[sessionID][:0]
	for _, u := range s.utterances[sessionID] {
		if !slices.Contains(ids, u.ID) {
			kept = append(kept, u)
		}
	}
	s.utterances[sessionID] = kept
}

// ReplaceUtterances implements [Store.ReplaceUtterances]. The in-memory
// implementation is atomic by virtue of holding the store lock for the whole
// operation.
func (s *MemStore) ReplaceUtterances(ctx context.Context, sessionID string, deleteIDs []string, replacements []*types.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(sessionID, deleteIDs)
	for _, u := range replacements {
		if _, err := s.insertLocked(u); err != nil {
			return err
		}
	}
	return nil
}

// UpsertTranslation implements [Store.UpsertTranslation].
func (s *MemStore) UpsertTranslation(ctx context.Context, tr *types.Translation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tr.ID == "" {
		id, err := generateID()
		if err != nil {
			return fmt.Errorf("memstore: generate id: %w", err)
		}
		tr.ID = id
	}

	for sessionID, us := range s.utterances {
		for i := range us {
			if us[i].ID != tr.UtteranceID {
				continue
			}
			for j := range us[i].Translations {
				if us[i].Translations[j].TargetLanguage == tr.TargetLanguage {
					tr.ID = us[i].Translations[j].ID
					us[i].Translations[j] = *tr
					return nil
				}
			}
			us[i].Translations = append(us[i].Translations, *tr)
			s.utterances[sessionID] = us
			return nil
		}
	}
	return ErrNotFound
}

// ListUtterances implements [Store.ListUtterances].
func (s *MemStore) ListUtterances(ctx context.Context, sessionID string) ([]types.Utterance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	us := s.utterances[sessionID]
	out := make([]types.Utterance, 0, len(us))
	for _, u := range us {
		out = append(out, cloneUtterance(u))
	}
	slices.SortFunc(out, func(a, b types.Utterance) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// cloneUtterance deep-copies an utterance so callers cannot mutate stored state.
func cloneUtterance(u types.Utterance) types.Utterance {
	u.Translations = slices.Clone(u.Translations)
	return u
}

// generateID returns a random 16-hex-character identifier.
func generateID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
