package outbox

import (
	"context"
	"sync"
)

// MemJournal is an in-memory [Journal]. Items do not survive restarts; use
// it for tests and ephemeral runs where no journal path is configured.
type MemJournal struct {
	mu    sync.Mutex
	items map[string][]Item // namespace -> ordered items
}

// NewMemJournal creates an empty MemJournal.
func NewMemJournal() *MemJournal {
	return &MemJournal{items: make(map[string][]Item)}
}

var _ Journal = (*MemJournal)(nil)

// Append implements [Journal.Append].
func (j *MemJournal) Append(_ context.Context, namespace string, item Item) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, it := range j.items[namespace] {
		if it.Utterance.LocalID == item.Utterance.LocalID {
			j.items[namespace][i].AttemptCount = item.AttemptCount
			return nil
		}
	}
	j.items[namespace] = append(j.items[namespace], item)
	return nil
}

// Remove implements [Journal.Remove].
func (j *MemJournal) Remove(_ context.Context, namespace, localID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	kept := j.items[namespace][:0]
	for _, it := range j.items[namespace] {
		if it.Utterance.LocalID != localID {
			kept = append(kept, it)
		}
	}
	j.items[namespace] = kept
	return nil
}

// Load implements [Journal.Load].
func (j *MemJournal) Load(_ context.Context, namespace string) ([]Item, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Item, len(j.items[namespace]))
	copy(out, j.items[namespace])
	return out, nil
}

// Clear implements [Journal.Clear].
func (j *MemJournal) Clear(_ context.Context, namespace string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.items, namespace)
	return nil
}

// Close implements [Journal.Close].
func (j *MemJournal) Close() error { return nil }
