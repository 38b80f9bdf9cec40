package outbox

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/polyvox/polyvox/pkg/types"
)

func openTestJournal(t *testing.T, path string) Journal {
	t.Helper()
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func journalItem(localID string, enqueued time.Time) Item {
	return Item{
		Utterance: types.Utterance{
			LocalID:      localID,
			SessionID:    "sess-1",
			OriginalText: "So it goes.",
			Translations: []types.Translation{
				{TargetLanguage: "de", TranslatedText: "So geht es.", Provider: "openai"},
			},
		},
		EnqueuedAt: enqueued,
	}
}

func TestJournal_AppendLoadOrdering(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t, filepath.Join(t.TempDir(), "outbox.db"))

	base := time.Now()
	for i, id := range []string{"first", "second", "third"} {
		if err := j.Append(ctx, "user-1", journalItem(id, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Append(%s): %v", id, err)
		}
	}

	items, err := j.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got := items[i].Utterance.LocalID; got != want {
			t.Errorf("item %d: got %q, want %q", i, got, want)
		}
	}
	if got := items[0].Utterance.Translations; len(got) != 1 || got[0].TranslatedText != "So geht es." {
		t.Errorf("translations did not survive the round trip: %+v", got)
	}
}

func TestJournal_ReappendUpdatesAttempts(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t, filepath.Join(t.TempDir(), "outbox.db"))

	item := journalItem("u1", time.Now())
	if err := j.Append(ctx, "user-1", item); err != nil {
		t.Fatalf("Append: %v", err)
	}
	item.AttemptCount = 4
	if err := j.Append(ctx, "user-1", item); err != nil {
		t.Fatalf("re-Append: %v", err)
	}

	items, err := j.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1 (no duplicate)", len(items))
	}
	if got := items[0].AttemptCount; got != 4 {
		t.Errorf("got attempt count %d, want 4", got)
	}
}

func TestJournal_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t, filepath.Join(t.TempDir(), "outbox.db"))

	base := time.Now()
	for i, id := range []string{"a", "b"} {
		if err := j.Append(ctx, "user-1", journalItem(id, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Append(%s): %v", id, err)
		}
	}

	if err := j.Remove(ctx, "user-1", "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	// Removing an unknown id is a no-op.
	if err := j.Remove(ctx, "user-1", "missing"); err != nil {
		t.Fatalf("Remove(missing): %v", err)
	}

	items, err := j.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(items) != 1 || items[0].Utterance.LocalID != "b" {
		t.Fatalf("got %+v, want only item b", items)
	}

	if err := j.Clear(ctx, "user-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	items, err = j.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load after clear: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items after clear, want 0", len(items))
	}
}

func TestJournal_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t, filepath.Join(t.TempDir(), "outbox.db"))

	if err := j.Append(ctx, "user-1", journalItem("u1", time.Now())); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Append(ctx, "user-2", journalItem("u2", time.Now())); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := j.Clear(ctx, "user-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	items, err := j.Load(ctx, "user-2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("got %d items in user-2, want 1", len(items))
	}
}

func TestJournal_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outbox.db")

	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	if err := j.Append(ctx, "user-1", journalItem("u1", time.Now())); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTestJournal(t, path)
	items, err := reopened.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	if len(items) != 1 || items[0].Utterance.LocalID != "u1" {
		t.Fatalf("got %+v after reopen, want item u1", items)
	}
}
