package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/polyvox/polyvox/internal/observe"
	"github.com/polyvox/polyvox/pkg/provider/reorg"
	"github.com/polyvox/polyvox/pkg/types"
)

// ReorganizeAll regroups the session's entire history through the AI
// grouping provider, replacing the affected utterances atomically. It cannot
// run while the session is listening.
func (c *Controller) ReorganizeAll(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return errors.New("session: no session to reorganize")
	}
	if c.state == StateActive {
		c.mu.Unlock()
		return errors.New("session: cannot reorganize while listening")
	}
	if c.restructuring {
		c.mu.Unlock()
		return errors.New("session: a restructure is already in progress")
	}
	c.restructuring = true
	c.mu.Unlock()
	defer c.endRestructure()

	if c.reorg == nil {
		return errors.New("session: no reorganize provider configured")
	}
	return c.runReorganize(ctx)
}

// runReorganize performs the grouping call, re-translation, and atomic
// replace. New utterances get fresh timestamps and the visible list is
// re-sorted most-recent-first: original per-utterance timing is not
// preserved on this path.
func (c *Controller) runReorganize(ctx context.Context) error {
	c.mu.Lock()
	sessID := c.session.ID
	targets := append([]string(nil), c.session.TargetLanguages...)
	originals := c.snapshotAscendingLocked()
	c.mu.Unlock()

	if len(originals) == 0 {
		return nil
	}

	inputs := make([]reorg.UtteranceInput, len(originals))
	for i, u := range originals {
		inputs[i] = reorg.UtteranceInput{Index: i, Text: u.OriginalText}
	}
	groups, err := c.reorg.Reorganize(ctx, inputs)
	if err != nil {
		return fmt.Errorf("session: reorganize: %w", err)
	}
	if len(groups) == 0 {
		return errors.New("session: reorganize: provider returned zero groups")
	}

	base := time.Now()
	covered := make(map[int]bool)
	replacements := make([]*types.Utterance, 0, len(groups))
	for i, g := range groups {
		for _, idx := range g.MergedFrom {
			if idx < 0 || idx >= len(originals) {
				return fmt.Errorf("session: reorganize: group references unknown utterance %d", idx)
			}
			covered[idx] = true
		}
		u := c.buildReplacement(ctx, sessID, g.Text, targets, base.Add(time.Duration(i)*time.Millisecond))
		replacements = append(replacements, u)
	}

	deleteIDs := make([]string, 0, len(covered))
	queuedIDs := make([]string, 0, len(covered))
	removed := make(map[string]bool)
	for idx := range covered {
		orig := originals[idx]
		if orig.ID != "" {
			deleteIDs = append(deleteIDs, orig.ID)
		} else {
			queuedIDs = append(queuedIDs, orig.LocalID)
		}
		removed[orig.LocalID] = true
	}

	// Originals still waiting in the outbox are superseded by the
	// replacements; drop them before they can be drained back in.
	c.outbox.Discard(ctx, queuedIDs)

	if err := c.store.ReplaceUtterances(ctx, sessID, deleteIDs, replacements); err != nil {
		return fmt.Errorf("session: reorganize replace: %w", err)
	}

	c.mu.Lock()
	c.applyReplacementLocked(removed, replacements)
	c.sortTranscriptLocked()
	sess := *c.session
	c.mu.Unlock()

	if err := c.store.UpdateSession(ctx, &sess); err != nil {
		observe.Logger(ctx).Warn("reorganize: session update failed", "session_id", sessID, "error", err)
	}
	observe.Logger(ctx).Info("history reorganized",
		"session_id", sessID, "originals", len(covered), "groups", len(groups))
	return nil
}

// Merge combines the user-selected utterances into one. The merged utterance
// keeps the earliest timestamp of the selection, so it stays in its
// chronological slot, and the original texts are joined oldest-first with a
// single space. Like reorganize, it cannot run while listening.
func (c *Controller) Merge(ctx context.Context, localIDs []string) error {
	if len(localIDs) < 2 {
		return errors.New("session: merge needs at least two utterances")
	}

	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return errors.New("session: no session to merge in")
	}
	if c.state == StateActive {
		c.mu.Unlock()
		return errors.New("session: cannot merge while listening")
	}
	if c.restructuring {
		c.mu.Unlock()
		return errors.New("session: a restructure is already in progress")
	}
	c.restructuring = true
	defer c.endRestructure()
	sessID := c.session.ID
	targets := append([]string(nil), c.session.TargetLanguages...)

	want := make(map[string]bool, len(localIDs))
	for _, id := range localIDs {
		want[id] = true
	}
	selected := make([]types.Utterance, 0, len(localIDs))
	for _, u := range c.snapshotAscendingLocked() {
		if want[u.LocalID] {
			selected = append(selected, u)
		}
	}
	c.mu.Unlock()

	if len(selected) != len(want) {
		return errors.New("session: merge selection contains unknown utterances")
	}

	texts := make([]string, len(selected))
	for i, u := range selected {
		texts[i] = u.OriginalText
	}
	merged := c.buildReplacement(ctx, sessID, strings.Join(texts, " "), targets, selected[0].CreatedAt)

	deleteIDs := make([]string, 0, len(selected))
	queuedIDs := make([]string, 0, len(selected))
	removed := make(map[string]bool, len(selected))
	for _, u := range selected {
		if u.ID != "" {
			deleteIDs = append(deleteIDs, u.ID)
		} else {
			queuedIDs = append(queuedIDs, u.LocalID)
		}
		removed[u.LocalID] = true
	}

	c.outbox.Discard(ctx, queuedIDs)

	if err := c.store.ReplaceUtterances(ctx, sessID, deleteIDs, []*types.Utterance{merged}); err != nil {
		return fmt.Errorf("session: merge replace: %w", err)
	}

	c.mu.Lock()
	c.applyReplacementLocked(removed, []*types.Utterance{merged})
	c.sortTranscriptLocked()
	sess := *c.session
	c.mu.Unlock()

	if err := c.store.UpdateSession(ctx, &sess); err != nil {
		observe.Logger(ctx).Warn("merge: session update failed", "session_id", sessID, "error", err)
	}
	observe.Logger(ctx).Info("utterances merged", "session_id", sessID, "merged", len(selected))
	return nil
}

// endRestructure releases the flag that keeps Start from racing a
// reorganize or merge in flight.
func (c *Controller) endRestructure() {
	c.mu.Lock()
	c.restructuring = false
	c.mu.Unlock()
}

// buildReplacement creates a translated replacement utterance. Translation
// failures leave that target empty; the utterance is still produced.
func (c *Controller) buildReplacement(ctx context.Context, sessID, text string, targets []string, createdAt time.Time) *types.Utterance {
	u := &types.Utterance{
		LocalID:        uuid.NewString(),
		SessionID:      sessID,
		OriginalText:   text,
		SourceLanguage: c.sourceLang,
		CreatedAt:      createdAt,
	}
	for _, r := range c.dispatcher.TranslateAll(ctx, text, c.sourceLang, targets) {
		if r.Err != nil {
			observe.Logger(ctx).Warn("replacement translation failed",
				"session_id", sessID, "target", r.TargetLanguage, "error", r.Err)
		}
		u.Translations = append(u.Translations, types.Translation{
			UtteranceID:    u.LocalID,
			TargetLanguage: r.TargetLanguage,
			TranslatedText: r.Text,
			Provider:       r.Provider,
		})
	}
	return u
}

// snapshotAscendingLocked returns the visible list oldest-first. Callers
// hold c.mu.
func (c *Controller) snapshotAscendingLocked() []types.Utterance {
	out := make([]types.Utterance, len(c.transcript))
	for i, u := range c.transcript {
		out[len(c.transcript)-1-i] = u
	}
	return out
}

// applyReplacementLocked swaps the replaced utterances in the visible list
// and fixes the session's count. The persisted rows changed first, so a
// reader of the store never sees both generations at once. Callers hold
// c.mu.
func (c *Controller) applyReplacementLocked(removed map[string]bool, replacements []*types.Utterance) {
	kept := c.transcript[:0]
	for _, u := range c.transcript {
		if !removed[u.LocalID] {
			kept = append(kept, u)
		}
	}
	c.transcript = kept
	for _, u := range replacements {
		c.transcript = append(c.transcript, *u)
	}
	c.session.UtteranceCount = len(c.transcript)
}
