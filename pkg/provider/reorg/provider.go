// Package reorg defines the interface for AI-assisted transcript
// reorganization: grouping raw utterances into coherent passages that read
// well as prose.
package reorg

import "context"

// UtteranceInput is one utterance handed to the grouping service. Index is
// the position in the submitted transcript and is how [Group.MergedFrom]
// refers back to it.
type UtteranceInput struct {
	Index int
	Text  string
}

// Group is one coherent passage produced by the grouping service. MergedFrom
// lists the indices of the source utterances, in the order they were merged.
type Group struct {
	MergedFrom []int
	Text       string
}

// Provider groups a transcript into coherent passages.
type Provider interface {
	// Reorganize returns the grouped form of utterances. Implementations
	// must return at least one group for a non-empty input; an empty result
	// is an error.
	Reorganize(ctx context.Context, utterances []UtteranceInput) ([]Group, error)

	// Name returns the implementation name for logging and metrics.
	Name() string
}
