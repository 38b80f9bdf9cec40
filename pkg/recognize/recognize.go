// Package recognize defines the speech recognition event stream consumed by
// the session pipeline. The pipeline only reads events; capturing audio and
// feeding the recognizer happen behind the [Stream] implementation.
package recognize

import (
	"context"
	"time"
)

// Event is one recognition result. Interim events carry the evolving text of
// an unfinished utterance; a final event is the authoritative result for it.
type Event struct {
	// Text is the recognized speech content.
	Text string

	// IsFinal indicates whether this is a final or interim result.
	IsFinal bool

	// Start and End delimit the utterance relative to session start.
	Start time.Duration
	End   time.Duration

	// SpeakerID identifies the speaker when diarization is active. May be
	// empty.
	SpeakerID string
}

// Stream is a live recognition session.
type Stream interface {
	// Events returns the channel of recognition results. It is closed when
	// the stream ends, whether cleanly or on error.
	Events() <-chan Event

	// Err returns the terminal error after Events is closed, or nil when
	// the stream ended cleanly.
	Err() error

	// Close terminates the stream. Safe to call multiple times.
	Close() error
}

// Recognizer opens recognition streams.
type Recognizer interface {
	// Open starts a new recognition stream for the given language.
	Open(ctx context.Context, language string) (Stream, error)

	// Name returns the implementation name for logging and metrics.
	Name() string
}
