// Package types defines the shared types used across all Polyvox packages.
//
// These types form the lingua franca between the accumulator, the translation
// dispatcher, the outbox, and the storage backends. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// SessionStatus is the lifecycle state of a [Session].
type SessionStatus string

const (
	// SessionActive means the session is currently accepting utterances.
	SessionActive SessionStatus = "active"

	// SessionPaused means listening has stopped but the session can resume.
	SessionPaused SessionStatus = "paused"

	// SessionCompleted is the terminal state set by finalization.
	SessionCompleted SessionStatus = "completed"
)

// IsValid reports whether s is a recognised session status.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionActive, SessionPaused, SessionCompleted:
		return true
	}
	return false
}

// Session is one spoken-language recording session. It is created on the
// first listening start and owns all utterances recorded during it.
type Session struct {
	// ID is the storage-assigned session identifier.
	ID string

	// Title is a human-readable label; defaults to the language pair when the
	// user does not name the session.
	Title string

	// SourceLanguage is the BCP-47 tag of the spoken language (e.g., "en-US").
	SourceLanguage string

	// TargetLanguages are the languages each utterance is translated into.
	// The special value "none" records the original text only.
	TargetLanguages []string

	// Status is the current lifecycle state.
	Status SessionStatus

	// UtteranceCount is the number of utterances recorded so far. Persisted
	// on every pause so a resumed session continues the count.
	UtteranceCount int

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	// EndedAt is when the session was finalized. Zero until completion.
	EndedAt time.Time

	// DurationSeconds is the total session length, set at finalization.
	DurationSeconds int
}

// Utterance is one finalized, timestamped unit of recognized speech text.
// It is mutated only by edit, merge, and reorganize operations.
type Utterance struct {
	// ID is the storage-assigned identifier. Empty until the write has been
	// confirmed persisted; until then LocalID is the only identity.
	ID string

	// LocalID is the client-generated identifier, stable across retries.
	// The storage backend treats (SessionID, LocalID) as an idempotency key.
	LocalID string

	// SessionID is the owning session.
	SessionID string

	// SpeakerID identifies the speaker when diarization is active. May be empty.
	SpeakerID string

	// OriginalText is the recognized speech text.
	OriginalText string

	// SourceLanguage is the language the text was spoken in.
	SourceLanguage string

	// Start and End are recognition-engine supplied offsets relative to
	// session start. Zero when the engine does not report timing.
	Start time.Duration
	End   time.Duration

	// CreatedAt orders the utterance within the session transcript.
	CreatedAt time.Time

	// Translations holds the current translation per target language.
	Translations []Translation
}

// Translation is the rendering of an utterance into one target language.
// At most one current Translation exists per (UtteranceID, TargetLanguage);
// a new translation for the same pair replaces the old one.
type Translation struct {
	// ID is the storage-assigned identifier.
	ID string

	// UtteranceID is the owning utterance.
	UtteranceID string

	// TargetLanguage is the language TranslatedText is written in.
	TargetLanguage string

	// TranslatedText is the translated content. Empty when translation failed
	// or was skipped; the utterance is still recorded.
	TranslatedText string

	// Provider tags which translation backend produced the text.
	Provider string
}

// TranslationFor returns the translation for the given target language and
// whether one exists.
func (u *Utterance) TranslationFor(targetLang string) (Translation, bool) {
	for _, t := range u.Translations {
		if t.TargetLanguage == targetLang {
			return t, true
		}
	}
	return Translation{}, false
}
