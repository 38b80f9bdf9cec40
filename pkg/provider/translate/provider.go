// Package translate defines the Provider interface for machine-translation
// backends.
//
// A translation provider renders one utterance's text from its source
// language into a single target language per call. Language-policy decisions
// (skipping same-language pairs, the "none" target) live in the dispatcher,
// not here — implementations always perform a real translation.
//
// Implementations must be safe for concurrent use.
package translate

import "context"

// Provider translates text between languages.
type Provider interface {
	// Translate renders text from sourceLang into targetLang, both BCP-47
	// tags. It returns the translated text, or an error when the backend
	// call fails. An empty result with a nil error is valid for empty input.
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)

	// Name identifies the backend (e.g., "openai"). Recorded as the
	// provider tag on stored translations.
	Name() string
}
