// Package translate applies the session language policy and dispatches
// utterance text to the translation provider.
//
// Policy, evaluated in order: the "none" target records the original only
// (empty translation, no network call); a target equal to the source returns
// the text unchanged; everything else calls the provider. Provider failures
// surface as service errors — the caller records the utterance with an empty
// translation rather than dropping it.
package translate

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/polyvox/polyvox/internal/fault"
	"github.com/polyvox/polyvox/internal/resilience"
	"github.com/polyvox/polyvox/pkg/provider/translate"
)

// TargetNone is the target-language value meaning "record original only".
const TargetNone = "none"

// maxConcurrentTargets bounds the per-utterance translation fan-out.
const maxConcurrentTargets = 4

// Result is the outcome of translating one utterance into one target language.
type Result struct {
	// TargetLanguage is the language this result is for.
	TargetLanguage string

	// Text is the translated text. Empty when the target was "none" or the
	// provider call failed.
	Text string

	// Provider tags the backend that produced Text. Empty when no call was made.
	Provider string

	// Err is the service error for this target, if the provider call failed.
	Err error
}

// Dispatcher routes translation requests through the language policy and a
// circuit breaker guarding the provider.
type Dispatcher struct {
	provider translate.Provider
	breaker  *resilience.CircuitBreaker
}

// NewDispatcher creates a [Dispatcher] for the given provider.
func NewDispatcher(provider translate.Provider) *Dispatcher {
	return &Dispatcher{
		provider: provider,
		breaker: resilience.NewCircuitBreaker(resilience.BreakerConfig{
			Name: "translate",
		}),
	}
}

// Translate renders text into targetLang per the session language policy.
// Provider failures are returned as [fault.Service] errors; the text for a
// failed target is empty.
func (d *Dispatcher) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if targetLang == TargetNone {
		return "", nil
	}
	if sourceLang == targetLang {
		return text, nil
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	var out string
	err := d.breaker.Execute(func() error {
		var callErr error
		out, callErr = d.provider.Translate(ctx, text, sourceLang, targetLang)
		return callErr
	})
	if err != nil {
		return "", &fault.Service{Provider: d.provider.Name(), Err: err}
	}
	return out, nil
}

// TranslateAll translates text into every target language concurrently.
// Results are returned in the order of targets. A failed target carries its
// error in [Result.Err]; the call itself never fails, so the utterance is
// always recordable.
func (d *Dispatcher) TranslateAll(ctx context.Context, text, sourceLang string, targets []string) []Result {
	results := make([]Result, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTargets)

	for i, target := range targets {
		g.Go(func() error {
			translated, err := d.Translate(gctx, text, sourceLang, target)
			results[i] = Result{
				TargetLanguage: target,
				Text:           translated,
				Err:            err,
			}
			if err == nil && target != TargetNone && sourceLang != target {
				results[i].Provider = d.provider.Name()
			}
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors; failures live in results

	return results
}

// ProviderName returns the underlying provider's tag.
func (d *Dispatcher) ProviderName() string { return d.provider.Name() }
