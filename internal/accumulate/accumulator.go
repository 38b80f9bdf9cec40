// Package accumulate turns a stream of partial/final speech-recognition
// fragments into discrete ready-to-translate utterances.
//
// Two signals finalize the buffer: a fragment ending in sentence-terminal
// punctuation flushes immediately, and a fixed silence timeout flushes
// whatever has accumulated when speech trails off without punctuation.
// Partial (interim) fragments only feed the live preview and never mutate
// the buffer.
//
// All methods are safe for concurrent use.
package accumulate

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultSilenceThreshold is the gap after the last final fragment that
// triggers a fallback flush.
const DefaultSilenceThreshold = 1500 * time.Millisecond

// sentenceTerminals are the runes that mark an utterance as clearly finished,
// allowing a low-latency flush without waiting for the silence timer.
const sentenceTerminals = ".?!。？！~…"

// Flush is one finalized utterance captured from the buffer.
type Flush struct {
	// Text is the space-joined trimmed fragment text.
	Text string

	// StartedAt is when the first fragment of this buffer arrived.
	StartedAt time.Time
}

// Sink receives finalized utterances. The accumulator awaits each call
// before emitting the next flush, so translate+persist ordering stays
// deterministic per session.
type Sink func(ctx context.Context, f Flush) error

// Accumulator groups recognition fragments into utterances.
type Accumulator struct {
	clock     Clock
	silence   time.Duration
	sink      Sink
	onPreview func(string)

	// emitMu serializes flush emission. Holding it across the downstream
	// call is the flush-in-flight guard: a punctuation flush racing with a
	// timer flush finds the buffer already captured and emits nothing.
	emitMu sync.Mutex

	mu            sync.Mutex
	parts         []string
	bufStart      time.Time
	lastCommitted string
	timer         Timer
	preview       string
}

// Config configures an [Accumulator].
type Config struct {
	// Sink receives finalized utterances. Required.
	Sink Sink

	// SilenceThreshold overrides [DefaultSilenceThreshold] when positive.
	SilenceThreshold time.Duration

	// Clock defaults to the system clock. Tests inject a virtual clock.
	Clock Clock

	// OnPreview, when non-nil, is called with the live preview text after
	// every fragment. The preview includes interim fragments that have not
	// been committed to the buffer.
	OnPreview func(string)
}

// New creates an [Accumulator] with the given configuration.
func New(cfg Config) *Accumulator {
	silence := cfg.SilenceThreshold
	if silence <= 0 {
		silence = DefaultSilenceThreshold
	}
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}
	return &Accumulator{
		clock:     clock,
		silence:   silence,
		sink:      cfg.Sink,
		onPreview: cfg.OnPreview,
	}
}

// OnFragment processes a single recognition event. Interim fragments update
// the live preview only. Final fragments are deduplicated against the
// previously committed text (recognition engines may redeliver the same
// final result), appended to the buffer, and either flushed immediately on
// sentence-terminal punctuation or scheduled for a silence-timeout flush.
func (a *Accumulator) OnFragment(ctx context.Context, text string, isFinal bool) error {
	trimmed := strings.TrimSpace(text)

	if !isFinal {
		a.mu.Lock()
		a.preview = joinNonEmpty(strings.Join(a.parts, " "), trimmed)
		preview := a.preview
		a.mu.Unlock()
		a.notifyPreview(preview)
		return nil
	}

	if trimmed == "" {
		return nil
	}

	a.mu.Lock()
	if trimmed == a.lastCommitted {
		// Duplicate redelivery of the same final result.
		a.mu.Unlock()
		slog.Debug("dropping duplicate final fragment", "text", trimmed)
		return nil
	}

	if len(a.parts) == 0 {
		a.bufStart = a.clock.Now()
	}
	a.parts = append(a.parts, trimmed)
	a.lastCommitted = trimmed
	a.preview = strings.Join(a.parts, " ")
	preview := a.preview

	if endsWithTerminal(trimmed) {
		a.stopTimerLocked()
		a.mu.Unlock()
		a.notifyPreview(preview)
		return a.flush(ctx)
	}

	a.rescheduleLocked(ctx)
	a.mu.Unlock()
	a.notifyPreview(preview)
	return nil
}

// Stop cancels the silence timer and flushes any remaining buffer content
// synchronously so that a clean stop never loses text. Abrupt teardown
// without Stop drops unflushed content; that is the documented tradeoff.
func (a *Accumulator) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.stopTimerLocked()
	a.mu.Unlock()
	return a.flush(ctx)
}

// Preview returns the current live preview text: committed buffer content
// plus the latest interim fragment, if any.
func (a *Accumulator) Preview() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.preview
}

// Pending reports whether the buffer holds unflushed text.
func (a *Accumulator) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.parts) > 0
}

// flush captures the buffer and emits it downstream. Emission is serialized:
// whichever trigger (punctuation, silence timer, stop) wins the capture
// emits exactly once; the loser finds an empty buffer and returns nil.
func (a *Accumulator) flush(ctx context.Context) error {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	text := strings.TrimSpace(strings.Join(a.parts, " "))
	startedAt := a.bufStart
	a.parts = nil
	a.bufStart = time.Time{}
	a.preview = ""
	a.stopTimerLocked()
	a.mu.Unlock()

	if text == "" {
		return nil
	}

	a.notifyPreview("")
	return a.sink(ctx, Flush{Text: text, StartedAt: startedAt})
}

// rescheduleLocked (re)starts the silence timer. Must be called with a.mu held.
func (a *Accumulator) rescheduleLocked(ctx context.Context) {
	a.stopTimerLocked()
	a.timer = a.clock.AfterFunc(a.silence, func() {
		if err := a.flush(ctx); err != nil {
			slog.Warn("silence-timeout flush failed", "error", err)
		}
	})
}

// stopTimerLocked cancels any pending silence timer. Must be called with
// a.mu held.
func (a *Accumulator) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Accumulator) notifyPreview(preview string) {
	if a.onPreview != nil {
		a.onPreview(preview)
	}
}

// endsWithTerminal reports whether s ends with a sentence-terminal rune.
func endsWithTerminal(s string) bool {
	runes := []rune(s)
	if len(runes) == 0 {
		return false
	}
	return strings.ContainsRune(sentenceTerminals, runes[len(runes)-1])
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
