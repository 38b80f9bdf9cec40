// Package session drives a live transcription session: it consumes the
// recognition stream, segments fragments into utterances, translates them per
// the session's language policy, and records them through the outbox. It also
// owns the restructuring operations over the recorded history.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polyvox/polyvox/internal/accumulate"
	"github.com/polyvox/polyvox/internal/fault"
	"github.com/polyvox/polyvox/internal/observe"
	"github.com/polyvox/polyvox/internal/outbox"
	"github.com/polyvox/polyvox/internal/resilience"
	"github.com/polyvox/polyvox/internal/translate"
	"github.com/polyvox/polyvox/pkg/provider/generate"
	"github.com/polyvox/polyvox/pkg/provider/reorg"
	"github.com/polyvox/polyvox/pkg/recognize"
	"github.com/polyvox/polyvox/pkg/store"
	"github.com/polyvox/polyvox/pkg/types"
)

// State is the controller's lifecycle state.
type State int

const (
	// StateIdle means no session exists yet.
	StateIdle State = iota

	// StateActive means the session is listening and recording.
	StateActive

	// StatePaused means the session exists but is not listening. It can be
	// resumed or finalized.
	StatePaused

	// StateCompleted is terminal: the session has been finalized.
	StateCompleted
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	// defaultMaxReconnects bounds automatic recognition-stream restarts
	// before the controller gives up and pauses.
	defaultMaxReconnects = 5

	// reconnectBackoffBase seeds the exponential restart backoff.
	reconnectBackoffBase = time.Second

	// reconnectBackoffMax caps the restart backoff.
	reconnectBackoffMax = 30 * time.Second
)

// Config configures a [Controller].
type Config struct {
	// Store is the durable storage backend. Required.
	Store store.Store

	// Dispatcher translates flushed utterances. Required.
	Dispatcher *translate.Dispatcher

	// Outbox persists flushed utterances. Required.
	Outbox *outbox.Outbox

	// Recognizer opens recognition streams. Required.
	Recognizer recognize.Recognizer

	// Reorg groups utterances during finalize and ReorganizeAll. Optional;
	// when nil those stages are skipped.
	Reorg reorg.Provider

	// Generator produces the document and summary during finalize.
	// Optional; when nil those stages are skipped.
	Generator generate.Provider

	// Metrics records session activity. Optional.
	Metrics *observe.Metrics

	// Title names new sessions.
	Title string

	// SourceLanguage is the recognition language.
	SourceLanguage string

	// TargetLanguages is the translation policy for new utterances. An
	// entry of "none" skips translation for that slot.
	TargetLanguages []string

	// SilenceThreshold overrides the accumulator's silence window.
	SilenceThreshold time.Duration

	// Clock overrides the accumulator's clock. Tests use a fake.
	Clock accumulate.Clock

	// ReconnectBackoff overrides the stream-restart backoff.
	ReconnectBackoff resilience.Backoff

	// MaxReconnects overrides how many consecutive stream restarts are
	// attempted before pausing. Defaults to 5.
	MaxReconnects int
}

// Controller is the session state machine. All exported methods are safe for
// concurrent use.
type Controller struct {
	store      store.Store
	dispatcher *translate.Dispatcher
	outbox     *outbox.Outbox
	recognizer recognize.Recognizer
	reorg      reorg.Provider
	generator  generate.Provider
	metrics    *observe.Metrics

	title       string
	sourceLang  string
	targetLangs []string
	silence     time.Duration
	clock       accumulate.Clock

	reconnectBackoff resilience.Backoff
	maxReconnects    int

	mu            sync.Mutex
	state         State
	session       *types.Session
	transcript    []types.Utterance // most-recent-first
	restructuring bool              // a reorganize or merge holds the transcript

	acc          *accumulate.Accumulator
	stream       recognize.Stream
	listenStop   chan struct{} // closed by Stop, ends the restart loop
	streamCancel context.CancelFunc
	streamWG     sync.WaitGroup
}

// NewController creates a Controller in the idle state.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: Store is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("session: Dispatcher is required")
	}
	if cfg.Outbox == nil {
		return nil, errors.New("session: Outbox is required")
	}
	if cfg.Recognizer == nil {
		return nil, errors.New("session: Recognizer is required")
	}

	backoff := cfg.ReconnectBackoff
	if backoff == nil {
		backoff = resilience.Exponential(reconnectBackoffBase, reconnectBackoffMax)
	}
	maxReconnects := cfg.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = defaultMaxReconnects
	}
	clock := cfg.Clock
	if clock == nil {
		clock = accumulate.RealClock()
	}

	return &Controller{
		store:            cfg.Store,
		dispatcher:       cfg.Dispatcher,
		outbox:           cfg.Outbox,
		recognizer:       cfg.Recognizer,
		reorg:            cfg.Reorg,
		generator:        cfg.Generator,
		metrics:          cfg.Metrics,
		title:            cfg.Title,
		sourceLang:       cfg.SourceLanguage,
		targetLangs:      cfg.TargetLanguages,
		silence:          cfg.SilenceThreshold,
		clock:            clock,
		reconnectBackoff: backoff,
		maxReconnects:    maxReconnects,
		state:            StateIdle,
	}, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the current session record, or nil when idle.
func (c *Controller) Session() *types.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Transcript returns a copy of the visible utterance list, most recent
// first.
func (c *Controller) Transcript() []types.Utterance {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Utterance, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Preview returns the accumulator's live interim text.
func (c *Controller) Preview() string {
	c.mu.Lock()
	acc := c.acc
	c.mu.Unlock()
	if acc == nil {
		return ""
	}
	return acc.Preview()
}

// Start begins listening. From idle it creates a new session; from paused it
// resumes the existing one, appending to the same history.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateActive:
		c.mu.Unlock()
		return errors.New("session: already active")
	case StateCompleted:
		c.mu.Unlock()
		return errors.New("session: already completed")
	}
	if c.restructuring {
		c.mu.Unlock()
		return errors.New("session: cannot start while reorganizing")
	}

	resuming := c.session != nil
	if !resuming {
		now := time.Now()
		c.session = &types.Session{
			ID:              uuid.NewString(),
			Title:           c.title,
			SourceLanguage:  c.sourceLang,
			TargetLanguages: append([]string(nil), c.targetLangs...),
			Status:          types.SessionActive,
			CreatedAt:       now,
		}
		c.transcript = nil
	}
	c.session.Status = types.SessionActive
	sess := *c.session
	c.mu.Unlock()

	if resuming {
		if err := c.store.UpdateSession(ctx, &sess); err != nil {
			return fmt.Errorf("session: resume: %w", err)
		}
	} else {
		if err := c.store.CreateSession(ctx, &sess); err != nil {
			c.mu.Lock()
			c.session = nil
			c.mu.Unlock()
			return fmt.Errorf("session: create: %w", err)
		}
	}

	stream, err := c.recognizer.Open(ctx, c.sourceLang)
	if err != nil {
		return fmt.Errorf("session: open recognition stream: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	stop := make(chan struct{})

	c.mu.Lock()
	c.state = StateActive
	c.acc = accumulate.New(accumulate.Config{
		Sink:             c.persistFlush,
		SilenceThreshold: c.silence,
		Clock:            c.clock,
	})
	acc := c.acc
	c.stream = stream
	c.listenStop = stop
	c.streamCancel = cancel
	c.streamWG.Add(1)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(ctx, 1)
	}
	slog.Info("session listening started",
		"session_id", sess.ID, "resumed", resuming, "language", c.sourceLang)

	go c.consume(streamCtx, stream, acc, stop)
	return nil
}

// Stop pauses listening: the stream is closed, any pending buffer is flushed
// as a final utterance, and the session record is updated. The session stays
// resumable.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return errors.New("session: not active")
	}
	c.state = StatePaused
	acc := c.acc
	stream := c.stream
	stop := c.listenStop
	cancel := c.streamCancel
	c.stream = nil
	c.listenStop = nil
	c.streamCancel = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if stream != nil {
		stream.Close()
	}
	// Buffered events already received from the stream are still processed;
	// the wait below covers them. In-flight translate and persist calls
	// settle normally.
	c.streamWG.Wait()
	if cancel != nil {
		cancel()
	}

	// Final synchronous flush of whatever is still buffered.
	if acc != nil {
		if err := acc.Stop(ctx); err != nil {
			slog.Warn("final flush failed", "error", err)
		}
	}

	c.mu.Lock()
	c.session.Status = types.SessionPaused
	sess := *c.session
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(ctx, -1)
	}
	if err := c.store.UpdateSession(ctx, &sess); err != nil {
		return fmt.Errorf("session: pause: %w", err)
	}
	slog.Info("session paused",
		"session_id", sess.ID, "utterances", sess.UtteranceCount)
	return nil
}

// FinalizeResult reports the outcome of the finalize pipeline. Stage errors
// are informational: a failed stage never prevents the ones after it.
type FinalizeResult struct {
	// Document is the generated document text, empty when the stage was
	// skipped or failed.
	Document string

	// Summary is the generated summary text, empty when the stage was
	// skipped or failed.
	Summary string

	// ReorganizeErr, DocumentErr, and SummaryErr carry per-stage failures.
	ReorganizeErr error
	DocumentErr   error
	SummaryErr    error
}

// Finalize completes the session. Listening stops if active, the session is
// marked completed, and — unless the session recorded nothing — the
// post-processing pipeline runs: reorganize, then document, then summary,
// each best-effort.
func (c *Controller) Finalize(ctx context.Context) (*FinalizeResult, error) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil, errors.New("session: nothing to finalize")
	}
	if c.state == StateCompleted {
		c.mu.Unlock()
		return nil, errors.New("session: already completed")
	}
	active := c.state == StateActive
	c.mu.Unlock()

	if active {
		if err := c.Stop(ctx); err != nil {
			return nil, fmt.Errorf("session: finalize: %w", err)
		}
	}

	start := time.Now()

	c.mu.Lock()
	now := time.Now()
	c.state = StateCompleted
	c.session.Status = types.SessionCompleted
	c.session.EndedAt = now
	c.session.DurationSeconds = int(now.Sub(c.session.CreatedAt).Seconds())
	sess := *c.session
	count := sess.UtteranceCount
	c.mu.Unlock()

	if err := c.store.UpdateSession(ctx, &sess); err != nil {
		return nil, fmt.Errorf("session: complete: %w", err)
	}
	slog.Info("session completed",
		"session_id", sess.ID, "utterances", count, "duration_s", sess.DurationSeconds)

	res := &FinalizeResult{}
	if count == 0 {
		return res, nil
	}

	// Each stage is independent: a failure is recorded and the next stage
	// still runs.
	if c.reorg != nil {
		if err := c.runReorganize(ctx); err != nil {
			res.ReorganizeErr = err
			slog.Warn("finalize reorganize failed", "session_id", sess.ID, "error", err)
		}
	}
	if c.generator != nil {
		transcript := c.transcriptText()
		if doc, err := c.generator.GenerateDocument(ctx, transcript); err != nil {
			res.DocumentErr = err
			slog.Warn("finalize document failed", "session_id", sess.ID, "error", err)
		} else {
			res.Document = doc
		}
		if sum, err := c.generator.GenerateSummary(ctx, transcript); err != nil {
			res.SummaryErr = err
			slog.Warn("finalize summary failed", "session_id", sess.ID, "error", err)
		} else {
			res.Summary = sum
		}
	}

	if c.metrics != nil {
		c.metrics.FinalizeDuration.Record(ctx, time.Since(start).Seconds())
	}
	return res, nil
}

// persistFlush is the accumulator sink: it turns one flush into a translated,
// persisted utterance and appends it to the visible transcript. Flushes are
// serialized by the accumulator, so utterances enter the list in flush order
// regardless of how long translation takes.
func (c *Controller) persistFlush(ctx context.Context, f accumulate.Flush) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return errors.New("session: flush without session")
	}
	sessID := c.session.ID
	targets := append([]string(nil), c.session.TargetLanguages...)
	c.mu.Unlock()

	u := types.Utterance{
		LocalID:        uuid.NewString(),
		SessionID:      sessID,
		OriginalText:   f.Text,
		SourceLanguage: c.sourceLang,
		CreatedAt:      f.StartedAt,
	}

	results := c.dispatcher.TranslateAll(ctx, f.Text, c.sourceLang, targets)
	for _, r := range results {
		if r.Err != nil {
			// The utterance is still recorded, with an empty translation.
			slog.Warn("translation failed",
				"session_id", sessID, "target", r.TargetLanguage, "error", r.Err)
			if c.metrics != nil {
				c.metrics.RecordProviderError(ctx, c.dispatcher.ProviderName(), "translate")
			}
		}
		u.Translations = append(u.Translations, types.Translation{
			UtteranceID:    u.LocalID,
			TargetLanguage: r.TargetLanguage,
			TranslatedText: r.Text,
			Provider:       r.Provider,
		})
	}

	if err := c.outbox.AttemptWrite(ctx, &u); err != nil {
		return fmt.Errorf("session: persist flush: %w", err)
	}

	c.mu.Lock()
	c.transcript = append([]types.Utterance{u}, c.transcript...)
	c.session.UtteranceCount++
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.UtterancesFlushed.Add(ctx, 1)
	}
	return nil
}

// consume drains one recognition stream and feeds the accumulator. When the
// stream dies with an error, the controller restarts it with backoff —
// except on permission errors, which pause the session and wait for the
// user.
func (c *Controller) consume(ctx context.Context, stream recognize.Stream, acc *accumulate.Accumulator, stop chan struct{}) {
	defer c.streamWG.Done()

	for {
		// Events already received are processed even when a Stop is in
		// flight; Stop waits for this loop before flushing.
		for ev := range stream.Events() {
			if err := acc.OnFragment(ctx, ev.Text, ev.IsFinal); err != nil {
				slog.Warn("fragment handling failed", "error", err)
			}
		}

		err := stream.Err()
		if err == nil {
			return
		}
		select {
		case <-stop:
			return
		default:
		}

		next, ok := c.restartStream(ctx, stop, err)
		if !ok {
			c.pauseAfterStreamLoss(ctx, err)
			return
		}
		stream = next
	}
}

// restartStream tries to reopen the recognition stream, backing off between
// attempts. Returns false when the error is fatal to listening or the
// attempts are exhausted.
func (c *Controller) restartStream(ctx context.Context, stop chan struct{}, cause error) (recognize.Stream, bool) {
	if errors.Is(cause, fault.ErrPermission) {
		slog.Error("recognition permission denied, listening halted", "error", cause)
		return nil, false
	}
	slog.Warn("recognition stream lost, restarting", "error", cause)

	for attempt := 1; attempt <= c.maxReconnects; attempt++ {
		select {
		case <-ctx.Done():
			return nil, false
		case <-stop:
			return nil, false
		case <-time.After(c.reconnectBackoff(attempt)):
		}

		stream, err := c.recognizer.Open(ctx, c.sourceLang)
		if err == nil {
			c.mu.Lock()
			if c.state != StateActive {
				c.mu.Unlock()
				stream.Close()
				return nil, false
			}
			c.stream = stream
			c.mu.Unlock()
			slog.Info("recognition stream restored", "attempt", attempt)
			return stream, true
		}
		if errors.Is(err, fault.ErrPermission) {
			slog.Error("recognition permission denied, listening halted", "error", err)
			return nil, false
		}
		slog.Warn("recognition restart failed", "attempt", attempt, "error", err)
	}
	return nil, false
}

// pauseAfterStreamLoss transitions to paused from inside the consume
// goroutine when the stream cannot be recovered. The session stays valid and
// resumable.
func (c *Controller) pauseAfterStreamLoss(ctx context.Context, cause error) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.state = StatePaused
	acc := c.acc
	c.stream = nil
	c.listenStop = nil
	c.session.Status = types.SessionPaused
	sess := *c.session
	c.mu.Unlock()

	if acc != nil {
		if err := acc.Stop(ctx); err != nil {
			slog.Warn("final flush failed", "error", err)
		}
	}
	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(ctx, -1)
	}
	if err := c.store.UpdateSession(ctx, &sess); err != nil {
		slog.Warn("pause after stream loss: update failed", "error", err)
	}
	slog.Warn("session paused after unrecoverable stream loss",
		"session_id", sess.ID, "error", cause)
}

// transcriptText renders the visible list oldest-first as plain text, one
// utterance per line.
func (c *Controller) transcriptText() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := make([]string, 0, len(c.transcript))
	for i := len(c.transcript) - 1; i >= 0; i-- {
		lines = append(lines, c.transcript[i].OriginalText)
	}
	return strings.Join(lines, "\n")
}

// sortTranscriptLocked re-sorts the visible list most-recent-first. Callers
// hold c.mu.
func (c *Controller) sortTranscriptLocked() {
	sort.SliceStable(c.transcript, func(i, j int) bool {
		return c.transcript[i].CreatedAt.After(c.transcript[j].CreatedAt)
	})
}
