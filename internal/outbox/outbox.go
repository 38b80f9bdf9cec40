// Package outbox writes utterances durably and queues them locally when the
// write cannot be confirmed — because the process is offline or because all
// retries were exhausted.
//
// The queue lives in memory, mirrored item-by-item into a [Journal] so it
// survives process restarts, and is scoped to a per-user namespace so it
// carries across sessions. Draining is serialized by a processing flag:
// two drains can never run concurrently, so a queued item can never be
// submitted twice in parallel. Combined with the storage backend's
// (session_id, local_id) idempotency, writes are effectively exactly-once.
package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/polyvox/polyvox/internal/observe"
	"github.com/polyvox/polyvox/internal/resilience"
	"github.com/polyvox/polyvox/pkg/store"
	"github.com/polyvox/polyvox/pkg/types"
)

const (
	// writeAttempts is how many times an online write is tried before the
	// item is enqueued.
	writeAttempts = 3

	// writeBackoffBase is the base of the linear retry backoff: the nth
	// failure waits n*base before the next attempt.
	writeBackoffBase = 1000 * time.Millisecond

	// defaultDrainInterval is how often the background loop retries a
	// non-empty queue.
	defaultDrainInterval = 30 * time.Second
)

// Item is one utterance whose persistence has not yet been confirmed.
// It exists only while queued; confirmation removes it.
type Item struct {
	// Utterance is the full record to persist, including translations.
	// Its LocalID is the stable identity across retries.
	Utterance types.Utterance

	// EnqueuedAt is when the item entered the queue.
	EnqueuedAt time.Time

	// AttemptCount counts drain attempts made for this item.
	AttemptCount int
}

// Outbox persists utterances through a [store.Store], falling back to a
// durable local queue. All methods are safe for concurrent use.
type Outbox struct {
	store     store.Store
	journal   Journal
	namespace string
	interval  time.Duration
	backoff   resilience.Backoff
	metrics   *observe.Metrics

	mu       sync.Mutex
	online   bool
	queue    []Item
	draining bool

	done     chan struct{}
	stopOnce sync.Once
}

// Config configures an [Outbox].
type Config struct {
	// Store is the durable backend writes go to. Required.
	Store store.Store

	// Journal persists queued items across restarts. Required.
	Journal Journal

	// Namespace scopes the journal to one user. Required.
	Namespace string

	// DrainInterval overrides the background drain period. Defaults to 30s.
	DrainInterval time.Duration

	// WriteBackoff overrides the retry backoff for direct writes. Defaults
	// to linear backoff from [writeBackoffBase].
	WriteBackoff resilience.Backoff

	// Metrics records outbox activity. May be nil.
	Metrics *observe.Metrics
}

// New creates an [Outbox] and restores any journaled items from previous
// runs into the in-memory queue. The outbox starts in the online state.
func New(ctx context.Context, cfg Config) (*Outbox, error) {
	restored, err := cfg.Journal.Load(ctx, cfg.Namespace)
	if err != nil {
		return nil, err
	}

	interval := cfg.DrainInterval
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	backoff := cfg.WriteBackoff
	if backoff == nil {
		backoff = resilience.Linear(writeBackoffBase)
	}

	o := &Outbox{
		store:     cfg.Store,
		journal:   cfg.Journal,
		namespace: cfg.Namespace,
		interval:  interval,
		backoff:   backoff,
		metrics:   cfg.Metrics,
		online:    true,
		queue:     restored,
		done:      make(chan struct{}),
	}

	if len(restored) > 0 {
		slog.Info("outbox restored pending items from journal",
			"namespace", cfg.Namespace, "items", len(restored))
	}
	o.recordDepth()
	return o, nil
}

// Start begins the periodic background drain. The loop runs until
// [Outbox.Stop] is called or ctx is cancelled.
func (o *Outbox) Start(ctx context.Context) {
	go o.loop(ctx)
}

// Stop halts the background drain loop. Safe to call multiple times.
func (o *Outbox) Stop() {
	o.stopOnce.Do(func() {
		close(o.done)
	})
}

// SetOnline updates connectivity state. Transitioning to online triggers an
// immediate drain of any queued items.
func (o *Outbox) SetOnline(ctx context.Context, online bool) {
	o.mu.Lock()
	wasOnline := o.online
	o.online = online
	o.mu.Unlock()

	if online && !wasOnline {
		slog.Info("connectivity restored, draining outbox", "namespace", o.namespace)
		o.Drain(ctx)
	}
}

// Online reports the current connectivity state.
func (o *Outbox) Online() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

// Depth returns the number of queued items. A depth that stays non-zero
// across repeated drains is the signal to surface a banner-level notice.
func (o *Outbox) Depth() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// AttemptWrite persists u. Offline, it enqueues immediately without touching
// the network. Online, it retries up to three times with linear backoff and
// enqueues on exhaustion. Either way the utterance is never lost: on return
// it is either confirmed persisted (with u.ID assigned) or journaled.
func (o *Outbox) AttemptWrite(ctx context.Context, u *types.Utterance) error {
	if !o.Online() {
		return o.enqueue(ctx, u)
	}

	err := resilience.Retry(ctx, "outbox write", writeAttempts, o.backoff,
		func(ctx context.Context) error {
			_, err := o.store.InsertUtterance(ctx, u)
			return err
		})
	if err != nil {
		observe.Logger(ctx).Warn("write failed after retries, enqueueing",
			"local_id", u.LocalID, "session_id", u.SessionID, "error", err)
		return o.enqueue(ctx, u)
	}

	if o.metrics != nil {
		o.metrics.UtterancesPersisted.Add(ctx, 1)
	}
	return nil
}

// Drain processes the queue sequentially, oldest first, attempting the real
// write once per item. Confirmed items are removed; a failed item keeps its
// position for the next cycle. At most one drain runs at a time — a
// concurrent call returns immediately.
func (o *Outbox) Drain(ctx context.Context) {
	o.mu.Lock()
	if o.draining || len(o.queue) == 0 {
		o.mu.Unlock()
		return
	}
	o.draining = true
	pending := make([]Item, len(o.queue))
	copy(pending, o.queue)
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.draining = false
		o.mu.Unlock()
	}()

	for i := range pending {
		item := &pending[i]
		u := item.Utterance

		if _, err := o.store.InsertUtterance(ctx, &u); err != nil {
			// Silent retry: the item keeps its queue position.
			item.AttemptCount++
			observe.Logger(ctx).Debug("outbox drain write failed",
				"local_id", u.LocalID, "attempts", item.AttemptCount, "error", err)
			o.updateAttempts(ctx, *item)
			continue
		}

		o.removeItem(ctx, u.LocalID)
		if o.metrics != nil {
			o.metrics.OutboxDrained.Add(ctx, 1)
			o.metrics.UtterancesPersisted.Add(ctx, 1)
		}
	}

	o.mu.Lock()
	empty := len(o.queue) == 0
	o.mu.Unlock()
	if empty {
		if err := o.journal.Clear(ctx, o.namespace); err != nil {
			slog.Warn("outbox journal clear failed", "namespace", o.namespace, "error", err)
		}
	}
	o.recordDepth()
}

// enqueue appends u to the queue and journals it durably.
func (o *Outbox) enqueue(ctx context.Context, u *types.Utterance) error {
	item := Item{
		Utterance:  *u,
		EnqueuedAt: time.Now(),
	}

	o.mu.Lock()
	o.queue = append(o.queue, item)
	o.mu.Unlock()

	if err := o.journal.Append(ctx, o.namespace, item); err != nil {
		// The item is still held in memory; only restart durability is lost.
		slog.Error("outbox journal append failed",
			"local_id", u.LocalID, "error", err)
	}

	if o.metrics != nil {
		o.metrics.OutboxEnqueued.Add(ctx, 1)
	}
	o.recordDepth()
	observe.Logger(ctx).Info("utterance enqueued for later persistence",
		"local_id", u.LocalID, "session_id", u.SessionID, "depth", o.Depth())
	return nil
}

// Discard drops any queued items whose LocalID is in localIDs, from both the
// queue and the journal. Callers use it when an utterance is superseded
// before its write ever succeeded, so a later drain does not resurrect it.
func (o *Outbox) Discard(ctx context.Context, localIDs []string) {
	if len(localIDs) == 0 {
		return
	}
	drop := make(map[string]bool, len(localIDs))
	for _, id := range localIDs {
		drop[id] = true
	}

	o.mu.Lock()
	kept := o.queue[:0]
	var dropped []string
	for _, it := range o.queue {
		if drop[it.Utterance.LocalID] {
			dropped = append(dropped, it.Utterance.LocalID)
			continue
		}
		kept = append(kept, it)
	}
	o.queue = kept
	o.mu.Unlock()

	for _, id := range dropped {
		if err := o.journal.Remove(ctx, o.namespace, id); err != nil {
			slog.Warn("outbox journal remove failed", "local_id", id, "error", err)
		}
	}
	if len(dropped) > 0 {
		o.recordDepth()
		observe.Logger(ctx).Debug("superseded utterances discarded from outbox",
			"count", len(dropped), "depth", o.Depth())
	}
}

// removeItem deletes the item with localID from the queue and the journal.
func (o *Outbox) removeItem(ctx context.Context, localID string) {
	o.mu.Lock()
	kept := o.queue[:0]
	for _, it := range o.queue {
		if it.Utterance.LocalID != localID {
			kept = append(kept, it)
		}
	}
	o.queue = kept
	o.mu.Unlock()

	if err := o.journal.Remove(ctx, o.namespace, localID); err != nil {
		slog.Warn("outbox journal remove failed", "local_id", localID, "error", err)
	}
	o.recordDepth()
}

// updateAttempts persists the new attempt count for a still-queued item.
func (o *Outbox) updateAttempts(ctx context.Context, item Item) {
	o.mu.Lock()
	for i := range o.queue {
		if o.queue[i].Utterance.LocalID == item.Utterance.LocalID {
			o.queue[i].AttemptCount = item.AttemptCount
			break
		}
	}
	o.mu.Unlock()

	if err := o.journal.Append(ctx, o.namespace, item); err != nil {
		slog.Warn("outbox journal update failed",
			"local_id", item.Utterance.LocalID, "error", err)
	}
}

// loop periodically drains the queue while items remain.
func (o *Outbox) loop(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.done:
			return
		case <-ticker.C:
			if o.Online() && o.Depth() > 0 {
				o.Drain(ctx)
			}
		}
	}
}

func (o *Outbox) recordDepth() {
	if o.metrics != nil {
		o.metrics.SetOutboxDepth(int64(o.Depth()))
	}
}
