// Package app wires the Polyvox subsystems together: storage, outbox,
// translation dispatch, the session controller, and the HTTP endpoint for
// health and metrics.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polyvox/polyvox/internal/config"
	"github.com/polyvox/polyvox/internal/health"
	"github.com/polyvox/polyvox/internal/observe"
	"github.com/polyvox/polyvox/internal/outbox"
	"github.com/polyvox/polyvox/internal/session"
	"github.com/polyvox/polyvox/internal/translate"
	"github.com/polyvox/polyvox/pkg/provider/generate"
	"github.com/polyvox/polyvox/pkg/provider/reorg"
	translatep "github.com/polyvox/polyvox/pkg/provider/translate"
	"github.com/polyvox/polyvox/pkg/recognize"
	"github.com/polyvox/polyvox/pkg/store"
	"github.com/polyvox/polyvox/pkg/store/postgres"
)

// readHeaderTimeout bounds header reads on the HTTP endpoint.
const readHeaderTimeout = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Translate  translatep.Provider
	Reorganize reorg.Provider
	Generate   generate.Provider
	Recognizer recognize.Recognizer
}

// App owns all subsystem lifetimes and orchestrates the Polyvox pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	metrics    *observe.Metrics
	store      store.Store
	journal    outbox.Journal
	outbox     *outbox.Outbox
	dispatcher *translate.Dispatcher
	controller *session.Controller
	httpServer *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a storage backend instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithJournal injects an outbox journal instead of opening one from config.
func WithJournal(j outbox.Journal) Option {
	return func(a *App) { a.journal = j }
}

// WithMetrics injects a metrics recorder instead of the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		return nil, errors.New("app: providers must not be nil")
	}
	if providers.Recognizer == nil {
		return nil, errors.New("app: a recognizer is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Storage ───────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Outbox journal ────────────────────────────────────────────────
	if err := a.initJournal(); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 3. Outbox ────────────────────────────────────────────────────────
	if err := a.initOutbox(ctx); err != nil {
		return nil, fmt.Errorf("app: init outbox: %w", err)
	}

	// ── 4. Translation dispatcher ────────────────────────────────────────
	a.dispatcher = translate.NewDispatcher(providers.Translate)

	// ── 5. Session controller ────────────────────────────────────────────
	if err := a.initController(); err != nil {
		return nil, fmt.Errorf("app: init controller: %w", err)
	}

	// ── 6. HTTP endpoint (health + metrics) ──────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore opens the configured storage backend; an empty DSN selects the
// in-memory store.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if dsn := a.cfg.Storage.PostgresDSN; dsn != "" {
		pg, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.store = pg
		a.closers = append(a.closers, func() error {
			pg.Close()
			return nil
		})
		slog.Info("storage backend ready", "backend", "postgres")
		return nil
	}
	a.store = store.NewMemStore()
	slog.Warn("storage backend is in-memory; sessions are lost on restart")
	return nil
}

// initJournal opens the outbox journal; an empty path selects the in-memory
// journal.
func (a *App) initJournal() error {
	if a.journal != nil {
		return nil
	}
	if path := a.cfg.Storage.OutboxPath; path != "" {
		j, err := outbox.OpenJournal(path)
		if err != nil {
			return err
		}
		a.journal = j
		a.closers = append(a.closers, j.Close)
		slog.Info("outbox journal ready", "path", path)
		return nil
	}
	a.journal = outbox.NewMemJournal()
	slog.Warn("outbox journal is in-memory; queued utterances are lost on restart")
	return nil
}

func (a *App) initOutbox(ctx context.Context) error {
	namespace := a.cfg.Storage.Namespace
	if namespace == "" {
		namespace = "default"
	}
	o, err := outbox.New(ctx, outbox.Config{
		Store:         a.store,
		Journal:       a.journal,
		Namespace:     namespace,
		DrainInterval: a.cfg.Session.DrainInterval(),
		Metrics:       a.metrics,
	})
	if err != nil {
		return err
	}
	a.outbox = o
	a.closers = append(a.closers, func() error {
		o.Stop()
		return nil
	})
	return nil
}

func (a *App) initController() error {
	c, err := session.NewController(session.Config{
		Store:            a.store,
		Dispatcher:       a.dispatcher,
		Outbox:           a.outbox,
		Recognizer:       a.providers.Recognizer,
		Reorg:            a.providers.Reorganize,
		Generator:        a.providers.Generate,
		Metrics:          a.metrics,
		Title:            a.cfg.Session.Title,
		SourceLanguage:   a.cfg.Session.SourceLanguage,
		TargetLanguages:  a.cfg.Session.TargetLanguages,
		SilenceThreshold: a.cfg.Session.SilenceThreshold(),
	})
	if err != nil {
		return err
	}
	a.controller = c
	return nil
}

// initHTTP builds the mux for /metrics, /healthz and /readyz. The server is
// only started by Run when a listen address is configured.
func (a *App) initHTTP() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	h := health.New(
		health.Checker{
			Name: "store",
			Check: func(ctx context.Context) error {
				_, err := a.store.ListSessions(ctx)
				return err
			},
		},
		health.Checker{
			Name: "outbox",
			Check: func(context.Context) error {
				if depth := a.outbox.Depth(); depth > 0 && !a.outbox.Online() {
					return fmt.Errorf("offline with %d queued utterances", depth)
				}
				return nil
			},
		},
	)
	h.Register(mux)

	if a.cfg.Server.ListenAddr == "" {
		return
	}
	a.httpServer = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Controller returns the session controller for interactive callers.
func (a *App) Controller() *session.Controller {
	return a.controller
}

// Outbox returns the resilient persistence queue.
func (a *App) Outbox() *outbox.Outbox {
	return a.outbox
}

// Store returns the storage backend.
func (a *App) Store() store.Store {
	return a.store
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the background subsystems and blocks until ctx is cancelled.
// The outbox drain loop always runs; the HTTP endpoint only when a listen
// address is configured.
func (a *App) Run(ctx context.Context) error {
	a.outbox.Start(ctx)

	errCh := make(chan error, 1)
	if a.httpServer != nil {
		go func() {
			slog.Info("http endpoint listening", "addr", a.httpServer.Addr)
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("app: http server: %w", err)
			}
		}()
	}

	slog.Info("app running",
		"source_language", a.cfg.Session.SourceLanguage,
		"target_languages", a.cfg.Session.TargetLanguages,
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops a listening session if one is active, flushes the remaining
// state, and tears down subsystems. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop the live session first so buffered speech is flushed while
		// the outbox and store are still up.
		if a.controller.State() == session.StateActive {
			if err := a.controller.Stop(ctx); err != nil {
				slog.Warn("session stop error", "err", err)
			}
		}

		if a.httpServer != nil {
			if err := a.httpServer.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		// Run closers in reverse construction order.
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
