// Command polyvox is the main entry point for the Polyvox live transcription
// and translation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/polyvox/polyvox/internal/app"
	"github.com/polyvox/polyvox/internal/config"
	"github.com/polyvox/polyvox/internal/observe"
	"github.com/polyvox/polyvox/pkg/provider/generate"
	generateanyllm "github.com/polyvox/polyvox/pkg/provider/generate/anyllm"
	"github.com/polyvox/polyvox/pkg/provider/reorg"
	reorganyllm "github.com/polyvox/polyvox/pkg/provider/reorg/anyllm"
	"github.com/polyvox/polyvox/pkg/provider/translate"
	translateoai "github.com/polyvox/polyvox/pkg/provider/translate/openai"
	"github.com/polyvox/polyvox/pkg/recognize"
	recognizews "github.com/polyvox/polyvox/pkg/recognize/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "polyvox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "polyvox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("polyvox starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "polyvox",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config watcher: hot log-level reload ──────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.SessionDefaultsChanged || d.RestartRequired {
			slog.Warn("config changes beyond log level require a restart to take effect")
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// llmProviderNames lists the chat backends shared by the reorganize and
// generate provider slots.
var llmProviderNames = []string{
	"openai", "anthropic", "gemini", "ollama",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives its config block and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Translate ─────────────────────────────────────────────────────────────
	reg.RegisterTranslate("openai", func(entry config.ProviderEntry) (translate.Provider, error) {
		var opts []translateoai.Option
		if entry.BaseURL != "" {
			opts = append(opts, translateoai.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, translateoai.WithModel(entry.Model))
		}
		return translateoai.New(entry.APIKey, opts...)
	})

	// ── Reorganize + Generate ─────────────────────────────────────────────────
	// All chat backends share the same pattern: optional APIKey + optional
	// BaseURL (ollama and llamacpp are local servers and only use BaseURL).
	for _, providerName := range llmProviderNames {
		reg.RegisterReorganize(providerName, func(entry config.ProviderEntry) (reorg.Provider, error) {
			return reorganyllm.New(providerName, entry.Model, anyllmOptions(entry)...)
		})
		reg.RegisterGenerate(providerName, func(entry config.ProviderEntry) (generate.Provider, error) {
			return generateanyllm.New(providerName, entry.Model, anyllmOptions(entry)...)
		})
	}

	// ── Recognize ─────────────────────────────────────────────────────────────
	reg.RegisterRecognize("ws", func(rc config.RecognitionConfig) (recognize.Recognizer, error) {
		var opts []recognizews.Option
		if rc.Token != "" {
			opts = append(opts, recognizews.WithToken(rc.Token))
		}
		return recognizews.New(rc.Endpoint, opts...)
	})

	for _, name := range llmProviderNames {
		slog.Debug("registered provider", "kind", "reorganize/generate", "name", name)
	}
}

// anyllmOptions converts a provider entry into any-llm client options.
func anyllmOptions(entry config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return opts
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Translate.Name; name != "" {
		p, err := reg.CreateTranslate(cfg.Providers.Translate)
		if err != nil {
			return nil, fmt.Errorf("create translate provider %q: %w", name, err)
		}
		ps.Translate = p
		slog.Info("provider created", "kind", "translate", "name", name)
	}

	if name := cfg.Providers.Reorganize.Name; name != "" {
		p, err := reg.CreateReorganize(cfg.Providers.Reorganize)
		if err != nil {
			return nil, fmt.Errorf("create reorganize provider %q: %w", name, err)
		}
		ps.Reorganize = p
		slog.Info("provider created", "kind", "reorganize", "name", name)
	}

	if name := cfg.Providers.Generate.Name; name != "" {
		p, err := reg.CreateGenerate(cfg.Providers.Generate)
		if err != nil {
			return nil, fmt.Errorf("create generate provider %q: %w", name, err)
		}
		ps.Generate = p
		slog.Info("provider created", "kind", "generate", "name", name)
	}

	rec, err := reg.CreateRecognize("ws", cfg.Recognition)
	if err != nil {
		return nil, fmt.Errorf("create recognizer: %w", err)
	}
	ps.Recognizer = rec
	slog.Info("provider created", "kind", "recognize", "name", rec.Name())

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Polyvox — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Translate", cfg.Providers.Translate.Name, cfg.Providers.Translate.Model)
	printProvider("Reorganize", cfg.Providers.Reorganize.Name, cfg.Providers.Reorganize.Model)
	printProvider("Generate", cfg.Providers.Generate.Name, cfg.Providers.Generate.Model)
	fmt.Printf("║  Source language : %-19s ║\n", cfg.Session.SourceLanguage)
	fmt.Printf("║  Targets         : %-19d ║\n", len(cfg.Session.TargetLanguages))
	if cfg.Storage.PostgresDSN != "" {
		fmt.Printf("║  Storage         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Storage         : %-19s ║\n", "memory")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
