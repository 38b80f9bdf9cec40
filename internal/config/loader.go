package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"translate":  {"openai"},
	"reorganize": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"generate":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("translate", cfg.Providers.Translate.Name)
	validateProviderName("reorganize", cfg.Providers.Reorganize.Name)
	validateProviderName("generate", cfg.Providers.Generate.Name)

	// Recognition
	if cfg.Recognition.Endpoint == "" {
		errs = append(errs, errors.New("recognition.endpoint is required"))
	} else if !strings.HasPrefix(cfg.Recognition.Endpoint, "ws://") && !strings.HasPrefix(cfg.Recognition.Endpoint, "wss://") {
		errs = append(errs, fmt.Errorf("recognition.endpoint %q must use a ws:// or wss:// scheme", cfg.Recognition.Endpoint))
	}

	// Storage availability warnings
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; sessions will be stored in memory and lost on restart")
	}
	if cfg.Storage.OutboxPath == "" {
		slog.Warn("storage.outbox_path is empty; pending utterances will not survive a restart")
	}

	// Session
	if cfg.Session.SourceLanguage == "" {
		errs = append(errs, errors.New("session.source_language is required"))
	}
	targetsSeen := make(map[string]int, len(cfg.Session.TargetLanguages))
	for i, lang := range cfg.Session.TargetLanguages {
		prefix := fmt.Sprintf("session.target_languages[%d]", i)
		if lang == "" {
			errs = append(errs, fmt.Errorf("%s is empty", prefix))
			continue
		}
		if prev, ok := targetsSeen[lang]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of session.target_languages[%d]", prefix, lang, prev))
		}
		targetsSeen[lang] = i
	}
	if cfg.Session.SilenceThresholdMs < 0 {
		errs = append(errs, fmt.Errorf("session.silence_threshold_ms %d must not be negative", cfg.Session.SilenceThresholdMs))
	}
	if cfg.Session.DrainIntervalS < 0 {
		errs = append(errs, fmt.Errorf("session.drain_interval_s %d must not be negative", cfg.Session.DrainIntervalS))
	}

	// Translation availability
	if len(cfg.Session.TargetLanguages) > 0 && cfg.Providers.Translate.Name == "" {
		errs = append(errs, errors.New("session.target_languages is set but providers.translate is not configured"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
