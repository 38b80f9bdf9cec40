// Package config provides the configuration schema and loader for the
// Polyvox transcription service.
package config

import "time"

// LogLevel controls log verbosity for the Polyvox server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Polyvox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Storage     StorageConfig     `yaml:"storage"`
	Session     SessionConfig     `yaml:"session"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the metrics/health endpoint listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage.
type ProvidersConfig struct {
	// Translate backs the per-utterance translation calls.
	Translate ProviderEntry `yaml:"translate"`

	// Reorganize backs the AI grouping of the recorded history.
	Reorganize ProviderEntry `yaml:"reorganize"`

	// Generate backs the document and summary stages of finalize.
	Generate ProviderEntry `yaml:"generate"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`
}

// RecognitionConfig describes the speech-recognition gateway.
type RecognitionConfig struct {
	// Endpoint is the gateway WebSocket URL (ws:// or wss://).
	Endpoint string `yaml:"endpoint"`

	// Token is the bearer token sent when dialing. May be empty.
	Token string `yaml:"token"`
}

// StorageConfig holds durable storage settings.
type StorageConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the main store.
	// When empty, an in-memory store is used (data does not survive
	// restarts).
	PostgresDSN string `yaml:"postgres_dsn"`

	// OutboxPath is the SQLite file backing the outbox journal. When empty,
	// the journal is kept in memory only.
	OutboxPath string `yaml:"outbox_path"`

	// Namespace scopes the outbox journal to one user.
	Namespace string `yaml:"namespace"`
}

// SessionConfig holds defaults for new sessions.
type SessionConfig struct {
	// Title names new sessions.
	Title string `yaml:"title"`

	// SourceLanguage is the recognition language (e.g., "en").
	SourceLanguage string `yaml:"source_language"`

	// TargetLanguages lists the translation targets for new utterances. An
	// entry of "none" disables translation for that slot.
	TargetLanguages []string `yaml:"target_languages"`

	// SilenceThresholdMs overrides the accumulator's silence window in
	// milliseconds. Zero keeps the built-in default.
	SilenceThresholdMs int `yaml:"silence_threshold_ms"`

	// DrainIntervalS overrides the outbox background drain period in
	// seconds. Zero keeps the built-in default.
	DrainIntervalS int `yaml:"drain_interval_s"`
}

// SilenceThreshold returns the configured silence window as a duration, or
// zero when unset.
func (s SessionConfig) SilenceThreshold() time.Duration {
	return time.Duration(s.SilenceThresholdMs) * time.Millisecond
}

// DrainInterval returns the configured drain period as a duration, or zero
// when unset.
func (s SessionConfig) DrainInterval() time.Duration {
	return time.Duration(s.DrainIntervalS) * time.Second
}
