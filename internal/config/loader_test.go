package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/polyvox/polyvox/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
providers:
  translate:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  reorganize:
    name: ollama
    base_url: http://localhost:11434
    model: llama3
  generate:
    name: openai
    api_key: sk-test
recognition:
  endpoint: wss://gateway.example.com/listen
  token: tok-123
storage:
  postgres_dsn: postgres://localhost/polyvox
  outbox_path: /var/lib/polyvox/outbox.db
  namespace: user-1
session:
  title: Morning standup
  source_language: en
  target_languages: [de, fr]
  silence_threshold_ms: 1500
  drain_interval_s: 45
`

func TestLoadFromReader_ValidConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Providers.Translate.Name != "openai" {
		t.Errorf("Translate.Name = %q, want %q", cfg.Providers.Translate.Name, "openai")
	}
	if cfg.Providers.Reorganize.BaseURL != "http://localhost:11434" {
		t.Errorf("Reorganize.BaseURL = %q", cfg.Providers.Reorganize.BaseURL)
	}
	if cfg.Recognition.Endpoint != "wss://gateway.example.com/listen" {
		t.Errorf("Recognition.Endpoint = %q", cfg.Recognition.Endpoint)
	}
	if cfg.Storage.Namespace != "user-1" {
		t.Errorf("Storage.Namespace = %q, want %q", cfg.Storage.Namespace, "user-1")
	}
	if len(cfg.Session.TargetLanguages) != 2 || cfg.Session.TargetLanguages[0] != "de" {
		t.Errorf("TargetLanguages = %v, want [de fr]", cfg.Session.TargetLanguages)
	}
	if got, want := cfg.Session.SilenceThreshold(), 1500*time.Millisecond; got != want {
		t.Errorf("SilenceThreshold() = %v, want %v", got, want)
	}
	if got, want := cfg.Session.DrainInterval(), 45*time.Second; got != want {
		t.Errorf("DrainInterval() = %v, want %v", got, want)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := `
recognition:
  endpoint: wss://gateway.example.com/listen
session:
  source_language: en
  bogus_field: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
recognition:
  endpoint: wss://gateway.example.com/listen
session:
  source_language: en
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_MissingRecognitionEndpoint(t *testing.T) {
	t.Parallel()
	yaml := `
session:
  source_language: en
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing recognition endpoint, got nil")
	}
	if !strings.Contains(err.Error(), "recognition.endpoint") {
		t.Errorf("error should mention recognition.endpoint, got: %v", err)
	}
}

func TestValidate_RecognitionEndpointScheme(t *testing.T) {
	t.Parallel()
	yaml := `
recognition:
  endpoint: https://gateway.example.com/listen
session:
  source_language: en
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for non-websocket endpoint scheme, got nil")
	}
	if !strings.Contains(err.Error(), "ws://") {
		t.Errorf("error should mention the required scheme, got: %v", err)
	}
}

func TestValidate_MissingSourceLanguage(t *testing.T) {
	t.Parallel()
	yaml := `
recognition:
  endpoint: wss://gateway.example.com/listen
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing source language, got nil")
	}
	if !strings.Contains(err.Error(), "source_language") {
		t.Errorf("error should mention source_language, got: %v", err)
	}
}

func TestValidate_DuplicateTargetLanguages(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  translate:
    name: openai
recognition:
  endpoint: wss://gateway.example.com/listen
session:
  source_language: en
  target_languages: [de, fr, de]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate target languages, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_TargetsRequireTranslateProvider(t *testing.T) {
	t.Parallel()
	yaml := `
recognition:
  endpoint: wss://gateway.example.com/listen
session:
  source_language: en
  target_languages: [de]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for targets without translate provider, got nil")
	}
	if !strings.Contains(err.Error(), "providers.translate") {
		t.Errorf("error should mention providers.translate, got: %v", err)
	}
}

func TestValidate_NegativeDurations(t *testing.T) {
	t.Parallel()
	yaml := `
recognition:
  endpoint: wss://gateway.example.com/listen
session:
  source_language: en
  silence_threshold_ms: -10
  drain_interval_s: -5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative durations, got nil")
	}
	if !strings.Contains(err.Error(), "silence_threshold_ms") {
		t.Errorf("error should mention silence_threshold_ms, got: %v", err)
	}
	if !strings.Contains(err.Error(), "drain_interval_s") {
		t.Errorf("error should mention drain_interval_s, got: %v", err)
	}
}

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "polyvox.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Session.Title != "Morning standup" {
		t.Errorf("Title = %q, want %q", cfg.Session.Title, "Morning standup")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("LogLevel(%q).IsValid() = false, want true", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error(`LogLevel("trace").IsValid() = true, want false`)
	}
}
