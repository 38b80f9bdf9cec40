package config_test

import (
	"testing"

	"github.com/polyvox/polyvox/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:  config.ServerConfig{LogLevel: config.LogInfo},
		Session: config.SessionConfig{SourceLanguage: "en", TargetLanguages: []string{"de"}},
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.SessionDefaultsChanged {
		t.Error("expected SessionDefaultsChanged=false for identical configs")
	}
	if d.RestartRequired {
		t.Error("expected RestartRequired=false for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.RestartRequired {
		t.Error("log level change alone should not require a restart")
	}
}

func TestDiff_SessionDefaultsChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Session: config.SessionConfig{SourceLanguage: "en", TargetLanguages: []string{"de"}},
	}
	new := &config.Config{
		Session: config.SessionConfig{SourceLanguage: "en", TargetLanguages: []string{"de", "fr"}},
	}

	d := config.Diff(old, new)
	if !d.SessionDefaultsChanged {
		t.Error("expected SessionDefaultsChanged=true")
	}
	if d.RestartRequired {
		t.Error("session default changes should not require a restart")
	}
}

func TestDiff_ProviderChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Providers: config.ProvidersConfig{Translate: config.ProviderEntry{Name: "openai"}},
	}
	new := &config.Config{
		Providers: config.ProvidersConfig{Translate: config.ProviderEntry{Name: "openai", Model: "gpt-4o"}},
	}

	d := config.Diff(old, new)
	if !d.RestartRequired {
		t.Error("expected RestartRequired=true for provider change")
	}
}

func TestDiff_StorageChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Storage: config.StorageConfig{PostgresDSN: "postgres://localhost/a"},
	}
	new := &config.Config{
		Storage: config.StorageConfig{PostgresDSN: "postgres://localhost/b"},
	}

	d := config.Diff(old, new)
	if !d.RestartRequired {
		t.Error("expected RestartRequired=true for storage change")
	}
}
