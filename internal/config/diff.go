package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked individually;
// everything else sets RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionDefaultsChanged is set when the defaults applied to newly
	// started sessions changed (title, languages, silence window).
	SessionDefaultsChanged bool

	// RestartRequired is set when providers, recognition, or storage
	// settings changed. Those are bound at startup and cannot be swapped
	// under a live session.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Session.Title != new.Session.Title ||
		old.Session.SourceLanguage != new.Session.SourceLanguage ||
		!slices.Equal(old.Session.TargetLanguages, new.Session.TargetLanguages) ||
		old.Session.SilenceThresholdMs != new.Session.SilenceThresholdMs ||
		old.Session.DrainIntervalS != new.Session.DrainIntervalS {
		d.SessionDefaultsChanged = true
	}

	if old.Providers != new.Providers ||
		old.Recognition != new.Recognition ||
		old.Storage != new.Storage ||
		old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = true
	}

	return d
}
