package config

// ConfigDiff describes what changed between two configs and whether the
// change can be applied without restarting the engine. Session timings,
// segmenter thresholds, and conversation settings are hot-swappable between
// utterances; server, capture, and transcriber changes require a restart.
type ConfigDiff struct {
	SessionChanged      bool
	SegmenterChanged    bool
	ConversationChanged bool
	LogLevelChanged     bool
	NewLogLevel         LogLevel

	// RequiresRestart is set when server, capture, or transcriber settings
	// changed; the watcher callback logs a warning and keeps running with
	// the old wiring.
	RequiresRestart bool
}

// HotSwappable reports whether the diff contains only changes that can be
// applied to a running engine between utterances.
func (d ConfigDiff) HotSwappable() bool {
	return !d.RequiresRestart &&
		(d.SessionChanged || d.SegmenterChanged || d.ConversationChanged || d.LogLevelChanged)
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RequiresRestart = true
	}

	if old.Session != new.Session {
		d.SessionChanged = true
	}
	if old.Segmenter != new.Segmenter {
		d.SegmenterChanged = true
	}
	if old.Conversation != new.Conversation {
		d.ConversationChanged = true
	}
	if old.Capture != new.Capture || old.Transcriber != new.Transcriber {
		d.RequiresRestart = true
	}

	return d
}
