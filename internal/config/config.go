// Package config provides the configuration schema, loader, and file watcher
// for the parley engine.
package config

// LogLevel controls log verbosity for the parley process.
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

// Mode selects how utterances are attributed and routed.
type Mode string

const (
	// ModeAuto detects the spoken language per utterance and routes between
	// the two participants.
	ModeAuto Mode = "auto"

	// ModeManual fixes source and target languages; detection results are
	// advisory only.
	ModeManual Mode = "manual"
)

// IsValid reports whether m is a recognised conversation mode.
func (m Mode) IsValid() bool {
	return m == ModeAuto || m == ModeManual
}

// Config is the root configuration structure for parley.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Session      SessionConfig      `yaml:"session"`
	Segmenter    SegmenterConfig    `yaml:"segmenter"`
	Conversation ConversationConfig `yaml:"conversation"`
	Capture      CaptureConfig      `yaml:"capture"`
	Transcriber  TranscriberConfig  `yaml:"transcriber"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the health/metrics/event server listens
	// on (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// SessionConfig holds the session controller's timing parameters. All values
// are in milliseconds; zero means "use the default" except where noted.
type SessionConfig struct {
	// StartHoldMs delays capture open after a start-recording request, so an
	// accidental tap that is released immediately never opens the mic.
	// 0 disables the hold (open immediately). Zero is also the default.
	StartHoldMs int `yaml:"start_hold_ms"`

	// StopSilenceMs is how long the signal must stay silent before a
	// recording is stopped and processed.
	StopSilenceMs int `yaml:"stop_silence_ms"`

	// MinSpeechMs is the minimum recording duration that produces an
	// utterance; shorter recordings are discarded silently.
	MinSpeechMs int `yaml:"min_speech_ms"`

	// MaxUtteranceMs caps a single recording's length.
	MaxUtteranceMs int `yaml:"max_utterance_ms"`

	// AutoDisarmMs disarms an idle session after this much inactivity.
	AutoDisarmMs int `yaml:"auto_disarm_ms"`

	// CleanupDelayMs is how long a finished utterance's recording is kept
	// on disk before the deferred deletion fires.
	CleanupDelayMs int `yaml:"cleanup_delay_ms"`
}

// SegmenterConfig holds the continuous-listening segmenter's parameters.
type SegmenterConfig struct {
	// SilenceThresholdDB is the signal level (dBFS) above which a poll
	// counts as speech.
	SilenceThresholdDB float64 `yaml:"silence_threshold_db"`

	// ChunkMs is the fixed rotation period for audio chunks.
	ChunkMs int `yaml:"chunk_ms"`

	// PollIntervalMs is how often the signal level is sampled.
	PollIntervalMs int `yaml:"poll_interval_ms"`

	// MaxSilenceMs is the silence run length that raises a silence event.
	MaxSilenceMs int `yaml:"max_silence_ms"`
}

// ParticipantConfig describes one of the two conversation participants.
type ParticipantConfig struct {
	// Language is the participant's language as a raw code ("en", "pt-BR").
	Language string `yaml:"language"`

	// DisplayName is an optional label for the UI.
	DisplayName string `yaml:"display_name"`
}

// ConversationConfig holds the two participants and the routing mode.
type ConversationConfig struct {
	Mode         Mode              `yaml:"mode"`
	ParticipantA ParticipantConfig `yaml:"participant_a"`
	ParticipantB ParticipantConfig `yaml:"participant_b"`
}

// CaptureConfig selects and configures the microphone adapter.
type CaptureConfig struct {
	// Name selects the adapter: "ffmpeg" or "mock".
	Name string `yaml:"name"`

	// SpoolDir is where recordings are written before cleanup.
	SpoolDir string `yaml:"spool_dir"`

	// Binary overrides the ffmpeg binary path.
	Binary string `yaml:"binary"`

	// InputFormat and InputDevice override the platform input selection.
	InputFormat string `yaml:"input_format"`
	InputDevice string `yaml:"input_device"`
}

// TranscriberConfig selects and configures the transcription backend.
type TranscriberConfig struct {
	// Name selects the backend: "whisper" or "openai".
	Name string `yaml:"name"`

	// ServerURL is the whisper-server base URL (whisper backend).
	ServerURL string `yaml:"server_url"`

	// APIKey authenticates against the hosted API (openai backend).
	APIKey string `yaml:"api_key"`

	// Model is the backend-specific model identifier.
	Model string `yaml:"model"`
}
