package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [applyDefaults] when the corresponding field is zero.
const (
	DefaultListenAddr     = ":8080"
	DefaultStopSilenceMs  = 2000
	DefaultMinSpeechMs    = 500
	DefaultMaxUtteranceMs = 30000
	DefaultAutoDisarmMs   = 120000
	DefaultCleanupDelayMs = 60000
	DefaultChunkMs        = 15000
	DefaultPollIntervalMs = 100
	DefaultMaxSilenceMs   = 3000

	DefaultSilenceThresholdDB = -40.0
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// unmarshalStrict decodes YAML into cfg, rejecting unknown fields.
func unmarshalStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// applyDefaults fills zero-valued fields with their documented defaults.
// StartHoldMs stays zero on purpose: no hold is the default behaviour.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	s := &cfg.Session
	if s.StopSilenceMs == 0 {
		s.StopSilenceMs = DefaultStopSilenceMs
	}
	if s.MinSpeechMs == 0 {
		s.MinSpeechMs = DefaultMinSpeechMs
	}
	if s.MaxUtteranceMs == 0 {
		s.MaxUtteranceMs = DefaultMaxUtteranceMs
	}
	if s.AutoDisarmMs == 0 {
		s.AutoDisarmMs = DefaultAutoDisarmMs
	}
	if s.CleanupDelayMs == 0 {
		s.CleanupDelayMs = DefaultCleanupDelayMs
	}

	g := &cfg.Segmenter
	if g.SilenceThresholdDB == 0 {
		g.SilenceThresholdDB = DefaultSilenceThresholdDB
	}
	if g.ChunkMs == 0 {
		g.ChunkMs = DefaultChunkMs
	}
	if g.PollIntervalMs == 0 {
		g.PollIntervalMs = DefaultPollIntervalMs
	}
	if g.MaxSilenceMs == 0 {
		g.MaxSilenceMs = DefaultMaxSilenceMs
	}

	if cfg.Conversation.Mode == "" {
		cfg.Conversation.Mode = ModeAuto
	}
	if cfg.Capture.Name == "" {
		cfg.Capture.Name = "ffmpeg"
	}
	if cfg.Capture.SpoolDir == "" {
		cfg.Capture.SpoolDir = os.TempDir() + "/parley"
	}
	if cfg.Transcriber.Name == "" {
		cfg.Transcriber.Name = "whisper"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	s := cfg.Session
	if s.StartHoldMs < 0 {
		errs = append(errs, fmt.Errorf("session.start_hold_ms %d must not be negative", s.StartHoldMs))
	}
	if s.StopSilenceMs <= 0 {
		errs = append(errs, fmt.Errorf("session.stop_silence_ms %d must be positive", s.StopSilenceMs))
	}
	if s.MinSpeechMs < 0 {
		errs = append(errs, fmt.Errorf("session.min_speech_ms %d must not be negative", s.MinSpeechMs))
	}
	if s.MaxUtteranceMs <= 0 {
		errs = append(errs, fmt.Errorf("session.max_utterance_ms %d must be positive", s.MaxUtteranceMs))
	}
	if s.MaxUtteranceMs > 0 && s.MinSpeechMs > s.MaxUtteranceMs {
		errs = append(errs, fmt.Errorf("session.min_speech_ms %d exceeds session.max_utterance_ms %d", s.MinSpeechMs, s.MaxUtteranceMs))
	}
	if s.AutoDisarmMs <= 0 {
		errs = append(errs, fmt.Errorf("session.auto_disarm_ms %d must be positive", s.AutoDisarmMs))
	}
	if s.CleanupDelayMs < 0 {
		errs = append(errs, fmt.Errorf("session.cleanup_delay_ms %d must not be negative", s.CleanupDelayMs))
	}

	g := cfg.Segmenter
	if g.SilenceThresholdDB > 0 {
		errs = append(errs, fmt.Errorf("segmenter.silence_threshold_db %.1f must be ≤ 0 dBFS", g.SilenceThresholdDB))
	}
	if g.ChunkMs <= 0 {
		errs = append(errs, fmt.Errorf("segmenter.chunk_ms %d must be positive", g.ChunkMs))
	}
	if g.PollIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("segmenter.poll_interval_ms %d must be positive", g.PollIntervalMs))
	}
	if g.MaxSilenceMs <= 0 {
		errs = append(errs, fmt.Errorf("segmenter.max_silence_ms %d must be positive", g.MaxSilenceMs))
	}

	c := cfg.Conversation
	if !c.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("conversation.mode %q is invalid; valid values: auto, manual", c.Mode))
	}
	if c.ParticipantA.Language == "" {
		errs = append(errs, errors.New("conversation.participant_a.language is required"))
	}
	if c.ParticipantB.Language == "" {
		errs = append(errs, errors.New("conversation.participant_b.language is required"))
	}

	switch cfg.Capture.Name {
	case "ffmpeg", "mock":
	default:
		errs = append(errs, fmt.Errorf("capture.name %q is invalid; valid values: ffmpeg, mock", cfg.Capture.Name))
	}

	switch cfg.Transcriber.Name {
	case "whisper":
		if cfg.Transcriber.ServerURL == "" {
			errs = append(errs, errors.New("transcriber.server_url is required for the whisper backend"))
		}
	case "openai":
		if cfg.Transcriber.APIKey == "" {
			errs = append(errs, errors.New("transcriber.api_key is required for the openai backend"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("transcriber.name %q is invalid; valid values: whisper, openai, mock", cfg.Transcriber.Name))
	}

	return errors.Join(errs...)
}
