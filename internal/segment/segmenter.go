// Package segment implements the continuous-listening voice activity
// segmenter.
//
// While a conversation runs hands-free, the Segmenter keeps exactly one
// capture handle open at a time and carves the incoming signal into
// utterance chunks. It samples the input level on a fixed poll interval,
// classifies each sample as speech or silence against a dBFS threshold,
// and closes the current chunk either at a silence boundary (a natural
// pause, high boundary confidence) or when the fixed rotation period
// elapses (an arbitrary cut, low confidence). The next chunk's handle is
// opened before the finished chunk is emitted, so capture never gaps.
package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/parleylabs/parley/internal/config"
	"github.com/parleylabs/parley/internal/events"
	"github.com/parleylabs/parley/internal/observe"
	"github.com/parleylabs/parley/pkg/capture"
)

// minChunk is the floor below which a rotated chunk is dropped instead of
// emitted. Anything shorter holds no usable speech.
const minChunk = 100 * time.Millisecond

// Boundary confidence for emitted chunks: a silence boundary means the
// speaker paused; a period rotation cut them off mid-word.
const (
	boundaryPause = 0.9
	boundaryCut   = 0.2
)

// Config holds the segmenter's tuning parameters.
type Config struct {
	// SilenceThresholdDB is the level (dBFS) above which a poll counts as
	// speech.
	SilenceThresholdDB float64

	// ChunkPeriod is the fixed rotation period; a chunk never grows past it.
	ChunkPeriod time.Duration

	// PollInterval is how often the input level is sampled.
	PollInterval time.Duration

	// MaxSilence is the continuous-silence run that closes the current
	// chunk at a pause boundary.
	MaxSilence time.Duration
}

// ConfigFromSettings converts the millisecond config schema into a Config.
func ConfigFromSettings(sc config.SegmenterConfig) Config {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return Config{
		SilenceThresholdDB: sc.SilenceThresholdDB,
		ChunkPeriod:        ms(sc.ChunkMs),
		PollInterval:       ms(sc.PollIntervalMs),
		MaxSilence:         ms(sc.MaxSilenceMs),
	}
}

// Hooks are optional callbacks into the session layer. Both are invoked
// from the segmenter's poll goroutine; implementations must be quick.
type Hooks struct {
	// SpeechDetected fires on every poll classified as speech. The session
	// controller uses it to re-arm its stop-silence debounce.
	SpeechDetected func()

	// SilenceElapsed fires once per speech-to-silence transition, after
	// MaxSilence of continuous silence.
	SilenceElapsed func(run time.Duration)
}

// Segmenter carves a continuous capture stream into utterance chunks.
//
// StartListening and StopListening are safe for concurrent use; the poll
// loop itself is single-threaded.
type Segmenter struct {
	log     *slog.Logger
	metrics *observe.Metrics
	device  capture.Device
	bus     *events.Bus
	hooks   Hooks

	mu        sync.Mutex
	cfg       Config
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	sessionID string

	// Poll-loop state, owned by the loop goroutine once running.
	handle       capture.Handle
	chunkStart   time.Time
	seq          int
	inSpeech     bool
	silenceSince time.Time
	silenceFired bool
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Segmenter) { s.log = l }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Segmenter) { s.metrics = m }
}

// WithHooks sets the session-layer callbacks.
func WithHooks(h Hooks) Option {
	return func(s *Segmenter) { s.hooks = h }
}

// New creates a stopped Segmenter reading from device and publishing chunks
// on bus.
func New(device capture.Device, bus *events.Bus, cfg Config, opts ...Option) *Segmenter {
	s := &Segmenter{
		device: device,
		bus:    bus,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With(slog.String("component", "segment"))
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// SetConfig replaces the tuning parameters. The new values apply from the
// next poll, so a config swap never disturbs the chunk in flight.
func (s *Segmenter) SetConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Listening reports whether the poll loop is running.
func (s *Segmenter) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// StartListening opens the first chunk's capture handle and starts the poll
// loop. The handle is open and recording before StartListening returns, so
// the caller can treat a nil error as "the microphone is live". Chunks are
// published tagged with sessionID.
func (s *Segmenter) StartListening(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("segment: already listening")
	}

	h, err := s.openChunk(ctx)
	if err != nil {
		return fmt.Errorf("opening first chunk: %w", err)
	}
	s.handle = h
	s.chunkStart = time.Now()
	s.sessionID = sessionID
	s.seq = 0
	s.inSpeech = false
	s.silenceFired = false

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(loopCtx)

	s.log.Info("listening started", slog.String("session_id", sessionID))
	return nil
}

// StopListening stops the poll loop, closes the current handle, and flushes
// whatever it held as a final chunk. Stopping a stopped segmenter is a
// no-op.
func (s *Segmenter) StopListening(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false

	if s.handle == nil {
		return nil
	}
	h := s.handle
	s.handle = nil
	res, err := h.Stop(ctx)
	if err != nil {
		s.captureError(ctx, "stop")
		return fmt.Errorf("stopping final chunk: %w", err)
	}
	s.emitChunk(ctx, res, boundaryPause, 0)
	s.log.Info("listening stopped", slog.String("session_id", s.sessionID))
	return nil
}

// run is the poll loop. It owns s.handle until cancelled.
func (s *Segmenter) run(ctx context.Context) {
	defer close(s.done)

	s.mu.Lock()
	interval := s.cfg.PollInterval
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll samples the input level once and applies the speech/silence and
// rotation rules.
func (s *Segmenter) poll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		// A failed rotation left capture gapped; try to resume.
		h, err := s.openChunk(ctx)
		if err != nil {
			s.log.Debug("chunk reopen retry failed", slog.Any("error", err))
			return
		}
		s.handle = h
		s.chunkStart = time.Now()
		s.inSpeech = false
		s.silenceSince = time.Time{}
		s.silenceFired = false
		s.log.Info("capture resumed after reopen failure", slog.String("session_id", s.sessionID))
		return
	}
	cfg := s.cfg

	level, err := s.handle.Level(ctx)
	if err != nil {
		if !errors.Is(err, capture.ErrHandleClosed) {
			s.log.Warn("level poll failed", slog.Any("error", err))
			s.captureError(ctx, "level")
		}
		return
	}

	now := time.Now()
	if level > cfg.SilenceThresholdDB {
		s.inSpeech = true
		s.silenceSince = time.Time{}
		s.silenceFired = false
		if s.hooks.SpeechDetected != nil {
			s.hooks.SpeechDetected()
		}
	} else {
		if s.silenceSince.IsZero() {
			s.silenceSince = now
		}
		run := now.Sub(s.silenceSince)
		if run >= cfg.MaxSilence && s.inSpeech && !s.silenceFired {
			s.silenceFired = true
			s.inSpeech = false
			if s.hooks.SilenceElapsed != nil {
				s.hooks.SilenceElapsed(run)
			}
			s.rotateLocked(ctx, boundaryPause, run)
			return
		}
	}

	if now.Sub(s.chunkStart) >= cfg.ChunkPeriod {
		s.rotateLocked(ctx, boundaryCut, 0)
	}
}

// rotateLocked closes the current chunk and opens the next one before the
// finished chunk is emitted, keeping capture continuous.
func (s *Segmenter) rotateLocked(ctx context.Context, confidence float64, silence time.Duration) {
	h := s.handle
	s.handle = nil

	res, stopErr := h.Stop(ctx)

	next, openErr := s.openChunk(ctx)
	if openErr != nil {
		// Capture is gapped until a later poll reopens successfully.
		s.log.Error("reopening chunk failed", slog.Any("error", openErr))
		s.bus.PublishError(events.Error{
			SessionID: s.sessionID,
			Kind:      "capture_open_failed",
			Context:   openErr.Error(),
		})
	} else {
		s.handle = next
		s.chunkStart = time.Now()
	}

	if stopErr != nil {
		s.captureError(ctx, "stop")
		s.log.Warn("closing chunk failed", slog.Any("error", stopErr))
		return
	}
	s.metrics.ChunksRotated.Add(ctx, 1)
	s.emitChunk(ctx, res, confidence, silence)
}

// openChunk opens and starts a fresh capture handle.
func (s *Segmenter) openChunk(ctx context.Context) (capture.Handle, error) {
	h, err := s.device.Open(ctx)
	if err != nil {
		s.captureError(ctx, "open")
		return nil, err
	}
	if err := h.Start(ctx); err != nil {
		if _, serr := h.Stop(ctx); serr != nil && !errors.Is(serr, capture.ErrHandleClosed) {
			s.log.Warn("releasing unstartable chunk handle failed", slog.Any("error", serr))
		}
		s.captureError(ctx, "open")
		return nil, err
	}
	return h, nil
}

// emitChunk publishes a closed chunk, dropping anything under the minimum
// length.
func (s *Segmenter) emitChunk(ctx context.Context, res capture.Result, confidence float64, silence time.Duration) {
	if res.Duration < minChunk {
		if res.Locator != "" {
			if err := s.device.Delete(ctx, res.Locator); err != nil {
				s.log.Warn("deleting short chunk failed",
					slog.String("locator", res.Locator),
					slog.Any("error", err))
				s.captureError(ctx, "delete")
			}
		}
		s.log.Debug("short chunk dropped", slog.Duration("duration", res.Duration))
		return
	}

	s.seq++
	s.bus.PublishUtteranceReady(events.UtteranceReady{
		SessionID:   s.sessionID,
		UtteranceID: uuid.NewString(),
		Seq:         s.seq,
		Locator:     res.Locator,
		Duration:    res.Duration,
		Silence:     silence,
		Confidence:  confidence,
		CreatedAt:   time.Now(),
	})
	s.log.Debug("chunk emitted",
		slog.Int("seq", s.seq),
		slog.Duration("duration", res.Duration),
		slog.Float64("confidence", confidence))
}

func (s *Segmenter) captureError(ctx context.Context, op string) {
	s.metrics.CaptureErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
