// Package app wires all parley subsystems into a running engine.
//
// The App struct owns the full lifecycle: New creates and connects the
// session controller, segmenter, turn router, transcription pipeline, and
// WebSocket gateway; Run serves the HTTP surface and blocks until the
// context is cancelled; Shutdown tears everything down in order.
//
// For testing, inject mock providers (capture/mock, transcribe/mock) via
// the Providers struct.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/parleylabs/parley/internal/config"
	"github.com/parleylabs/parley/internal/events"
	"github.com/parleylabs/parley/internal/gateway"
	"github.com/parleylabs/parley/internal/health"
	"github.com/parleylabs/parley/internal/observe"
	"github.com/parleylabs/parley/internal/segment"
	"github.com/parleylabs/parley/internal/session"
	"github.com/parleylabs/parley/internal/turn"
	"github.com/parleylabs/parley/pkg/capture"
	"github.com/parleylabs/parley/pkg/provider/transcribe"
)

// Providers holds the pluggable adapters. Both slots are required;
// main.go populates them from the config, tests inject mocks.
type Providers struct {
	Capture     capture.Device
	Transcriber transcribe.Provider
}

// App owns all subsystem lifetimes and orchestrates the utterance pipeline:
// capture → session/segmenter → transcription → turn routing → gateway.
type App struct {
	log      *slog.Logger
	metrics  *observe.Metrics
	logLevel *slog.LevelVar

	providers  *Providers
	configPath string

	bus        *events.Bus
	controller *session.Controller
	segmenter  *segment.Segmenter
	router     *turn.Router
	gateway    *gateway.Gateway
	health     *health.Handler

	// mu guards cfg, mode, and the pending hot-swap config.
	mu      sync.Mutex
	cfg     *config.Config
	mode    config.Mode
	pending *config.Config

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevelVar connects the dynamic log level so config hot-swaps can
// change verbosity at runtime.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithConfigFile enables hot reloading: Run watches path and applies
// hot-swappable changes between utterances.
func WithConfigFile(path string) Option {
	return func(a *App) { a.configPath = path }
}

// New creates an App by wiring all subsystems together.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Capture == nil {
		return nil, errors.New("app: capture provider is required")
	}
	if providers.Transcriber == nil {
		return nil, errors.New("app: transcribe provider is required")
	}

	a := &App{
		providers: providers,
		cfg:       cfg,
		mode:      cfg.Conversation.Mode,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.bus = events.New()

	a.router = turn.New(
		turn.ParticipantFromConfig(cfg.Conversation.ParticipantA),
		turn.ParticipantFromConfig(cfg.Conversation.ParticipantB),
		a.bus,
		turn.WithLogger(a.log),
		turn.WithMetrics(a.metrics),
	)

	a.controller = session.New(providers.Capture, a.bus,
		session.TimingFromConfig(cfg.Session),
		session.WithLogger(a.log),
		session.WithMetrics(a.metrics),
	)

	a.segmenter = segment.New(providers.Capture, a.bus,
		segment.ConfigFromSettings(cfg.Segmenter),
		segment.WithLogger(a.log),
		segment.WithMetrics(a.metrics),
		segment.WithHooks(segment.Hooks{
			SpeechDetected: a.controller.OnSpeechDetected,
		}),
	)

	gw, err := gateway.New(a.bus,
		gateway.WithLogger(a.log),
		gateway.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init gateway: %w", err)
	}
	a.gateway = gw

	a.health = health.New(
		health.Checker{Name: "capture", Check: readinessCheck(providers.Capture)},
		health.Checker{Name: "transcriber", Check: readinessCheck(providers.Transcriber)},
	)

	// Each ready utterance is processed off the bus goroutine; bus
	// delivery is synchronous and handlers must not re-enter the
	// controller.
	if err := a.bus.SubscribeUtteranceReady(func(e events.UtteranceReady) {
		go a.processUtterance(context.Background(), e)
	}); err != nil {
		return nil, fmt.Errorf("app: subscribe utterances: %w", err)
	}

	return a, nil
}

// readinessCheck adapts a provider to a health checker. Adapters that can
// verify their backend (ffmpeg binary and spool dir, whisper server
// reachability) implement Check; those that cannot report healthy.
func readinessCheck(p any) func(context.Context) error {
	if c, ok := p.(interface{ Check(ctx context.Context) error }); ok {
		return c.Check
	}
	return func(context.Context) error { return nil }
}

// Bus returns the engine's event bus.
func (a *App) Bus() *events.Bus { return a.bus }

// Controller returns the session controller.
func (a *App) Controller() *session.Controller { return a.controller }

// Handler returns the full HTTP surface: health and readiness, metrics, the
// WebSocket event feed, and the control API.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	a.gateway.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	a.registerControlRoutes(mux)
	return mux
}

// Run serves the HTTP surface (health, metrics, event feed, and the control
// API) and blocks until ctx is cancelled. It always tears the engine down
// before returning.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              a.listenAddr(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		a.log.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if a.configPath != "" {
		watcher, err := config.NewWatcher(a.configPath, func(_, next *config.Config) {
			a.ApplyConfig(next)
		})
		if err != nil {
			return fmt.Errorf("app: config watcher: %w", err)
		}
		g.Go(func() error {
			<-ctx.Done()
			watcher.Stop()
			return nil
		})
	}

	err := g.Wait()
	a.Shutdown(context.Background())
	return err
}

// Shutdown tears the engine down: the active session ends (flushing any
// recording in flight), continuous listening stops, and gateway clients are
// disconnected. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) {
	a.stopOnce.Do(func() {
		if err := a.controller.EndSession(ctx, session.ReasonUser); err != nil {
			a.log.Warn("ending session on shutdown failed", slog.Any("error", err))
		}
		if err := a.segmenter.StopListening(ctx); err != nil {
			a.log.Warn("stopping segmenter on shutdown failed", slog.Any("error", err))
		}
		a.gateway.Close()
		a.controller.Close()
		a.log.Info("engine stopped")
	})
}

// ApplyConfig schedules a validated config for application. Hot-swappable
// changes (timers, segmenter tuning, participants, log level) are applied
// at the next between-utterances point; changes that need a restart are
// refused with a warning and the running config is kept.
func (a *App) ApplyConfig(next *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	diff := config.Diff(a.cfg, next)
	if diff.RequiresRestart {
		a.log.Warn("config change requires restart; keeping current configuration")
		return
	}
	if !diff.HotSwappable() {
		return
	}
	a.pending = next

	// Apply immediately when no utterance is in flight.
	switch a.controller.State() {
	case session.StateDisarmed, session.StateArmedIdle:
		a.applyPendingLocked()
	}
}

// applyPendingLocked applies a scheduled config. Caller holds a.mu.
func (a *App) applyPendingLocked() {
	next := a.pending
	if next == nil {
		return
	}
	a.pending = nil
	diff := config.Diff(a.cfg, next)

	if diff.SessionChanged {
		a.controller.SetTiming(session.TimingFromConfig(next.Session))
	}
	if diff.SegmenterChanged {
		a.segmenter.SetConfig(segment.ConfigFromSettings(next.Segmenter))
	}
	if diff.ConversationChanged {
		a.router.UpdateParticipants(
			turn.ParticipantFromConfig(next.Conversation.ParticipantA),
			turn.ParticipantFromConfig(next.Conversation.ParticipantB),
		)
		a.mode = next.Conversation.Mode
	}
	if diff.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(diff.NewLogLevel))
	}
	a.cfg = next
	a.log.Info("configuration applied")
}

// processUtterance runs the transcription and routing stage for one ready
// utterance, then releases the controller.
func (a *App) processUtterance(ctx context.Context, e events.UtteranceReady) {
	ctx, span := observe.StartSpan(ctx, "process_utterance")
	defer span.End()
	log := observe.Logger(ctx).With(
		slog.String("component", "app"),
		slog.String("utterance_id", e.UtteranceID),
	)

	a.bus.PublishProcessingStart(events.ProcessingStart{
		SessionID:   e.SessionID,
		UtteranceID: e.UtteranceID,
	})

	mode, source := a.snapshotMode()
	req := transcribe.Request{
		Locator:    e.Locator,
		Duration:   e.Duration,
		AutoDetect: mode == config.ModeAuto,
	}
	if mode == config.ModeManual {
		req.Language = source
	}

	start := time.Now()
	res, err := a.providers.Transcriber.Transcribe(ctx, req)
	a.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		a.metrics.TranscriptionErrors.Add(ctx, 1)
		a.bus.PublishError(events.Error{
			SessionID: e.SessionID,
			Kind:      string(session.KindTranscriptionFailed),
			Context:   err.Error(),
		})
		log.Error("transcription failed", slog.Any("error", err))
	} else {
		a.routeTranscript(ctx, e, mode, res)
	}

	if err := a.controller.OnProcessingComplete(ctx, e.UtteranceID); err != nil {
		// Chunks from continuous listening and post-session flushes are
		// not controller-pending; this is expected for them.
		log.Debug("processing completion not applicable", slog.Any("error", err))
	}

	a.mu.Lock()
	a.applyPendingLocked()
	a.mu.Unlock()
}

// routeTranscript attributes the transcript and publishes it outward.
func (a *App) routeTranscript(ctx context.Context, e events.UtteranceReady, mode config.Mode, res transcribe.Result) {
	out := events.TranscriptReady{
		SessionID:        e.SessionID,
		UtteranceID:      e.UtteranceID,
		Text:             res.Text,
		DetectedLanguage: res.DetectedLanguage,
	}

	switch mode {
	case config.ModeManual:
		d := a.router.DecideManual(ctx, e.SessionID, e.UtteranceID, res.DetectedLanguage)
		out.SourceLanguage = d.SourceLanguage
		out.TargetLanguage = d.TargetLanguage
		out.Confident = !d.Warned
		out.Refused = d.Refused
	default:
		d := a.router.DetermineSpeaker(ctx, e.SessionID, e.UtteranceID, res.DetectedLanguage)
		out.Speaker = string(d.Speaker)
		out.SourceLanguage = d.SourceLanguage
		out.TargetLanguage = d.TargetLanguage
		out.Confident = d.Confident
	}

	a.bus.PublishTranscriptReady(out)
}

// snapshotMode returns the current mode and the manual-mode source language.
func (a *App) snapshotMode() (config.Mode, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pa, _ := a.router.Participants()
	return a.mode, pa.Language
}

func (a *App) listenAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Server.ListenAddr
}

// slogLevel maps the config level to slog.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
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
