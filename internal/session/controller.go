package session

import (
	"context"
	"errors"
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

// Boundary confidence attached to emitted utterances. A recording stopped
// on silence or by the user ended at a natural pause; one cut by the
// max-duration cap almost certainly split a word or sentence.
const (
	boundaryClean = 0.9
	boundaryCut   = 0.2
)

// Timing holds the controller's timer durations.
type Timing struct {
	// StartHold delays capture open after a start request; 0 opens
	// immediately.
	StartHold time.Duration

	// StopSilence stops a recording after this much continuous silence,
	// measured from the last reported speech.
	StopSilence time.Duration

	// MinSpeech is the shortest recording that produces an utterance.
	MinSpeech time.Duration

	// MaxUtterance caps a single recording.
	MaxUtterance time.Duration

	// AutoDisarm ends an idle session after this much inactivity.
	AutoDisarm time.Duration

	// CleanupDelay is how long finished recordings stay on disk before the
	// deferred deletion fires. 0 disables deferred cleanup entirely.
	CleanupDelay time.Duration
}

// TimingFromConfig converts the millisecond config schema into a Timing.
func TimingFromConfig(sc config.SessionConfig) Timing {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return Timing{
		StartHold:    ms(sc.StartHoldMs),
		StopSilence:  ms(sc.StopSilenceMs),
		MinSpeech:    ms(sc.MinSpeechMs),
		MaxUtterance: ms(sc.MaxUtteranceMs),
		AutoDisarm:   ms(sc.AutoDisarmMs),
		CleanupDelay: ms(sc.CleanupDelayMs),
	}
}

// Controller is the microphone session lifecycle state machine.
//
// All public methods serialize on an internal mutex, so exactly one
// transition is in flight at any instant; a timer that fires while another
// transition runs waits for the mutex and is then dropped by its generation
// check. Events are published synchronously while the mutex is held —
// subscribers must not call back into the Controller from their handler
// (spawn a goroutine for follow-up work such as transcription).
type Controller struct {
	mu      sync.Mutex
	log     *slog.Logger
	metrics *observe.Metrics
	device  capture.Device
	bus     *events.Bus

	timing Timing
	state  State

	sessionID        string
	seq              int
	handle           capture.Handle
	pendingUtterance string

	startHold   deadline
	stopSilence deadline
	maxDuration deadline
	autoDisarm  deadline

	// cleanups maps a recording locator to its pending deferred-deletion
	// timer. Entries are utterance-scoped and survive session end.
	cleanups map[string]*time.Timer

	// closed is set by Close. A cleanup callback that was already in flight
	// when Close ran checks it and leaves the recording on disk.
	closed bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a disarmed Controller recording through device and publishing
// on bus.
func New(device capture.Device, bus *events.Bus, timing Timing, opts ...Option) *Controller {
	c := &Controller{
		device:   device,
		bus:      bus,
		timing:   timing,
		state:    StateDisarmed,
		cleanups: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With(slog.String("component", "session"))
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the current session's identifier, or "" when disarmed.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SetTiming replaces the timer durations. Already-armed timers keep their
// original deadline; the new values apply from the next arming, so a config
// swap takes effect between utterances without disturbing one in flight.
func (c *Controller) SetTiming(t Timing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timing = t
}

// StartSession arms a new listening session. Calling on an already-armed
// session is a no-op.
func (c *Controller) StartSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateDisarmed {
		c.log.Debug("start session ignored", slog.String("state", c.state.String()))
		return nil
	}

	c.sessionID = uuid.NewString()
	c.seq = 0
	c.setState(StateArmedIdle)
	c.arm(&c.autoDisarm, c.timing.AutoDisarm, c.fireAutoDisarm)

	c.metrics.ActiveSessions.Add(ctx, 1)
	c.bus.PublishSessionStart(events.SessionStart{SessionID: c.sessionID})
	c.log.Info("session started", slog.String("session_id", c.sessionID))
	return nil
}

// EndSession disarms the session, converging to StateDisarmed from every
// state. A recording in flight is stopped; for non-immediate reasons it is
// flushed as a final utterance, for immediate reasons (app backgrounded,
// navigated away) it is discarded and its resource deleted right away.
// Ending an already-disarmed controller is a no-op.
func (c *Controller) EndSession(ctx context.Context, reason EndReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endSessionLocked(ctx, reason)
}

func (c *Controller) endSessionLocked(ctx context.Context, reason EndReason) error {
	if c.state == StateDisarmed {
		return nil
	}

	c.cancelSessionTimers()

	if c.handle != nil {
		h := c.handle
		c.handle = nil
		res, err := h.Stop(ctx)
		switch {
		case err != nil:
			c.publishError(KindCaptureStopFailed, "stopping recording on session end: "+err.Error())
			c.captureError(ctx, "stop")
		case reason.Immediate() || res.Duration < c.timing.MinSpeech:
			c.discardLocked(ctx, res, StopSessionEnd)
		default:
			c.emitUtteranceLocked(ctx, res, StopSessionEnd)
		}
	}

	sessionID := c.sessionID
	c.sessionID = ""
	c.pendingUtterance = ""
	c.setState(StateDisarmed)

	c.metrics.ActiveSessions.Add(ctx, -1)
	c.bus.PublishSessionEnd(events.SessionEnd{SessionID: sessionID, Reason: string(reason)})
	c.log.Info("session ended",
		slog.String("session_id", sessionID),
		slog.String("reason", string(reason)))
	return nil
}

// StartRecording opens a capture handle and transitions to StateRecording.
// With a non-zero StartHold the open is deferred by that duration, so a tap
// cancelled via [Controller.CancelStart] within the hold never touches the
// microphone. Legal only from StateArmedIdle; calling while disarmed returns
// [ErrNoSession].
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateArmedIdle {
		c.log.Warn("start recording rejected", slog.String("state", c.state.String()))
		if c.state == StateDisarmed {
			return ErrNoSession
		}
		return ErrInvalidTransition
	}

	if c.timing.StartHold > 0 {
		c.arm(&c.startHold, c.timing.StartHold, func() {
			if c.state != StateArmedIdle {
				return
			}
			if err := c.openRecordingLocked(context.Background()); err != nil {
				c.log.Error("deferred recording open failed", slog.Any("error", err))
			}
		})
		return nil
	}
	return c.openRecordingLocked(ctx)
}

// CancelStart aborts a start request still inside its StartHold window.
// Harmless when no start is pending.
func (c *Controller) CancelStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel(&c.startHold)
}

func (c *Controller) openRecordingLocked(ctx context.Context) error {
	// A stale handle here would violate the one-live-handle invariant;
	// stop it before opening another.
	if c.handle != nil {
		if _, err := c.handle.Stop(ctx); err != nil && !errors.Is(err, capture.ErrHandleClosed) {
			c.log.Warn("stale capture handle stop failed", slog.Any("error", err))
		}
		c.handle = nil
	}

	h, err := c.device.Open(ctx)
	if err != nil {
		return c.openFailedLocked(ctx, err)
	}
	if err := h.Start(ctx); err != nil {
		if _, serr := h.Stop(ctx); serr != nil && !errors.Is(serr, capture.ErrHandleClosed) {
			c.log.Warn("releasing unstartable handle failed", slog.Any("error", serr))
		}
		return c.openFailedLocked(ctx, err)
	}

	c.handle = h
	c.seq++
	c.cancel(&c.autoDisarm)
	c.setState(StateRecording)
	c.arm(&c.stopSilence, c.timing.StopSilence, func() { c.fireStop(StopSilence) })
	c.arm(&c.maxDuration, c.timing.MaxUtterance, func() { c.fireStop(StopMaxDuration) })

	c.bus.PublishRecordingStart(events.RecordingStart{SessionID: c.sessionID, Seq: c.seq})
	c.log.Info("recording started",
		slog.String("session_id", c.sessionID),
		slog.Int("seq", c.seq))
	return nil
}

// openFailedLocked classifies a failure to open or start the capture handle.
// A permission denial is fatal: the OS will keep denying, so the session ends
// instead of staying armed for a retry. Anything else leaves the session
// armed and the error surfaced for the next attempt.
func (c *Controller) openFailedLocked(ctx context.Context, err error) error {
	c.captureError(ctx, "open")
	if errors.Is(err, capture.ErrPermissionDenied) {
		c.publishError(KindPermissionDenied, err.Error())
		c.log.Error("microphone permission denied", slog.Any("error", err))
		if eerr := c.endSessionLocked(ctx, ReasonPermissionDenied); eerr != nil {
			c.log.Error("ending session after permission denial failed", slog.Any("error", eerr))
		}
		return err
	}
	c.publishError(KindCaptureOpenFailed, err.Error())
	return err
}

// OnSpeechDetected re-arms the stop-silence timer, keeping the recording
// open while speech continues. Outside StateRecording it is dropped.
func (c *Controller) OnSpeechDetected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return
	}
	c.arm(&c.stopSilence, c.timing.StopSilence, func() { c.fireStop(StopSilence) })
}

// StopRecording stops the current recording explicitly and, when it is long
// enough, emits the utterance for processing. Legal only from
// StateRecording.
func (c *Controller) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		c.log.Warn("stop recording rejected", slog.String("state", c.state.String()))
		if c.state == StateDisarmed {
			return ErrNoSession
		}
		return ErrInvalidTransition
	}
	return c.stopLocked(ctx, StopExplicit)
}

// fireStop is the body of the stop-silence and max-duration timers. The
// generation check in the deadline already filters re-armed slots; the state
// check here drops a fire that lost the race against another transition.
func (c *Controller) fireStop(reason StopReason) {
	if c.state != StateRecording {
		return
	}
	if err := c.stopLocked(context.Background(), reason); err != nil {
		c.log.Error("timer-driven stop failed",
			slog.String("reason", string(reason)),
			slog.Any("error", err))
	}
}

func (c *Controller) stopLocked(ctx context.Context, reason StopReason) error {
	c.setState(StateStopping)
	c.cancel(&c.stopSilence)
	c.cancel(&c.maxDuration)

	h := c.handle
	c.handle = nil
	res, err := h.Stop(ctx)
	if err != nil {
		c.publishError(KindCaptureStopFailed, err.Error())
		c.captureError(ctx, "stop")
		c.metrics.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		c.toArmedIdleLocked()
		return err
	}

	if res.Duration < c.timing.MinSpeech {
		c.discardLocked(ctx, res, reason)
		c.toArmedIdleLocked()
		return nil
	}

	c.emitUtteranceLocked(ctx, res, reason)
	c.setState(StateProcessing)
	return nil
}

// discardLocked drops a too-short or force-ended recording: the resource is
// deleted immediately and no utterance is emitted.
func (c *Controller) discardLocked(ctx context.Context, res capture.Result, reason StopReason) {
	if err := c.device.Delete(ctx, res.Locator); err != nil {
		c.log.Warn("deleting discarded recording failed",
			slog.String("locator", res.Locator),
			slog.Any("error", err))
		c.captureError(ctx, "delete")
	}
	c.metrics.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "discarded")))
	c.bus.PublishRecordingStop(events.RecordingStop{
		SessionID:  c.sessionID,
		Seq:        c.seq,
		Duration:   res.Duration,
		Discarded:  true,
		StopReason: string(reason),
	})
	c.log.Debug("recording discarded",
		slog.Int("seq", c.seq),
		slog.Duration("duration", res.Duration),
		slog.String("reason", string(reason)))
}

// emitUtteranceLocked publishes a completed recording as an utterance and
// schedules the deferred deletion of its resource.
func (c *Controller) emitUtteranceLocked(ctx context.Context, res capture.Result, reason StopReason) {
	utteranceID := uuid.NewString()
	c.pendingUtterance = utteranceID

	silence := time.Duration(0)
	confidence := boundaryClean
	switch reason {
	case StopSilence:
		silence = c.timing.StopSilence
	case StopMaxDuration:
		confidence = boundaryCut
	}

	c.scheduleCleanupLocked(res.Locator)
	c.metrics.UtteranceDuration.Record(ctx, res.Duration.Seconds())
	c.metrics.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ready")))

	c.bus.PublishRecordingStop(events.RecordingStop{
		SessionID:  c.sessionID,
		Seq:        c.seq,
		Duration:   res.Duration,
		StopReason: string(reason),
	})
	c.bus.PublishUtteranceReady(events.UtteranceReady{
		SessionID:   c.sessionID,
		UtteranceID: utteranceID,
		Seq:         c.seq,
		Locator:     res.Locator,
		Duration:    res.Duration,
		Silence:     silence,
		Confidence:  confidence,
		CreatedAt:   time.Now(),
	})
	c.log.Info("utterance ready",
		slog.String("utterance_id", utteranceID),
		slog.Int("seq", c.seq),
		slog.Duration("duration", res.Duration),
		slog.String("reason", string(reason)))
}

// OnProcessingComplete returns the controller to StateArmedIdle after the
// processing stage finishes for the given utterance. A completion for an
// utterance that is no longer pending (the session ended meanwhile, or a
// newer utterance superseded it) is rejected with [ErrInvalidTransition].
func (c *Controller) OnProcessingComplete(ctx context.Context, utteranceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateProcessing || utteranceID != c.pendingUtterance {
		c.log.Debug("stale processing completion dropped",
			slog.String("utterance_id", utteranceID),
			slog.String("state", c.state.String()))
		return ErrInvalidTransition
	}

	c.pendingUtterance = ""
	c.bus.PublishProcessingComplete(events.ProcessingComplete{
		SessionID:   c.sessionID,
		UtteranceID: utteranceID,
	})
	c.toArmedIdleLocked()
	return nil
}

// Close cancels every timer including pending deferred cleanups. It does
// not delete spooled recordings; use EndSession first for an orderly stop.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cancelSessionTimers()
	for locator, t := range c.cleanups {
		t.Stop()
		delete(c.cleanups, locator)
	}
}

// toArmedIdleLocked returns to the armed-idle resting state and restarts
// the inactivity countdown.
func (c *Controller) toArmedIdleLocked() {
	c.setState(StateArmedIdle)
	c.arm(&c.autoDisarm, c.timing.AutoDisarm, c.fireAutoDisarm)
}

func (c *Controller) fireAutoDisarm() {
	if c.state != StateArmedIdle {
		return
	}
	if err := c.endSessionLocked(context.Background(), ReasonAutoDisarm); err != nil {
		c.log.Error("auto-disarm failed", slog.Any("error", err))
	}
}

// scheduleCleanupLocked arms the deferred deletion for a kept recording.
// With CleanupDelay zero the recording is kept indefinitely.
func (c *Controller) scheduleCleanupLocked(locator string) {
	if c.timing.CleanupDelay <= 0 {
		return
	}
	c.cleanups[locator] = time.AfterFunc(c.timing.CleanupDelay, func() {
		c.mu.Lock()
		if c.closed {
			// The timer fired before Close could stop it; honour Close's
			// no-deletion guarantee anyway.
			c.mu.Unlock()
			return
		}
		delete(c.cleanups, locator)
		c.mu.Unlock()
		if err := c.device.Delete(context.Background(), locator); err != nil {
			c.log.Warn("deferred recording cleanup failed",
				slog.String("locator", locator),
				slog.Any("error", err))
			c.captureError(context.Background(), "delete")
		}
	})
}

// setState records a transition and publishes it. Callers hold the mutex.
func (c *Controller) setState(to State) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	c.bus.PublishStateChange(events.StateChange{
		SessionID: c.sessionID,
		From:      from.String(),
		To:        to.String(),
	})
	c.log.Debug("state change",
		slog.String("from", from.String()),
		slog.String("to", to.String()))
}

func (c *Controller) publishError(kind ErrorKind, detail string) {
	c.bus.PublishError(events.Error{
		SessionID: c.sessionID,
		Kind:      string(kind),
		Context:   detail,
	})
}

func (c *Controller) captureError(ctx context.Context, op string) {
	c.metrics.CaptureErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
