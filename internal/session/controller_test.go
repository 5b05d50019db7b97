package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/parleylabs/parley/internal/config"
	"github.com/parleylabs/parley/internal/events"
	"github.com/parleylabs/parley/internal/observe"
	"github.com/parleylabs/parley/internal/session"
	"github.com/parleylabs/parley/pkg/capture"
	"github.com/parleylabs/parley/pkg/capture/mock"
)

// fastTiming keeps timer-driven tests quick while leaving generous margins
// against scheduler jitter.
func fastTiming() session.Timing {
	return session.Timing{
		StopSilence:  100 * time.Millisecond,
		MinSpeech:    50 * time.Millisecond,
		MaxUtterance: 5 * time.Second,
		AutoDisarm:   5 * time.Second,
		CleanupDelay: 50 * time.Millisecond,
	}
}

func newController(t *testing.T, dev capture.Device, timing session.Timing) (*session.Controller, *recorder) {
	t.Helper()

	bus := events.New()
	rec := record(t, bus)

	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics() error: %v", err)
	}

	c := session.New(dev, bus, timing,
		session.WithMetrics(m),
		session.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	t.Cleanup(c.Close)
	return c, rec
}

// recorder collects published events for assertions.
type recorder struct {
	mu         sync.Mutex
	utterances []events.UtteranceReady
	stops      []events.RecordingStop
	ends       []events.SessionEnd
	errs       []events.Error
}

func record(t *testing.T, bus *events.Bus) *recorder {
	t.Helper()
	r := &recorder{}
	subs := []error{
		bus.SubscribeUtteranceReady(func(e events.UtteranceReady) {
			r.mu.Lock()
			r.utterances = append(r.utterances, e)
			r.mu.Unlock()
		}),
		bus.SubscribeRecordingStop(func(e events.RecordingStop) {
			r.mu.Lock()
			r.stops = append(r.stops, e)
			r.mu.Unlock()
		}),
		bus.SubscribeSessionEnd(func(e events.SessionEnd) {
			r.mu.Lock()
			r.ends = append(r.ends, e)
			r.mu.Unlock()
		}),
		bus.SubscribeError(func(e events.Error) {
			r.mu.Lock()
			r.errs = append(r.errs, e)
			r.mu.Unlock()
		}),
	}
	for _, err := range subs {
		if err != nil {
			t.Fatalf("subscribe error: %v", err)
		}
	}
	return r
}

func (r *recorder) utteranceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.utterances)
}

func (r *recorder) lastUtterance(t *testing.T) events.UtteranceReady {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.utterances) == 0 {
		t.Fatal("no UtteranceReady events recorded")
	}
	return r.utterances[len(r.utterances)-1]
}

func (r *recorder) lastStop(t *testing.T) events.RecordingStop {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stops) == 0 {
		t.Fatal("no RecordingStop events recorded")
	}
	return r.stops[len(r.stops)-1]
}

func (r *recorder) stopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stops)
}

func (r *recorder) lastEnd(t *testing.T) events.SessionEnd {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ends) == 0 {
		t.Fatal("no SessionEnd events recorded")
	}
	return r.ends[len(r.ends)-1]
}

func (r *recorder) errorKinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, len(r.errs))
	for i, e := range r.errs {
		kinds[i] = e.Kind
	}
	return kinds
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline: %s", msg)
}

func longHandle(locator string) *mock.Handle {
	return &mock.Handle{StopResult: capture.Result{
		Locator:  locator,
		Duration: 2 * time.Second,
	}}
}

func TestStartSessionIsIdempotent(t *testing.T) {
	t.Parallel()

	c, _ := newController(t, &mock.Device{}, fastTiming())
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}
	id := c.SessionID()
	if id == "" {
		t.Fatal("SessionID() empty after StartSession")
	}

	if err := c.StartSession(ctx); err != nil {
		t.Fatalf("second StartSession() error: %v", err)
	}
	if got := c.SessionID(); got != id {
		t.Errorf("SessionID() = %q after repeated start, want %q", got, id)
	}
	if got := c.State(); got != session.StateArmedIdle {
		t.Errorf("State() = %v, want armed_idle", got)
	}
}

func TestStartRecordingRequiresArmedSession(t *testing.T) {
	t.Parallel()

	c, _ := newController(t, &mock.Device{Handle: longHandle("r.pcm")}, fastTiming())
	ctx := context.Background()

	// Disarmed: there is no session for a recording to belong to.
	if err := c.StartRecording(ctx); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("StartRecording() from disarmed = %v, want ErrNoSession", err)
	}
	if err := c.StopRecording(ctx); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("StopRecording() from disarmed = %v, want ErrNoSession", err)
	}

	// Armed but mid-pipeline: the session exists, the transition is illegal.
	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); !errors.Is(err, session.ErrInvalidTransition) {
		t.Errorf("StartRecording() while recording = %v, want ErrInvalidTransition", err)
	}
}

func TestExplicitStopEmitsUtterance(t *testing.T) {
	t.Parallel()

	h := longHandle("u1.pcm")
	dev := &mock.Device{Handle: h}
	c, rec := newController(t, dev, fastTiming())
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording() error: %v", err)
	}
	if h.StartCallCount != 1 {
		t.Errorf("handle Start calls = %d, want 1", h.StartCallCount)
	}

	if err := c.StopRecording(ctx); err != nil {
		t.Fatalf("StopRecording() error: %v", err)
	}
	if got := c.State(); got != session.StateProcessing {
		t.Fatalf("State() = %v, want processing", got)
	}

	stop := rec.lastStop(t)
	if stop.Discarded {
		t.Error("RecordingStop.Discarded = true for a long recording")
	}
	if stop.StopReason != string(session.StopExplicit) {
		t.Errorf("StopReason = %q, want explicit", stop.StopReason)
	}

	utt := rec.lastUtterance(t)
	if utt.Locator != "u1.pcm" {
		t.Errorf("Locator = %q, want u1.pcm", utt.Locator)
	}
	if utt.Duration != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", utt.Duration)
	}
	if utt.Seq != 1 {
		t.Errorf("Seq = %d, want 1", utt.Seq)
	}

	if err := c.OnProcessingComplete(ctx, utt.UtteranceID); err != nil {
		t.Fatalf("OnProcessingComplete() error: %v", err)
	}
	if got := c.State(); got != session.StateArmedIdle {
		t.Errorf("State() after completion = %v, want armed_idle", got)
	}
}

func TestShortRecordingIsDiscarded(t *testing.T) {
	t.Parallel()

	h := &mock.Handle{StopResult: capture.Result{Locator: "blip.pcm", Duration: 10 * time.Millisecond}}
	dev := &mock.Device{Handle: h}
	c, rec := newController(t, dev, fastTiming())
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StopRecording(ctx); err != nil {
		t.Fatalf("StopRecording() error: %v", err)
	}

	if got := c.State(); got != session.StateArmedIdle {
		t.Errorf("State() = %v, want armed_idle after discard", got)
	}
	if !rec.lastStop(t).Discarded {
		t.Error("RecordingStop.Discarded = false for a sub-minimum recording")
	}
	if rec.utteranceCount() != 0 {
		t.Errorf("utterances emitted = %d, want 0", rec.utteranceCount())
	}
	if got := dev.DeletedLocators(); len(got) != 1 || got[0] != "blip.pcm" {
		t.Errorf("DeletedLocators() = %v, want [blip.pcm]", got)
	}
}

func TestSilenceTimerStopsRecording(t *testing.T) {
	t.Parallel()

	timing := fastTiming()
	timing.StopSilence = 60 * time.Millisecond
	h := longHandle("quiet.pcm")
	c, rec := newController(t, &mock.Device{Handle: h}, timing)
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return c.State() == session.StateProcessing },
		"silence timer did not stop the recording")

	if got := rec.lastStop(t).StopReason; got != string(session.StopSilence) {
		t.Errorf("StopReason = %q, want silence", got)
	}
	utt := rec.lastUtterance(t)
	if utt.Silence != timing.StopSilence {
		t.Errorf("Silence = %v, want %v", utt.Silence, timing.StopSilence)
	}
	if utt.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9 for a silence-bounded utterance", utt.Confidence)
	}
}

func TestSpeechDetectedExtendsRecording(t *testing.T) {
	t.Parallel()

	timing := fastTiming()
	timing.StopSilence = 200 * time.Millisecond
	c, _ := newController(t, &mock.Device{Handle: longHandle("talk.pcm")}, timing)
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}

	// Keep reporting speech well past the stop-silence window.
	for range 10 {
		time.Sleep(50 * time.Millisecond)
		c.OnSpeechDetected()
	}
	if got := c.State(); got != session.StateRecording {
		t.Fatalf("State() = %v while speech continues, want recording", got)
	}

	// Silence from here; the debounce should now run out.
	waitFor(t, func() bool { return c.State() == session.StateProcessing },
		"recording did not stop after speech ceased")
}

func TestMaxDurationCutsRecording(t *testing.T) {
	t.Parallel()

	timing := fastTiming()
	timing.StopSilence = 5 * time.Second
	timing.MaxUtterance = 60 * time.Millisecond
	c, rec := newController(t, &mock.Device{Handle: longHandle("cap.pcm")}, timing)
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return c.State() == session.StateProcessing },
		"max-duration cap did not stop the recording")

	if got := rec.lastStop(t).StopReason; got != string(session.StopMaxDuration) {
		t.Errorf("StopReason = %q, want max_duration", got)
	}
	if got := rec.lastUtterance(t).Confidence; got != 0.2 {
		t.Errorf("Confidence = %v, want 0.2 for a cut utterance", got)
	}
}

func TestRacingStopTimersStopOnce(t *testing.T) {
	t.Parallel()

	// Both timers due at the same instant; exactly one may win.
	timing := fastTiming()
	timing.StopSilence = 40 * time.Millisecond
	timing.MaxUtterance = 40 * time.Millisecond
	h := longHandle("race.pcm")
	c, rec := newController(t, &mock.Device{Handle: h}, timing)
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return c.State() == session.StateProcessing },
		"no stop timer fired")
	// Give the losing timer a chance to misbehave.
	time.Sleep(100 * time.Millisecond)

	if h.StopCallCount != 1 {
		t.Errorf("handle Stop calls = %d, want exactly 1", h.StopCallCount)
	}
	if got := rec.stopCount(); got != 1 {
		t.Errorf("RecordingStop events = %d, want 1", got)
	}
}

func TestAutoDisarm(t *testing.T) {
	t.Parallel()

	timing := fastTiming()
	timing.AutoDisarm = 50 * time.Millisecond
	c, rec := newController(t, &mock.Device{}, timing)

	if err := c.StartSession(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return c.State() == session.StateDisarmed },
		"idle session did not auto-disarm")

	if got := rec.lastEnd(t).Reason; got != string(session.ReasonAutoDisarm) {
		t.Errorf("SessionEnd.Reason = %q, want auto_disarm", got)
	}
	if got := c.SessionID(); got != "" {
		t.Errorf("SessionID() = %q after disarm, want empty", got)
	}
}

func TestEndSessionWhileRecordingFlushesUtterance(t *testing.T) {
	t.Parallel()

	c, rec := newController(t, &mock.Device{Handle: longHandle("final.pcm")}, fastTiming())
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.EndSession(ctx, session.ReasonUser); err != nil {
		t.Fatalf("EndSession() error: %v", err)
	}

	if got := c.State(); got != session.StateDisarmed {
		t.Errorf("State() = %v, want disarmed", got)
	}
	if rec.utteranceCount() != 1 {
		t.Fatalf("utterances = %d, want the in-flight recording flushed", rec.utteranceCount())
	}
	if got := rec.lastUtterance(t).Locator; got != "final.pcm" {
		t.Errorf("flushed Locator = %q, want final.pcm", got)
	}
	if got := rec.lastEnd(t).Reason; got != string(session.ReasonUser) {
		t.Errorf("SessionEnd.Reason = %q, want user", got)
	}
}

func TestAppBackgroundedDiscardsInFlightRecording(t *testing.T) {
	t.Parallel()

	h := longHandle("bg.pcm")
	dev := &mock.Device{Handle: h}
	c, rec := newController(t, dev, fastTiming())
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.EndSession(ctx, session.ReasonAppBackgrounded); err != nil {
		t.Fatalf("EndSession() error: %v", err)
	}

	if got := c.State(); got != session.StateDisarmed {
		t.Errorf("State() = %v, want disarmed", got)
	}
	if !h.Stopped() {
		t.Error("capture handle left open after backgrounding")
	}
	if rec.utteranceCount() != 0 {
		t.Errorf("utterances = %d, want 0: backgrounding must not flush", rec.utteranceCount())
	}
	if got := dev.DeletedLocators(); len(got) != 1 || got[0] != "bg.pcm" {
		t.Errorf("DeletedLocators() = %v, want [bg.pcm]", got)
	}
}

func TestDeferredCleanupDeletesRecording(t *testing.T) {
	t.Parallel()

	timing := fastTiming()
	timing.CleanupDelay = 40 * time.Millisecond
	dev := &mock.Device{Handle: longHandle("keep.pcm")}
	c, _ := newController(t, dev, timing)
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StopRecording(ctx); err != nil {
		t.Fatal(err)
	}

	if got := dev.DeletedLocators(); len(got) != 0 {
		t.Fatalf("recording deleted before cleanup delay: %v", got)
	}
	waitFor(t, func() bool {
		d := dev.DeletedLocators()
		return len(d) == 1 && d[0] == "keep.pcm"
	}, "deferred cleanup did not delete the recording")
}

func TestCloseLeavesSpooledRecordingsAlone(t *testing.T) {
	t.Parallel()

	timing := fastTiming()
	timing.CleanupDelay = 40 * time.Millisecond
	dev := &mock.Device{Handle: longHandle("spooled.pcm")}
	c, _ := newController(t, dev, timing)
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StopRecording(ctx); err != nil {
		t.Fatal(err)
	}

	// Close races the pending cleanup timer; whichever side wins, the
	// recording must stay on disk.
	c.Close()
	time.Sleep(120 * time.Millisecond)
	if got := dev.DeletedLocators(); len(got) != 0 {
		t.Errorf("DeletedLocators() = %v after Close, want none", got)
	}
}

func TestStartHoldCancelNeverOpensMic(t *testing.T) {
	t.Parallel()

	timing := fastTiming()
	timing.StartHold = 80 * time.Millisecond
	dev := &mock.Device{}
	c, _ := newController(t, dev, timing)
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording() error: %v", err)
	}
	c.CancelStart()

	time.Sleep(160 * time.Millisecond)
	if dev.OpenCallCount != 0 {
		t.Errorf("Open calls = %d after cancelled hold, want 0", dev.OpenCallCount)
	}
	if got := c.State(); got != session.StateArmedIdle {
		t.Errorf("State() = %v, want armed_idle", got)
	}
}

func TestStartHoldOpensAfterDelay(t *testing.T) {
	t.Parallel()

	timing := fastTiming()
	timing.StartHold = 30 * time.Millisecond
	c, _ := newController(t, &mock.Device{Handle: longHandle("held.pcm")}, timing)
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if got := c.State(); got != session.StateArmedIdle {
		t.Errorf("State() = %v during hold, want armed_idle", got)
	}
	waitFor(t, func() bool { return c.State() == session.StateRecording },
		"held start never opened the recording")
}

func TestCaptureOpenFailureKeepsSessionArmed(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{OpenErr: errors.New("input device busy")}
	c, rec := newController(t, dev, fastTiming())
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err == nil {
		t.Fatal("StartRecording() succeeded with a failing device")
	}

	if got := c.State(); got != session.StateArmedIdle {
		t.Errorf("State() = %v after open failure, want armed_idle", got)
	}
	kinds := rec.errorKinds()
	if len(kinds) != 1 || kinds[0] != string(session.KindCaptureOpenFailed) {
		t.Errorf("error kinds = %v, want [capture_open_failed]", kinds)
	}

	// The session stays usable: a later attempt with a working device path
	// is still a legal transition.
	dev.OpenErr = nil
	if err := c.StartRecording(ctx); err != nil {
		t.Errorf("StartRecording() after recovery error: %v", err)
	}
}

func TestPermissionDeniedEndsSession(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{OpenErr: capture.ErrPermissionDenied}
	c, rec := newController(t, dev, fastTiming())
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("StartRecording() = %v, want ErrPermissionDenied", err)
	}

	// A denial is not retried: the session is gone, not armed.
	if got := c.State(); got != session.StateDisarmed {
		t.Errorf("State() = %v after permission denial, want disarmed", got)
	}
	if got := c.SessionID(); got != "" {
		t.Errorf("SessionID() = %q after permission denial, want empty", got)
	}
	kinds := rec.errorKinds()
	if len(kinds) != 1 || kinds[0] != string(session.KindPermissionDenied) {
		t.Errorf("error kinds = %v, want [permission_denied]", kinds)
	}
	if got := rec.lastEnd(t).Reason; got != string(session.ReasonPermissionDenied) {
		t.Errorf("SessionEnd.Reason = %q, want permission_denied", got)
	}
	if err := c.StartRecording(ctx); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("StartRecording() after denial = %v, want ErrNoSession", err)
	}
}

func TestStopFailureRevertsToArmedIdle(t *testing.T) {
	t.Parallel()

	h := &mock.Handle{StopErr: errors.New("flush failed")}
	c, rec := newController(t, &mock.Device{Handle: h}, fastTiming())
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StopRecording(ctx); err == nil {
		t.Fatal("StopRecording() succeeded despite stop error")
	}

	if got := c.State(); got != session.StateArmedIdle {
		t.Errorf("State() = %v after stop failure, want armed_idle", got)
	}
	if rec.utteranceCount() != 0 {
		t.Errorf("utterances = %d after failed stop, want 0", rec.utteranceCount())
	}
	kinds := rec.errorKinds()
	if len(kinds) != 1 || kinds[0] != string(session.KindCaptureStopFailed) {
		t.Errorf("error kinds = %v, want [capture_stop_failed]", kinds)
	}
}

func TestStaleProcessingCompletionIsRejected(t *testing.T) {
	t.Parallel()

	c, rec := newController(t, &mock.Device{Handle: longHandle("p.pcm")}, fastTiming())
	ctx := context.Background()

	if err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StopRecording(ctx); err != nil {
		t.Fatal(err)
	}

	if err := c.OnProcessingComplete(ctx, "not-the-pending-utterance"); !errors.Is(err, session.ErrInvalidTransition) {
		t.Errorf("OnProcessingComplete(stale) = %v, want ErrInvalidTransition", err)
	}
	if got := c.State(); got != session.StateProcessing {
		t.Errorf("State() = %v after stale completion, want processing", got)
	}

	utt := rec.lastUtterance(t)
	if err := c.OnProcessingComplete(ctx, utt.UtteranceID); err != nil {
		t.Errorf("OnProcessingComplete(current) error: %v", err)
	}
}

func TestTimingFromConfig(t *testing.T) {
	t.Parallel()

	got := session.TimingFromConfig(config.SessionConfig{
		StartHoldMs:    250,
		StopSilenceMs:  2000,
		MinSpeechMs:    500,
		MaxUtteranceMs: 30000,
		AutoDisarmMs:   120000,
		CleanupDelayMs: 60000,
	})
	want := session.Timing{
		StartHold:    250 * time.Millisecond,
		StopSilence:  2 * time.Second,
		MinSpeech:    500 * time.Millisecond,
		MaxUtterance: 30 * time.Second,
		AutoDisarm:   2 * time.Minute,
		CleanupDelay: time.Minute,
	}
	if got != want {
		t.Errorf("TimingFromConfig() = %+v, want %+v", got, want)
	}
}
