// Package session implements the microphone session lifecycle controller.
//
// A Controller owns the explicit arm/disarm lifecycle of a listening
// session, the single live capture handle, and every session-scoped timer.
// It is the only component that transitions recording state; stale timer
// firings and late segmenter events are dropped rather than queued, so a
// since-ended utterance can never resurrect state.
package session

import "errors"

// State enumerates the session lifecycle states. Transitions follow a fixed
// graph; anything else is rejected with [ErrInvalidTransition] and logged.
type State int

const (
	// StateDisarmed is the resting state: no microphone access, no timers.
	StateDisarmed State = iota

	// StateArmedIdle means the session is armed and waiting for a
	// recording to start. Only the auto-disarm timer runs.
	StateArmedIdle

	// StateRecording means a capture handle is open and filling.
	StateRecording

	// StateStopping is the transient state while the capture handle is
	// being stopped and measured.
	StateStopping

	// StateProcessing means a completed utterance has been emitted and the
	// controller is waiting for the processing stage to finish.
	StateProcessing
)

// String returns the snake_case name used on the event surface.
func (s State) String() string {
	switch s {
	case StateDisarmed:
		return "disarmed"
	case StateArmedIdle:
		return "armed_idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// EndReason says why a session was disarmed.
type EndReason string

const (
	// ReasonUser is an explicit user disarm.
	ReasonUser EndReason = "user"

	// ReasonAutoDisarm is the inactivity timeout.
	ReasonAutoDisarm EndReason = "auto_disarm"

	// ReasonAppBackgrounded means the app lost the foreground. The session
	// ends immediately with no debounce: foreground presence is the privacy
	// invariant that permits an open microphone at all.
	ReasonAppBackgrounded EndReason = "app_backgrounded"

	// ReasonNavigatedAway means the user left the conversation surface.
	// Same immediacy as ReasonAppBackgrounded.
	ReasonNavigatedAway EndReason = "navigated_away"

	// ReasonPermissionDenied means the platform refused microphone access.
	// The controller disarms rather than retrying against a denial that
	// only a settings change can lift.
	ReasonPermissionDenied EndReason = "permission_denied"
)

// Immediate reports whether the reason demands unconditional teardown with
// no pending-utterance flush.
func (r EndReason) Immediate() bool {
	return r == ReasonAppBackgrounded || r == ReasonNavigatedAway
}

// StopReason says why a recording stopped.
type StopReason string

const (
	StopSilence     StopReason = "silence"
	StopMaxDuration StopReason = "max_duration"
	StopExplicit    StopReason = "explicit"
	StopSessionEnd  StopReason = "session_end"
)

// ErrorKind classifies surfaced failures for the event surface.
type ErrorKind string

const (
	// KindPermissionDenied is fatal to session start; never retried.
	KindPermissionDenied ErrorKind = "permission_denied"

	// KindCaptureOpenFailed and KindCaptureStopFailed are recovered
	// locally: the controller reverts to the nearest safe state and the
	// session remains usable for the next utterance.
	KindCaptureOpenFailed ErrorKind = "capture_open_failed"
	KindCaptureStopFailed ErrorKind = "capture_stop_failed"

	// KindTranscriptionFailed is surfaced upward by the app layer; the
	// session returns to armed-idle with no automatic retry.
	KindTranscriptionFailed ErrorKind = "transcription_failed"
)

// ErrInvalidTransition is returned when an operation is not legal in the
// current state.
var ErrInvalidTransition = errors.New("session: invalid state transition")

// ErrNoSession is returned by recording operations invoked while the
// controller is disarmed: there is no session for the recording to belong to.
var ErrNoSession = errors.New("session: no active session")
