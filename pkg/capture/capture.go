// Package capture defines the microphone capture contract consumed by the
// parley session controller and segmenter.
//
// The two abstractions are:
//
//   - [Device] — opens recordings on a physical input and deletes the
//     resources they leave behind.
//   - [Handle] — one open recording. Exactly one Handle may be live per
//     Device at any instant; the session controller enforces this by owning
//     the Handle exclusively while recording.
//
// All operations are asynchronous with respect to the underlying platform
// audio stack and therefore take a context and return an error. Concrete
// adapters live in subpackages (e.g. capture/ffmpeg); tests use capture/mock.
//
// This package lives under pkg/ because platform adapters outside this repo
// are expected to implement [Device] and [Handle].
package capture

import (
	"context"
	"errors"
	"time"
)

// ErrHandleClosed is returned by Handle operations after Stop has completed.
var ErrHandleClosed = errors.New("capture: handle is closed")

// ErrPermissionDenied is returned (possibly wrapped) by adapters when the
// platform refuses microphone access. Callers treat it as fatal: no amount
// of retrying opens a microphone the OS has denied.
var ErrPermissionDenied = errors.New("capture: permission denied")

// SilenceFloorDB is the level reported by implementations when no signal is
// available yet (e.g. before the first samples arrive). It sits well below
// any plausible speech threshold.
const SilenceFloorDB = -96.0

// Result describes a finished recording as reported by [Handle.Stop].
type Result struct {
	// Locator identifies the recorded resource (typically a file path or
	// URI). Ownership of the resource passes to the caller; the caller is
	// responsible for eventually passing it to [Device.Delete].
	Locator string

	// Duration is the actual captured duration as measured by the adapter.
	// It may differ from wall-clock elapsed time when the platform drops or
	// pads samples.
	Duration time.Duration
}

// Handle represents one open microphone recording.
//
// A Handle is not safe for concurrent use; the owning component serializes
// access. Stop may be called at most once — subsequent calls and any call
// after Stop return [ErrHandleClosed].
type Handle interface {
	// Start begins capturing samples. Open handles do not capture until
	// Start is called, so callers can separate resource acquisition from
	// the moment recording actually begins.
	Start(ctx context.Context) error

	// Stop ends the recording, flushes buffered samples, and releases the
	// platform resources held by this handle. It returns the locator and
	// measured duration of the recording.
	Stop(ctx context.Context) (Result, error)

	// Level returns the current input signal level in dBFS (0 is full
	// scale, [SilenceFloorDB] is silence). Implementations should return
	// the level of roughly the last 100 ms of audio.
	Level(ctx context.Context) (float64, error)
}

// Device is the entry point for a microphone adapter.
//
// Implementations must be safe for concurrent use, although parley never
// holds more than one open Handle per Device.
type Device interface {
	// Open prepares a new recording and returns its Handle. The recording
	// does not capture audio until [Handle.Start] is called.
	//
	// Returns an error when the input is unavailable; when permission to
	// record has not been granted the error wraps [ErrPermissionDenied].
	Open(ctx context.Context) (Handle, error)

	// Delete removes the resource behind a locator previously returned by
	// [Handle.Stop]. Deleting an already-deleted or unknown locator is not
	// an error.
	Delete(ctx context.Context, locator string) error
}
