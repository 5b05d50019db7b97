// Package mock provides test doubles for the capture package interfaces.
//
// Use Device to verify open/delete sequencing and Handle to script levels and
// stop results. All fields may be set before use; call records are appended
// under an internal mutex so tests may drive the doubles from timer
// goroutines.
//
// Example:
//
//	h := &mock.Handle{StopResult: capture.Result{Locator: "a.pcm", Duration: 2 * time.Second}}
//	dev := &mock.Device{Handle: h}
package mock

import (
	"context"
	"sync"

	"github.com/parleylabs/parley/pkg/capture"
)

// Device is a mock implementation of capture.Device.
type Device struct {
	mu sync.Mutex

	// Handle is returned by Open. If nil, Open returns a new default Handle.
	Handle capture.Handle

	// OpenErr, if non-nil, is returned as the error from Open.
	OpenErr error

	// DeleteErr, if non-nil, is returned by Delete.
	DeleteErr error

	// CheckErr, if non-nil, is returned by Check.
	CheckErr error

	// OpenCallCount is the number of times Open was called.
	OpenCallCount int

	// Deleted records every locator passed to Delete in order.
	Deleted []string

	// opened records handles created by Open when Handle is nil.
	opened []*Handle
}

// Open records the call and returns Handle, OpenErr.
func (d *Device) Open(_ context.Context) (capture.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCallCount++
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if d.Handle != nil {
		return d.Handle, nil
	}
	h := &Handle{}
	d.opened = append(d.opened, h)
	return h, nil
}

// Delete records the locator and returns DeleteErr.
func (d *Device) Delete(_ context.Context, locator string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Deleted = append(d.Deleted, locator)
	return d.DeleteErr
}

// Check returns CheckErr, mirroring the readiness checks on real adapters.
func (d *Device) Check(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CheckErr
}

// SetCheckErr updates the error returned by Check. Thread-safe.
func (d *Device) SetCheckErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CheckErr = err
}

// SetOpenErr updates the error returned by Open. Thread-safe, for tests that
// fail a device while a poll loop is driving it.
func (d *Device) SetOpenErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenErr = err
}

// OpenCalls returns the number of Open calls so far. Thread-safe.
func (d *Device) OpenCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.OpenCallCount
}

// DeletedLocators returns a copy of the locators passed to Delete so far.
func (d *Device) DeletedLocators() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.Deleted))
	copy(out, d.Deleted)
	return out
}

// Opened returns the handles created by Open when no fixed Handle was set.
func (d *Device) Opened() []*Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Handle, len(d.opened))
	copy(out, d.opened)
	return out
}

// Ensure Device implements capture.Device at compile time.
var _ capture.Device = (*Device)(nil)

// Handle is a mock implementation of capture.Handle.
type Handle struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StopResult is returned by the first Stop call.
	StopResult capture.Result

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// LevelResult is returned by Level. Tests may change it between polls
	// via SetLevel.
	LevelResult float64

	// LevelErr, if non-nil, is returned by Level.
	LevelErr error

	// --- Call records ---

	// StartCallCount is the number of times Start was called.
	StartCallCount int

	// StopCallCount is the number of times Stop was called.
	StopCallCount int

	// LevelCallCount is the number of times Level was called.
	LevelCallCount int

	stopped bool
}

// Start records the call and returns StartErr.
func (h *Handle) Start(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.StartCallCount++
	if h.stopped {
		return capture.ErrHandleClosed
	}
	return h.StartErr
}

// Stop records the call. The first call returns StopResult, StopErr; later
// calls return capture.ErrHandleClosed.
func (h *Handle) Stop(_ context.Context) (capture.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.StopCallCount++
	if h.stopped {
		return capture.Result{}, capture.ErrHandleClosed
	}
	h.stopped = true
	return h.StopResult, h.StopErr
}

// Level records the call and returns LevelResult, LevelErr.
func (h *Handle) Level(_ context.Context) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LevelCallCount++
	if h.stopped {
		return 0, capture.ErrHandleClosed
	}
	return h.LevelResult, h.LevelErr
}

// SetStopResult updates the result returned by the first Stop call.
// Thread-safe, for tests that script a handle after a timer opened it.
func (h *Handle) SetStopResult(res capture.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.StopResult = res
}

// SetLevel updates the level returned by subsequent Level calls. Thread-safe.
func (h *Handle) SetLevel(db float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LevelResult = db
}

// Stopped reports whether Stop has completed on this handle.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Ensure Handle implements capture.Handle at compile time.
var _ capture.Handle = (*Handle)(nil)
