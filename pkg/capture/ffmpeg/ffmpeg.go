// Package ffmpeg implements capture.Device by shelling out to the ffmpeg
// binary. Each recording writes raw 16-bit little-endian mono PCM to a file
// in a spool directory; the signal level is computed from the tail of that
// file, so no second process is needed for metering.
//
// The package is a portability adapter: any platform with an ffmpeg build and
// a default input device works. The input backend defaults per GOOS and can
// be overridden with [WithInput].
package ffmpeg

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/parleylabs/parley/pkg/capture"
)

const (
	// sampleRate and channel layout match what downstream transcription
	// backends expect for speech audio.
	sampleRate = 16000
	channels   = 1

	bytesPerSample = 2

	// levelWindow is how much trailing audio the Level measurement covers.
	levelWindow = 100 * time.Millisecond
)

// Compile-time assertions that the adapter satisfies the capture contract.
var (
	_ capture.Device = (*Device)(nil)
	_ capture.Handle = (*handle)(nil)
)

// Option is a functional option for configuring a Device.
type Option func(*Device)

// WithBinary overrides the ffmpeg binary path. Defaults to "ffmpeg" resolved
// via PATH.
func WithBinary(path string) Option {
	return func(d *Device) { d.binary = path }
}

// WithInput overrides the ffmpeg input format and device (the -f and -i
// arguments). Defaults per GOOS: avfoundation/":default" on darwin,
// pulse/"default" on linux, dshow/"audio=default" on windows.
func WithInput(format, device string) Option {
	return func(d *Device) {
		d.inputFormat = format
		d.inputDevice = device
	}
}

// Device opens ffmpeg-backed microphone recordings into dir.
type Device struct {
	binary      string
	inputFormat string
	inputDevice string
	dir         string
}

// New creates a Device that spools recordings into dir, creating it if
// needed. Returns an error if the ffmpeg binary cannot be found.
func New(dir string, opts ...Option) (*Device, error) {
	d := &Device{
		binary: "ffmpeg",
		dir:    dir,
	}
	switch runtime.GOOS {
	case "darwin":
		d.inputFormat, d.inputDevice = "avfoundation", ":default"
	case "windows":
		d.inputFormat, d.inputDevice = "dshow", "audio=default"
	default:
		d.inputFormat, d.inputDevice = "pulse", "default"
	}
	for _, opt := range opts {
		opt(d)
	}

	if _, err := exec.LookPath(d.binary); err != nil {
		return nil, fmt.Errorf("ffmpeg: binary %q not found in PATH: %w", d.binary, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("ffmpeg: create spool dir %q: %v: %w", dir, err, capture.ErrPermissionDenied)
		}
		return nil, fmt.Errorf("ffmpeg: create spool dir: %w", err)
	}
	return d, nil
}

// Check verifies the device can still record: the ffmpeg binary resolves and
// the spool directory is writable. Serves the readiness endpoint.
func (d *Device) Check(_ context.Context) error {
	if _, err := exec.LookPath(d.binary); err != nil {
		return fmt.Errorf("ffmpeg: binary %q not found: %w", d.binary, err)
	}
	f, err := os.CreateTemp(d.dir, ".check-*")
	if err != nil {
		return fmt.Errorf("ffmpeg: spool dir %q not writable: %w", d.dir, err)
	}
	f.Close()
	_ = os.Remove(f.Name())
	return nil
}

// Open prepares a recording file and the ffmpeg command that will fill it.
// Capture does not begin until Start.
func (d *Device) Open(_ context.Context) (capture.Handle, error) {
	path := filepath.Join(d.dir, uuid.NewString()+".pcm")

	// -y: the spool file name is fresh but ffmpeg still insists on the flag.
	cmd := exec.Command(d.binary,
		"-f", d.inputFormat,
		"-i", d.inputDevice,
		"-ac", fmt.Sprint(channels),
		"-ar", fmt.Sprint(sampleRate),
		"-f", "s16le",
		"-y",
		path,
	)

	return &handle{cmd: cmd, path: path}, nil
}

// Delete removes the spool file behind locator. Missing files are ignored.
func (d *Device) Delete(_ context.Context, locator string) error {
	if err := os.Remove(locator); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ffmpeg: delete %q: %w", locator, err)
	}
	return nil
}

// handle is one in-flight ffmpeg recording.
type handle struct {
	cmd  *exec.Cmd
	path string

	mu        sync.Mutex
	started   time.Time
	stopped   bool
	waitErr   chan error
	startedOK bool
}

func (h *handle) Start(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return capture.ErrHandleClosed
	}
	if h.startedOK {
		return nil
	}
	if err := h.cmd.Start(); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("ffmpeg: start capture: %v: %w", err, capture.ErrPermissionDenied)
		}
		return fmt.Errorf("ffmpeg: start capture: %w", err)
	}
	h.started = time.Now()
	h.startedOK = true
	h.waitErr = make(chan error, 1)
	go func() { h.waitErr <- h.cmd.Wait() }()
	return nil
}

func (h *handle) Stop(ctx context.Context) (capture.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return capture.Result{}, capture.ErrHandleClosed
	}
	h.stopped = true

	if !h.startedOK {
		// Opened but never started: nothing was written.
		return capture.Result{Locator: h.path, Duration: 0}, nil
	}

	// SIGINT lets ffmpeg flush its output cleanly; SIGKILL would truncate
	// the final buffer.
	if err := h.cmd.Process.Signal(syscall.SIGINT); err != nil {
		_ = h.cmd.Process.Kill()
	}
	select {
	case <-h.waitErr:
	case <-ctx.Done():
		_ = h.cmd.Process.Kill()
		<-h.waitErr
	}

	dur, err := pcmDuration(h.path)
	if err != nil {
		return capture.Result{}, fmt.Errorf("ffmpeg: measure recording: %w", err)
	}
	return capture.Result{Locator: h.path, Duration: dur}, nil
}

func (h *handle) Level(_ context.Context) (float64, error) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return 0, capture.ErrHandleClosed
	}
	path := h.path
	h.mu.Unlock()

	return tailLevelDB(path, levelWindow)
}

// pcmDuration derives the captured duration from the spool file size.
func pcmDuration(path string) (time.Duration, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	samples := fi.Size() / bytesPerSample
	return time.Duration(samples) * time.Second / sampleRate, nil
}

// tailLevelDB computes the RMS level, in dBFS, of the last window of audio in
// the spool file. Returns capture.SilenceFloorDB while the file is still
// empty.
func tailLevelDB(path string, window time.Duration) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return capture.SilenceFloorDB, nil
		}
		return 0, fmt.Errorf("ffmpeg: open spool file: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("ffmpeg: stat spool file: %w", err)
	}

	windowBytes := int64(window.Seconds()*sampleRate) * bytesPerSample
	// Keep sample alignment when seeking into the tail.
	windowBytes -= windowBytes % bytesPerSample

	offset := fi.Size() - windowBytes
	if offset < 0 {
		offset = 0
	}
	offset -= offset % bytesPerSample

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("ffmpeg: seek spool file: %w", err)
	}
	buf, err := io.ReadAll(f)
	if err != nil {
		return 0, fmt.Errorf("ffmpeg: read spool tail: %w", err)
	}
	return rmsDB(buf), nil
}

// rmsDB converts a buffer of 16-bit little-endian PCM to an RMS level in
// dBFS. Empty or all-zero buffers report capture.SilenceFloorDB.
func rmsDB(pcm []byte) float64 {
	n := len(pcm) / bytesPerSample
	if n == 0 {
		return capture.SilenceFloorDB
	}

	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
		v := float64(s) / 32768.0
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(n))
	if rms <= 0 {
		return capture.SilenceFloorDB
	}

	db := 20 * math.Log10(rms)
	if db < capture.SilenceFloorDB {
		db = capture.SilenceFloorDB
	}
	return db
}
