// Package transcribe defines the Provider interface for the external
// transcription collaborator.
//
// The session controller hands a finished utterance (a recorded resource plus
// its measured duration) to a Provider and receives back the transcribed text
// and, when the backend supports it, the language the speaker was detected to
// use. Parley never retries a failed transcription; failures surface as typed
// events and the session returns to the armed-idle state.
//
// Implementations must be safe for concurrent use. Concrete backends live in
// subpackages (transcribe/whisper, transcribe/openai); tests use
// transcribe/mock.
package transcribe

import (
	"context"
	"time"
)

// Request describes one utterance to transcribe.
type Request struct {
	// Locator identifies the recorded audio resource, as produced by the
	// capture adapter (typically a file path).
	Locator string

	// Duration is the measured length of the recording. Backends may use it
	// to pick a timeout or reject implausibly long inputs.
	Duration time.Duration

	// AutoDetect asks the backend to identify the spoken language. When
	// false, Language is treated as ground truth.
	AutoDetect bool

	// Language is the expected language as a raw code (e.g. "en", "de").
	// Used as a recognition hint; may be empty when AutoDetect is set.
	Language string
}

// Result is the transcription outcome for a single utterance.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// DetectedLanguage is the raw language code the backend identified, or
	// empty when the backend does not report one. Callers must normalize it
	// before comparing (see pkg/langmatch).
	DetectedLanguage string
}

// Provider is the abstraction over any batch transcription backend.
type Provider interface {
	// Transcribe converts the recorded utterance described by req into
	// text. It blocks until the backend answers or ctx is cancelled.
	//
	// Returns an error when the backend is unreachable, rejects the audio,
	// or the response cannot be parsed. Errors are terminal for the
	// utterance — the caller does not retry.
	Transcribe(ctx context.Context, req Request) (Result, error)
}
