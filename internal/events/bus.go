// Package events is the typed event surface of the parley core.
//
// The session controller, segmenter, and turn router publish here; the app
// orchestration and the gateway subscribe. Topics are process-local and
// delivered synchronously in publish order over an underlying
// asaskevich/EventBus, which keeps the core single-threaded-cooperative:
// a handler runs to completion before the publisher continues.
//
// Payload structs are plain data with JSON tags so the gateway can forward
// them to the UI layer without translation.
package events

import (
	"time"

	evbus "github.com/asaskevich/EventBus"
)

// Topic names. Subscribers use the typed Subscribe* helpers; the constants
// are exported for the gateway's envelope labels.
const (
	TopicStateChange        = "session.state"
	TopicSessionStart       = "session.start"
	TopicSessionEnd         = "session.end"
	TopicRecordingStart     = "recording.start"
	TopicRecordingStop      = "recording.stop"
	TopicUtteranceReady     = "utterance.ready"
	TopicProcessingStart    = "processing.start"
	TopicProcessingComplete = "processing.complete"
	TopicSpeakerDetermined  = "turn.speaker"
	TopicTranscriptReady    = "turn.transcript"
	TopicWarning            = "core.warning"
	TopicError              = "core.error"
)

// StateChange reports a session controller transition.
type StateChange struct {
	SessionID string `json:"sessionId"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// SessionStart reports that a listening session was armed.
type SessionStart struct {
	SessionID string `json:"sessionId"`
}

// SessionEnd reports that a session was disarmed and why.
type SessionEnd struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

// RecordingStart reports that an utterance recording opened.
type RecordingStart struct {
	SessionID string `json:"sessionId"`
	Seq       int    `json:"seq"`
}

// RecordingStop reports that an utterance recording closed.
type RecordingStop struct {
	SessionID  string        `json:"sessionId"`
	Seq        int           `json:"seq"`
	Duration   time.Duration `json:"duration"`
	Discarded  bool          `json:"discarded"`
	StopReason string        `json:"stopReason"`
}

// UtteranceReady carries a completed utterance to the transcription stage.
type UtteranceReady struct {
	SessionID   string        `json:"sessionId"`
	UtteranceID string        `json:"utteranceId"`
	Seq         int           `json:"seq"`
	Locator     string        `json:"locator"`
	Duration    time.Duration `json:"duration"`
	Silence     time.Duration `json:"silence"`
	Confidence  float64       `json:"confidence"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// ProcessingStart reports the transcription stage beginning for an utterance.
type ProcessingStart struct {
	SessionID   string `json:"sessionId"`
	UtteranceID string `json:"utteranceId"`
}

// ProcessingComplete reports the transcription stage finishing.
type ProcessingComplete struct {
	SessionID   string `json:"sessionId"`
	UtteranceID string `json:"utteranceId"`
}

// SpeakerDetermined reports the turn router's attribution for an utterance.
type SpeakerDetermined struct {
	SessionID      string `json:"sessionId"`
	UtteranceID    string `json:"utteranceId"`
	Speaker        string `json:"speaker"`
	TargetLanguage string `json:"targetLanguage"`
	Confident      bool   `json:"confident"`
}

// TranscriptReady carries the transcribed, attributed utterance outward for
// translation and display.
type TranscriptReady struct {
	SessionID        string `json:"sessionId"`
	UtteranceID      string `json:"utteranceId"`
	Text             string `json:"text"`
	DetectedLanguage string `json:"detectedLanguage,omitempty"`
	Speaker          string `json:"speaker,omitempty"`
	SourceLanguage   string `json:"sourceLanguage"`
	TargetLanguage   string `json:"targetLanguage,omitempty"`
	Confident        bool   `json:"confident"`
	Refused          bool   `json:"refused"`
}

// Warning is a non-fatal advisory (e.g. manual-mode language mismatch).
type Warning struct {
	SessionID string `json:"sessionId"`
	Kind      string `json:"kind"`
	Detail    string `json:"detail"`
}

// Error is a typed, surfaced failure. Kind values come from the session
// error taxonomy (session.ErrorKind strings).
type Error struct {
	SessionID string `json:"sessionId"`
	Kind      string `json:"kind"`
	Context   string `json:"context"`
}

// Bus is a synchronous, process-local publish/subscribe hub.
//
// The zero value is not usable; create one with [New]. Publishing with no
// subscribers is a no-op, so components publish unconditionally.
type Bus struct {
	bus evbus.Bus
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{bus: evbus.New()}
}

func (b *Bus) PublishStateChange(e StateChange)               { b.bus.Publish(TopicStateChange, e) }
func (b *Bus) PublishSessionStart(e SessionStart)             { b.bus.Publish(TopicSessionStart, e) }
func (b *Bus) PublishSessionEnd(e SessionEnd)                 { b.bus.Publish(TopicSessionEnd, e) }
func (b *Bus) PublishRecordingStart(e RecordingStart)         { b.bus.Publish(TopicRecordingStart, e) }
func (b *Bus) PublishRecordingStop(e RecordingStop)           { b.bus.Publish(TopicRecordingStop, e) }
func (b *Bus) PublishUtteranceReady(e UtteranceReady)         { b.bus.Publish(TopicUtteranceReady, e) }
func (b *Bus) PublishProcessingStart(e ProcessingStart)       { b.bus.Publish(TopicProcessingStart, e) }
func (b *Bus) PublishProcessingComplete(e ProcessingComplete) { b.bus.Publish(TopicProcessingComplete, e) }
func (b *Bus) PublishSpeakerDetermined(e SpeakerDetermined)   { b.bus.Publish(TopicSpeakerDetermined, e) }
func (b *Bus) PublishTranscriptReady(e TranscriptReady)       { b.bus.Publish(TopicTranscriptReady, e) }
func (b *Bus) PublishWarning(e Warning)                       { b.bus.Publish(TopicWarning, e) }
func (b *Bus) PublishError(e Error)                           { b.bus.Publish(TopicError, e) }

func (b *Bus) SubscribeStateChange(fn func(StateChange)) error {
	return b.bus.Subscribe(TopicStateChange, fn)
}

func (b *Bus) SubscribeSessionStart(fn func(SessionStart)) error {
	return b.bus.Subscribe(TopicSessionStart, fn)
}

func (b *Bus) SubscribeSessionEnd(fn func(SessionEnd)) error {
	return b.bus.Subscribe(TopicSessionEnd, fn)
}

func (b *Bus) SubscribeRecordingStart(fn func(RecordingStart)) error {
	return b.bus.Subscribe(TopicRecordingStart, fn)
}

func (b *Bus) SubscribeRecordingStop(fn func(RecordingStop)) error {
	return b.bus.Subscribe(TopicRecordingStop, fn)
}

func (b *Bus) SubscribeUtteranceReady(fn func(UtteranceReady)) error {
	return b.bus.Subscribe(TopicUtteranceReady, fn)
}

func (b *Bus) SubscribeProcessingStart(fn func(ProcessingStart)) error {
	return b.bus.Subscribe(TopicProcessingStart, fn)
}

func (b *Bus) SubscribeProcessingComplete(fn func(ProcessingComplete)) error {
	return b.bus.Subscribe(TopicProcessingComplete, fn)
}

func (b *Bus) SubscribeSpeakerDetermined(fn func(SpeakerDetermined)) error {
	return b.bus.Subscribe(TopicSpeakerDetermined, fn)
}

func (b *Bus) SubscribeTranscriptReady(fn func(TranscriptReady)) error {
	return b.bus.Subscribe(TopicTranscriptReady, fn)
}

func (b *Bus) SubscribeWarning(fn func(Warning)) error {
	return b.bus.Subscribe(TopicWarning, fn)
}

func (b *Bus) SubscribeError(fn func(Error)) error {
	return b.bus.Subscribe(TopicError, fn)
}

// Unsubscribe removes a previously registered handler for topic. The fn
// argument must be the identical function value passed to Subscribe.
func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.bus.Unsubscribe(topic, fn)
}
