// Package turn attributes utterances to one of the two conversation
// participants and picks the translation direction.
//
// In auto mode the detected language is matched against each participant's
// configured language; when neither matches (or nothing was detected) the
// router falls back to strict alternation from the last attributed speaker
// and flags the decision as unconfident. In manual mode the direction is
// fixed by configuration and detection is advisory: a mismatch against the
// declared source raises a warning but proceeds, while detecting the target
// language itself refuses the utterance, since translating a sentence into
// the language it is already in helps no one.
package turn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/parleylabs/parley/internal/config"
	"github.com/parleylabs/parley/internal/events"
	"github.com/parleylabs/parley/internal/observe"
	"github.com/parleylabs/parley/pkg/langmatch"
)

// Speaker identifies one of the two conversation participants.
type Speaker string

const (
	SpeakerA Speaker = "a"
	SpeakerB Speaker = "b"
)

// Participant is one side of the conversation.
type Participant struct {
	// Language is the participant's language as a raw code ("en", "pt-BR").
	Language string

	// DisplayName is an optional UI label.
	DisplayName string
}

// ParticipantFromConfig converts the config schema.
func ParticipantFromConfig(pc config.ParticipantConfig) Participant {
	return Participant{Language: pc.Language, DisplayName: pc.DisplayName}
}

// Decision is an auto-mode attribution.
type Decision struct {
	Speaker Speaker

	// SourceLanguage is the language the utterance is assumed to be in:
	// the detected language when the match was confident, otherwise the
	// attributed speaker's configured language.
	SourceLanguage string

	// TargetLanguage is the other participant's language.
	TargetLanguage string

	// Confident is false when the attribution came from the alternation
	// fallback rather than a language match.
	Confident bool
}

// ManualDecision is a manual-mode routing outcome.
type ManualDecision struct {
	SourceLanguage string
	TargetLanguage string

	// Warned is true when detection disagreed with the declared source;
	// the utterance still proceeds.
	Warned bool

	// Refused is true when the detected language was the target itself;
	// the utterance must not be translated.
	Refused bool
}

// Router determines speakers and translation direction for a two-party
// conversation. It is safe for concurrent use.
type Router struct {
	mu      sync.Mutex
	log     *slog.Logger
	metrics *observe.Metrics
	bus     *events.Bus

	a, b        Participant
	lastSpeaker Speaker
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.log = l }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// New creates a Router for participants a and b. The alternation fallback
// starts with a: the person who armed the device usually speaks first.
func New(a, b Participant, bus *events.Bus, opts ...Option) *Router {
	r := &Router{a: a, b: b, bus: bus}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	r.log = r.log.With(slog.String("component", "turn"))
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Participants returns the current participant pair.
func (r *Router) Participants() (a, b Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.a, r.b
}

// UpdateParticipants replaces both participants and resets the alternation
// state, since history against the old pair says nothing about the new one.
func (r *Router) UpdateParticipants(a, b Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.a = a
	r.b = b
	r.lastSpeaker = ""
	r.log.Info("participants updated",
		slog.String("a", a.Language),
		slog.String("b", b.Language))
}

// Swap exchanges the two participants (and therefore the manual-mode
// direction) and resets the alternation state.
func (r *Router) Swap() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.a, r.b = r.b, r.a
	r.lastSpeaker = ""
	r.log.Info("participants swapped",
		slog.String("a", r.a.Language),
		slog.String("b", r.b.Language))
}

// DetermineSpeaker attributes an utterance in auto mode. detected may be
// empty when the transcriber reported no language.
func (r *Router) DetermineSpeaker(ctx context.Context, sessionID, utteranceID, detected string) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	var d Decision
	switch {
	case detected != "" && langmatch.CloseMatch(detected, r.a.Language):
		d = Decision{Speaker: SpeakerA, SourceLanguage: detected, TargetLanguage: r.b.Language, Confident: true}
	case detected != "" && langmatch.CloseMatch(detected, r.b.Language):
		d = Decision{Speaker: SpeakerB, SourceLanguage: detected, TargetLanguage: r.a.Language, Confident: true}
	default:
		next := SpeakerA
		if r.lastSpeaker == SpeakerA {
			next = SpeakerB
		}
		d = Decision{Speaker: next, Confident: false}
		if next == SpeakerA {
			d.SourceLanguage = r.a.Language
			d.TargetLanguage = r.b.Language
		} else {
			d.SourceLanguage = r.b.Language
			d.TargetLanguage = r.a.Language
		}
		r.metrics.SpeakerFallbacks.Add(ctx, 1)
		r.log.Debug("alternation fallback",
			slog.String("detected", detected),
			slog.String("speaker", string(next)))
	}
	r.lastSpeaker = d.Speaker

	r.bus.PublishSpeakerDetermined(events.SpeakerDetermined{
		SessionID:      sessionID,
		UtteranceID:    utteranceID,
		Speaker:        string(d.Speaker),
		TargetLanguage: d.TargetLanguage,
		Confident:      d.Confident,
	})
	return d
}

// DecideManual routes an utterance in manual mode, where participant a is
// the fixed source and participant b the fixed target. detected may be
// empty; detection never changes the direction, only warns or refuses.
func (r *Router) DecideManual(ctx context.Context, sessionID, utteranceID, detected string) ManualDecision {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := ManualDecision{
		SourceLanguage: r.a.Language,
		TargetLanguage: r.b.Language,
	}

	switch {
	case detected == "":
		// Nothing detected; trust the configuration.
	case langmatch.CloseMatch(detected, r.b.Language):
		d.Refused = true
		r.metrics.ManualRefusals.Add(ctx, 1)
		r.bus.PublishWarning(events.Warning{
			SessionID: sessionID,
			Kind:      "manual_target_detected",
			Detail: fmt.Sprintf("detected language %q is the translation target %q; refusing",
				detected, r.b.Language),
		})
		r.log.Warn("manual-mode utterance refused",
			slog.String("utterance_id", utteranceID),
			slog.String("detected", detected))
	case !langmatch.CloseMatch(detected, r.a.Language):
		d.Warned = true
		r.bus.PublishWarning(events.Warning{
			SessionID: sessionID,
			Kind:      "manual_source_mismatch",
			Detail: fmt.Sprintf("detected language %q does not match declared source %q",
				detected, r.a.Language),
		})
		r.log.Warn("manual-mode source mismatch",
			slog.String("utterance_id", utteranceID),
			slog.String("detected", detected))
	}
	return d
}
