package turn_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/parleylabs/parley/internal/events"
	"github.com/parleylabs/parley/internal/observe"
	"github.com/parleylabs/parley/internal/turn"
)

type warningRecorder struct {
	mu       sync.Mutex
	warnings []events.Warning
}

func (w *warningRecorder) kinds() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.warnings))
	for i, e := range w.warnings {
		out[i] = e.Kind
	}
	return out
}

func newRouter(t *testing.T, a, b turn.Participant) (*turn.Router, *warningRecorder) {
	t.Helper()

	bus := events.New()
	rec := &warningRecorder{}
	if err := bus.SubscribeWarning(func(e events.Warning) {
		rec.mu.Lock()
		rec.warnings = append(rec.warnings, e)
		rec.mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}

	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics() error: %v", err)
	}

	return turn.New(a, b, bus,
		turn.WithMetrics(m),
		turn.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	), rec
}

func english() turn.Participant { return turn.Participant{Language: "en", DisplayName: "Alice"} }
func brazilian() turn.Participant { return turn.Participant{Language: "pt-BR", DisplayName: "Bruno"} }

func TestDetermineSpeakerMatchesParticipants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		detected   string
		wantWho    turn.Speaker
		wantTarget string
	}{
		{name: "exact A", detected: "en", wantWho: turn.SpeakerA, wantTarget: "pt-BR"},
		{name: "regional variant of A", detected: "en-GB", wantWho: turn.SpeakerA, wantTarget: "pt-BR"},
		{name: "ISO 639-3 variant of A", detected: "eng", wantWho: turn.SpeakerA, wantTarget: "pt-BR"},
		{name: "base language of B", detected: "pt", wantWho: turn.SpeakerB, wantTarget: "en"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r, _ := newRouter(t, english(), brazilian())
			d := r.DetermineSpeaker(context.Background(), "s1", "u1", tc.detected)
			if d.Speaker != tc.wantWho {
				t.Errorf("Speaker = %q, want %q", d.Speaker, tc.wantWho)
			}
			if d.TargetLanguage != tc.wantTarget {
				t.Errorf("TargetLanguage = %q, want %q", d.TargetLanguage, tc.wantTarget)
			}
			if !d.Confident {
				t.Error("Confident = false for a direct language match")
			}
		})
	}
}

func TestDetermineSpeakerAlternationFallback(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(t, english(), brazilian())
	ctx := context.Background()

	// Unknown language: attribution alternates, starting with A.
	first := r.DetermineSpeaker(ctx, "s1", "u1", "de")
	if first.Speaker != turn.SpeakerA {
		t.Errorf("first fallback Speaker = %q, want a", first.Speaker)
	}
	if first.Confident {
		t.Error("Confident = true for a fallback attribution")
	}

	second := r.DetermineSpeaker(ctx, "s1", "u2", "")
	if second.Speaker != turn.SpeakerB {
		t.Errorf("second fallback Speaker = %q, want b", second.Speaker)
	}
	if second.TargetLanguage != "en" {
		t.Errorf("TargetLanguage = %q, want en", second.TargetLanguage)
	}

	third := r.DetermineSpeaker(ctx, "s1", "u3", "unknown-lang")
	if third.Speaker != turn.SpeakerA {
		t.Errorf("third fallback Speaker = %q, want a", third.Speaker)
	}
}

func TestDetermineSpeakerMatchResetsAlternation(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(t, english(), brazilian())
	ctx := context.Background()

	// A confident match on B, then an unknown: alternation continues from
	// the matched speaker, not from the fallback chain.
	if d := r.DetermineSpeaker(ctx, "s1", "u1", "pt"); d.Speaker != turn.SpeakerB {
		t.Fatalf("Speaker = %q, want b", d.Speaker)
	}
	if d := r.DetermineSpeaker(ctx, "s1", "u2", ""); d.Speaker != turn.SpeakerA {
		t.Errorf("Speaker after B = %q, want a", d.Speaker)
	}
}

func TestUpdateParticipantsResetsAlternation(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(t, english(), brazilian())
	ctx := context.Background()

	r.DetermineSpeaker(ctx, "s1", "u1", "") // a
	r.UpdateParticipants(english(), turn.Participant{Language: "es"})

	if d := r.DetermineSpeaker(ctx, "s1", "u2", ""); d.Speaker != turn.SpeakerA {
		t.Errorf("Speaker after participant update = %q, want a (reset)", d.Speaker)
	}
}

func TestSwapReversesDirection(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(t, english(), brazilian())
	r.Swap()

	a, b := r.Participants()
	if a.Language != "pt-BR" || b.Language != "en" {
		t.Errorf("Participants() after Swap = %q/%q, want pt-BR/en", a.Language, b.Language)
	}

	d := r.DecideManual(context.Background(), "s1", "u1", "")
	if d.SourceLanguage != "pt-BR" || d.TargetLanguage != "en" {
		t.Errorf("manual direction after Swap = %q→%q, want pt-BR→en",
			d.SourceLanguage, d.TargetLanguage)
	}
}

func TestDecideManualProceedsQuietly(t *testing.T) {
	t.Parallel()

	r, rec := newRouter(t, english(), brazilian())

	for _, detected := range []string{"", "en", "en-US", "eng"} {
		d := r.DecideManual(context.Background(), "s1", "u1", detected)
		if d.Warned || d.Refused {
			t.Errorf("DecideManual(%q) = warned=%v refused=%v, want clean pass",
				detected, d.Warned, d.Refused)
		}
	}
	if got := rec.kinds(); len(got) != 0 {
		t.Errorf("warnings = %v, want none", got)
	}
}

func TestDecideManualWarnsOnSourceMismatch(t *testing.T) {
	t.Parallel()

	r, rec := newRouter(t, english(), brazilian())

	d := r.DecideManual(context.Background(), "s1", "u1", "fr")
	if !d.Warned {
		t.Error("Warned = false for a source mismatch")
	}
	if d.Refused {
		t.Error("Refused = true for a source mismatch; mismatches must proceed")
	}
	if d.SourceLanguage != "en" || d.TargetLanguage != "pt-BR" {
		t.Errorf("direction = %q→%q, want en→pt-BR unchanged", d.SourceLanguage, d.TargetLanguage)
	}
	if got := rec.kinds(); len(got) != 1 || got[0] != "manual_source_mismatch" {
		t.Errorf("warning kinds = %v, want [manual_source_mismatch]", got)
	}
}

func TestDecideManualRefusesTargetLanguage(t *testing.T) {
	t.Parallel()

	r, rec := newRouter(t, english(), brazilian())

	// Detecting the target (in any spelling) must refuse, never warn-and-go.
	for _, detected := range []string{"pt", "pt-BR", "por"} {
		d := r.DecideManual(context.Background(), "s1", "u1", detected)
		if !d.Refused {
			t.Errorf("DecideManual(%q).Refused = false, want true", detected)
		}
		if d.Warned {
			t.Errorf("DecideManual(%q).Warned = true on refusal", detected)
		}
	}
	kinds := rec.kinds()
	if len(kinds) != 3 {
		t.Fatalf("warnings = %v, want 3 refusal notices", kinds)
	}
	for _, k := range kinds {
		if k != "manual_target_detected" {
			t.Errorf("warning kind = %q, want manual_target_detected", k)
		}
	}
}
