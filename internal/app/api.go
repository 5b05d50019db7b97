package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/parleylabs/parley/internal/session"
)

// The control API is the UI layer's command surface. It is deliberately
// small: every route maps to exactly one engine operation, and the event
// feed (not the response body) carries the resulting state.

// registerControlRoutes adds the engine control endpoints to mux.
func (a *App) registerControlRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /session/start", a.handleSessionStart)
	mux.HandleFunc("POST /session/end", a.handleSessionEnd)
	mux.HandleFunc("POST /recording/start", a.handleRecordingStart)
	mux.HandleFunc("POST /recording/stop", a.handleRecordingStop)
	mux.HandleFunc("POST /recording/cancel", a.handleRecordingCancel)
	mux.HandleFunc("POST /listening/start", a.handleListeningStart)
	mux.HandleFunc("POST /listening/stop", a.handleListeningStop)
	mux.HandleFunc("POST /participants/swap", a.handleParticipantsSwap)
	mux.HandleFunc("GET /state", a.handleState)
}

func (a *App) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	a.respond(w, a.controller.StartSession(r.Context()))
}

func (a *App) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	reason := session.ReasonUser
	switch r.URL.Query().Get("reason") {
	case "", string(session.ReasonUser):
	case string(session.ReasonAppBackgrounded):
		reason = session.ReasonAppBackgrounded
	case string(session.ReasonNavigatedAway):
		reason = session.ReasonNavigatedAway
	default:
		a.respondError(w, http.StatusBadRequest, "unknown end reason")
		return
	}
	a.respond(w, a.controller.EndSession(r.Context(), reason))
}

func (a *App) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	// One live handle per device: push-to-talk and continuous listening
	// never hold the microphone at the same time.
	if a.segmenter.Listening() {
		a.respondError(w, http.StatusConflict, "continuous listening holds the microphone")
		return
	}
	a.respond(w, a.controller.StartRecording(r.Context()))
}

func (a *App) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	a.respond(w, a.controller.StopRecording(r.Context()))
}

func (a *App) handleRecordingCancel(w http.ResponseWriter, _ *http.Request) {
	a.controller.CancelStart()
	a.respond(w, nil)
}

func (a *App) handleListeningStart(w http.ResponseWriter, r *http.Request) {
	sessionID := a.controller.SessionID()
	if sessionID == "" {
		a.respondError(w, http.StatusConflict, "no armed session")
		return
	}
	switch a.controller.State() {
	case session.StateRecording, session.StateStopping:
		a.respondError(w, http.StatusConflict, "a recording holds the microphone")
		return
	}
	a.respond(w, a.segmenter.StartListening(r.Context(), sessionID))
}

func (a *App) handleListeningStop(w http.ResponseWriter, r *http.Request) {
	a.respond(w, a.segmenter.StopListening(r.Context()))
}

func (a *App) handleParticipantsSwap(w http.ResponseWriter, _ *http.Request) {
	a.router.Swap()
	a.respond(w, nil)
}

func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	mode, _ := a.snapshotMode()
	pa, pb := a.router.Participants()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     a.controller.State().String(),
		"sessionId": a.controller.SessionID(),
		"mode":      string(mode),
		"participants": map[string]string{
			"a": pa.Language,
			"b": pb.Language,
		},
	})
}

// respond maps an engine error to an HTTP status: illegal transitions are
// conflicts, everything else is a server error.
func (a *App) respond(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrNoSession):
		a.respondError(w, http.StatusConflict, err.Error())
	default:
		a.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (a *App) respondError(w http.ResponseWriter, status int, msg string) {
	a.log.Debug("control request rejected",
		slog.Int("status", status),
		slog.String("error", msg))
	writeJSON(w, status, map[string]string{"status": "error", "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
