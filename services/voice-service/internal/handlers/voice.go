// Package handlers adapts telephony webhooks to the dialog machine. The
// telephony provider posts form-encoded call events; every response is a
// voice script.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openpantry/pantryline/services/voice-service/internal/dialog"
	"github.com/openpantry/pantryline/services/voice-service/internal/voice"
)

const turnPrefix = "/voice/v1/turn/"

type conversation interface {
	StartCall(ctx context.Context, phone string) *voice.Script
	Turn(ctx context.Context, step string, in dialog.TurnInput) *voice.Script
	EndCall(ctx context.Context, phone string)
}

type VoiceHandler struct {
	machine conversation
	logger  *slog.Logger
	token   string // shared secret expected on every webhook; empty disables the check
}

func NewVoiceHandler(machine conversation, logger *slog.Logger, token string) *VoiceHandler {
	return &VoiceHandler{machine: machine, logger: logger, token: token}
}

// Call answers a new inbound call.
func (h *VoiceHandler) Call(w http.ResponseWriter, r *http.Request) {
	if !h.accept(w, r) {
		return
	}
	script := h.machine.StartCall(r.Context(), r.PostFormValue("From"))
	script.Write(w)
}

// Turn handles a gather result for the step named in the path.
func (h *VoiceHandler) Turn(w http.ResponseWriter, r *http.Request) {
	if !h.accept(w, r) {
		return
	}
	step := strings.TrimPrefix(r.URL.Path, turnPrefix)
	if step == "" || strings.Contains(step, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	in := dialog.TurnInput{
		Phone:   r.PostFormValue("From"),
		Digits:  r.PostFormValue("Digits"),
		Speech:  r.PostFormValue("SpeechResult"),
		Context: r.URL.Query().Get("ctx"),
	}
	script := h.machine.Turn(r.Context(), step, in)
	script.Write(w)
}

// Status receives call lifecycle callbacks; a terminal status closes the
// session.
func (h *VoiceHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.accept(w, r) {
		return
	}
	switch r.PostFormValue("CallStatus") {
	case "completed", "failed", "busy", "no-answer", "canceled":
		h.machine.EndCall(r.Context(), r.PostFormValue("From"))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *VoiceHandler) accept(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if h.token != "" && r.Header.Get("X-Webhook-Token") != h.token {
		h.logger.Warn("webhook rejected", "path", r.URL.Path)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return false
	}
	return true
}
