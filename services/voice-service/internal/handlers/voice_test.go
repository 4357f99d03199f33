package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/openpantry/pantryline/services/voice-service/internal/dialog"
	"github.com/openpantry/pantryline/services/voice-service/internal/voice"
)

type stubConversation struct {
	startedWith string
	turnStep    string
	turnInput   dialog.TurnInput
	endedWith   string
}

func (s *stubConversation) StartCall(_ context.Context, phone string) *voice.Script {
	s.startedWith = phone
	return voice.New().Say("hello")
}

func (s *stubConversation) Turn(_ context.Context, step string, in dialog.TurnInput) *voice.Script {
	s.turnStep = step
	s.turnInput = in
	return voice.New().Say("next")
}

func (s *stubConversation) EndCall(_ context.Context, phone string) {
	s.endedWith = phone
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCallWebhook(t *testing.T) {
	stub := &stubConversation{}
	h := NewVoiceHandler(stub, testLogger(), "")

	form := url.Values{"From": {"+15551234567"}}
	req := httptest.NewRequest("POST", "/voice/v1/call", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Call(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if stub.startedWith != "+15551234567" {
		t.Fatalf("started with %q", stub.startedWith)
	}
	var script voice.Script
	if err := json.Unmarshal(rec.Body.Bytes(), &script); err != nil {
		t.Fatalf("response is not a voice script: %v", err)
	}
	if len(script.Actions) == 0 || script.Actions[0].Say == nil {
		t.Fatalf("unexpected script: %+v", script)
	}
}

func TestTurnWebhookRouting(t *testing.T) {
	stub := &stubConversation{}
	h := NewVoiceHandler(stub, testLogger(), "")

	form := url.Values{
		"From":         {"+15551234567"},
		"Digits":       {"1"},
		"SpeechResult": {"yes please"},
	}
	req := httptest.NewRequest("POST", "/voice/v1/turn/date-confirm?ctx=e30", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Turn(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if stub.turnStep != "date-confirm" {
		t.Fatalf("step = %q", stub.turnStep)
	}
	want := dialog.TurnInput{Phone: "+15551234567", Digits: "1", Speech: "yes please", Context: "e30"}
	if stub.turnInput != want {
		t.Fatalf("input = %+v, want %+v", stub.turnInput, want)
	}
}

func TestWebhookTokenRequired(t *testing.T) {
	stub := &stubConversation{}
	h := NewVoiceHandler(stub, testLogger(), "secret")

	req := httptest.NewRequest("POST", "/voice/v1/call", strings.NewReader("From=%2B15551234567"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Call(rec, req)
	if rec.Code != 401 {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("POST", "/voice/v1/call", strings.NewReader("From=%2B15551234567"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Webhook-Token", "secret")
	rec = httptest.NewRecorder()
	h.Call(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewVoiceHandler(&stubConversation{}, testLogger(), "")
	req := httptest.NewRequest("GET", "/voice/v1/call", nil)
	rec := httptest.NewRecorder()
	h.Call(rec, req)
	if rec.Code != 405 {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestStatusClosesSession(t *testing.T) {
	stub := &stubConversation{}
	h := NewVoiceHandler(stub, testLogger(), "")

	form := url.Values{"From": {"+15551234567"}, "CallStatus": {"completed"}}
	req := httptest.NewRequest("POST", "/voice/v1/status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	if rec.Code != 204 {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if stub.endedWith != "+15551234567" {
		t.Fatalf("ended with %q", stub.endedWith)
	}
}
