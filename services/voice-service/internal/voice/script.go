// Package voice builds the response documents that tell the telephony layer
// what to do next: speak, gather input, redirect to another step, bridge to
// an operator, or hang up. The document is rendered as JSON; the telephony
// adapter translates it to its own markup.
package voice

import (
	"encoding/json"
	"net/http"
)

const (
	InputSpeech = "speech"
	InputDigits = "digits"
	InputAny    = "speech digits"
)

type Script struct {
	Actions []Action `json:"actions"`
}

type Action struct {
	Say      *Say      `json:"say,omitempty"`
	Gather   *Gather   `json:"gather,omitempty"`
	Redirect *Redirect `json:"redirect,omitempty"`
	Dial     *Dial     `json:"dial,omitempty"`
	Hangup   *Hangup   `json:"hangup,omitempty"`
}

type Say struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// Gather waits for caller input and posts it to Action. A gather that times
// out posts with empty input, which the flow treats as "not understood".
type Gather struct {
	Input          string `json:"input"` // "speech" or "digits"
	TimeoutSeconds int    `json:"timeout_seconds"`
	NumDigits      int    `json:"num_digits,omitempty"`
	Action         string `json:"action"`
}

type Redirect struct {
	Action string `json:"action"`
}

type Dial struct {
	Number string `json:"number"`
}

type Hangup struct{}

func New() *Script {
	return &Script{}
}

func (s *Script) Say(text string) *Script {
	s.Actions = append(s.Actions, Action{Say: &Say{Text: text}})
	return s
}

func (s *Script) GatherSpeech(action string, timeoutSeconds int) *Script {
	s.Actions = append(s.Actions, Action{Gather: &Gather{
		Input:          InputSpeech,
		TimeoutSeconds: timeoutSeconds,
		Action:         action,
	}})
	return s
}

func (s *Script) GatherDigits(action string, numDigits, timeoutSeconds int) *Script {
	s.Actions = append(s.Actions, Action{Gather: &Gather{
		Input:          InputDigits,
		TimeoutSeconds: timeoutSeconds,
		NumDigits:      numDigits,
		Action:         action,
	}})
	return s
}

// GatherAny accepts either spoken input or a single keypress, whichever the
// caller produces first.
func (s *Script) GatherAny(action string, numDigits, timeoutSeconds int) *Script {
	s.Actions = append(s.Actions, Action{Gather: &Gather{
		Input:          InputAny,
		TimeoutSeconds: timeoutSeconds,
		NumDigits:      numDigits,
		Action:         action,
	}})
	return s
}

func (s *Script) Redirect(action string) *Script {
	s.Actions = append(s.Actions, Action{Redirect: &Redirect{Action: action}})
	return s
}

func (s *Script) Dial(number string) *Script {
	s.Actions = append(s.Actions, Action{Dial: &Dial{Number: number}})
	return s
}

func (s *Script) Hangup() *Script {
	s.Actions = append(s.Actions, Action{Hangup: &Hangup{}})
	return s
}

// SpokenText returns everything the script says, in order. Used by tests and
// by the transcript recorder.
func (s *Script) SpokenText() []string {
	var lines []string
	for _, a := range s.Actions {
		if a.Say != nil {
			lines = append(lines, a.Say.Text)
		}
	}
	return lines
}

func (s *Script) Write(w http.ResponseWriter) {
	body, err := json.Marshal(s)
	if err != nil {
		http.Error(w, "failed to build voice script", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
