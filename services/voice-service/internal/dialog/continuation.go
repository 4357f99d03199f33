package dialog

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Continuation is the state threaded between webhook turns. The service keeps
// nothing in memory across turns; everything a step needs to resume the
// conversation rides in this token, serialized into the gather action URL.
// Tokens are opaque to the telephony layer.
type Continuation struct {
	CallerID    string   `json:"caller_id,omitempty"`
	FirstName   string   `json:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
	Date        string   `json:"date,omitempty"` // chosen pickup day, 2006-01-02
	OfferMinute int      `json:"offer_minute,omitempty"`
	ReplaceID   string   `json:"replace_id,omitempty"` // appointment being rescheduled
	Options     []string `json:"options,omitempty"`    // ids behind a numbered prompt
}

// Encode renders the continuation as a URL-safe token.
func (c Continuation) Encode() string {
	body, err := json.Marshal(c)
	if err != nil {
		// Continuation holds only strings, ints and string slices; this
		// cannot happen.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(body)
}

// DecodeContinuation parses a token produced by Encode. An empty token is a
// valid empty continuation. A corrupt token is an error; the caller restarts
// the conversation at the menu rather than guessing.
func DecodeContinuation(token string) (Continuation, error) {
	if token == "" {
		return Continuation{}, nil
	}
	body, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Continuation{}, fmt.Errorf("decode continuation: %w", err)
	}
	var c Continuation
	if err := json.Unmarshal(body, &c); err != nil {
		return Continuation{}, fmt.Errorf("decode continuation: %w", err)
	}
	return c, nil
}
