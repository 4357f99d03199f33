package model

import "time"

// TranscriptEntry is one line of the call transcript.
type TranscriptEntry struct {
	Speaker string    `json:"speaker"` // "caller" or "assistant"
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// CallSession is the per-call audit record. It is correlated to a caller by
// phone number only (most recent session for the number), not a foreign key.
// Sessions are created at call start, mutated every turn, and never deleted.
type CallSession struct {
	ID           string
	Phone        string
	Transcript   []TranscriptEntry
	Strikes      int // consecutive failures in the current segment
	TotalStrikes int // monotonic, for reporting
	IntentCounts map[string]int
	Language     string
	Forwarded    bool
	ForwardedFor string
	StartedAt    time.Time
	EndedAt      *time.Time
}

// Duration is the call length so far, or the final length once ended.
func (s CallSession) Duration(now time.Time) time.Duration {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	return end.Sub(s.StartedAt)
}
