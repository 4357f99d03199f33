package model

import (
	"regexp"
	"time"
)

// CallerProfile is the enrolled caller record, keyed by E.164 phone number.
// Profiles are created during a scheduling flow and never deleted.
type CallerProfile struct {
	ID        string
	FirstName string
	LastName  string
	Phone     string
	Email     string
	Language  string
	CreatedAt time.Time
}

func (p CallerProfile) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

var e164Pattern = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)

// ValidPhone reports whether the number looks like E.164. Callers with an
// unparseable number cannot be served at all, so this gates every flow.
func ValidPhone(number string) bool {
	return e164Pattern.MatchString(number)
}
