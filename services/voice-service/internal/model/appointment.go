package model

import "time"

// Appointment is one booked pickup slot on the shared pantry calendar.
// Start/End are UTC instants; the calendar is a single resource, so no two
// appointments may overlap regardless of caller.
type Appointment struct {
	ID        string
	CallerID  string
	Start     time.Time
	End       time.Time
	Location  string
	CreatedAt time.Time
}

// Date returns the appointment's calendar day at midnight UTC.
func (a Appointment) Date() time.Time {
	y, m, d := a.Start.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (a Appointment) SpokenDate() string {
	return a.Start.UTC().Format("Monday, January 2")
}

func (a Appointment) SpokenTime() string {
	return a.Start.UTC().Format("3:04 PM")
}
