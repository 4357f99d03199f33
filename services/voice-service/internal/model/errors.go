package model

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a booking would overlap an existing
	// appointment on the shared calendar.
	ErrConflict = errors.New("slot already booked")
)
