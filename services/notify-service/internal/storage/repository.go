package storage

import (
	"context"
	"time"

	"github.com/openpantry/pantryline/libs/db"
)

// Reminder is the local mirror of a booked pickup, maintained from voice
// service events. The mirror is what the reminder job scans; it never reads
// the voice service's database.
type Reminder struct {
	AppointmentID string
	Phone         string
	Start         time.Time
	End           time.Time
	Location      string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) UpsertAppointment(ctx context.Context, rem Reminder) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pickup_reminders (appointment_id, phone, start_time, end_time, location)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (appointment_id)
		DO UPDATE SET phone = EXCLUDED.phone,
		              start_time = EXCLUDED.start_time,
		              end_time = EXCLUDED.end_time,
		              location = EXCLUDED.location,
		              updated_at = now()
	`, rem.AppointmentID, rem.Phone, rem.Start.UTC(), rem.End.UTC(), rem.Location)
	return err
}

func (r *Repository) DeleteAppointment(ctx context.Context, appointmentID string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM pickup_reminders WHERE appointment_id = $1
	`, appointmentID)
	return err
}

// DueBetween returns mirrored pickups starting in [from, to).
func (r *Repository) DueBetween(ctx context.Context, from, to time.Time) ([]Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT appointment_id, phone, start_time, end_time, location
		FROM pickup_reminders
		WHERE start_time >= $1 AND start_time < $2
		ORDER BY start_time
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []Reminder
	for rows.Next() {
		var rem Reminder
		if err := rows.Scan(&rem.AppointmentID, &rem.Phone, &rem.Start, &rem.End, &rem.Location); err != nil {
			return nil, err
		}
		due = append(due, rem)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return due, nil
}

// ClaimSend records the outgoing text. The unique key on
// (appointment_id, kind) makes the claim first-wins, so overlapping job runs
// and redelivered events cannot double-text a caller.
func (r *Repository) ClaimSend(ctx context.Context, appointmentID, kind, recipient, body, provider string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, kind, recipient, body, provider, status)
		VALUES ($1, $2, $3, $4, $5, 'sent')
		ON CONFLICT (appointment_id, kind) DO NOTHING
	`, appointmentID, kind, recipient, body, provider)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
