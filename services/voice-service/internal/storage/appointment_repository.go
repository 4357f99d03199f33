package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/openpantry/pantryline/libs/db"
	"github.com/openpantry/pantryline/services/voice-service/internal/model"
	"github.com/openpantry/pantryline/services/voice-service/internal/outbox"
)

// AppointmentRepository persists pickup appointments on the shared pantry
// calendar. The appointments table carries an exclusion constraint on the
// booked time range, so overlapping inserts fail with 23P01 no matter how
// the bookings interleave; that is the only overlap guard and it needs no
// advisory locks.
type AppointmentRepository struct {
	pool   *db.Pool
	events *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, events *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, events: events}
}

// appointmentEvent is the payload shared by the booked, cancelled and
// rescheduled events. Phone rides along so the notify service can text the
// caller without a lookup.
type appointmentEvent struct {
	AppointmentID string    `json:"appointment_id"`
	CallerID      string    `json:"caller_id"`
	Phone         string    `json:"phone"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Location      string    `json:"location"`
	ReplacedID    string    `json:"replaced_id,omitempty"`
}

func (r *AppointmentRepository) ListByDate(ctx context.Context, day time.Time) ([]model.Appointment, error) {
	from := day.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, caller_id::text, start_time, end_time, location, created_at
		FROM appointments
		WHERE start_time >= $1 AND start_time < $2
		ORDER BY start_time
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListUpcomingByCaller returns the caller's future appointments, soonest
// first. The cancel and reschedule flows only ever operate on these.
func (r *AppointmentRepository) ListUpcomingByCaller(ctx context.Context, callerID string, now time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, caller_id::text, start_time, end_time, location, created_at
		FROM appointments
		WHERE caller_id = $1 AND start_time >= $2
		ORDER BY start_time
	`, callerID, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	var a model.Appointment
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, caller_id::text, start_time, end_time, location, created_at
		FROM appointments
		WHERE id = $1
	`, id).Scan(&a.ID, &a.CallerID, &a.Start, &a.End, &a.Location, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, model.ErrNotFound
		}
		return model.Appointment{}, err
	}
	return a, nil
}

// Book inserts the appointment and its outbox event in one transaction.
// Returns model.ErrConflict when the slot was taken between offer and
// confirmation.
func (r *AppointmentRepository) Book(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt.ID = uuid.NewString()
	created, err := r.insert(ctx, tx, appt)
	if err != nil {
		return model.Appointment{}, mapConflict(err)
	}
	if err := r.emit(ctx, tx, outbox.EventAppointmentBooked, created, ""); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return created, nil
}

// Cancel deletes the appointment and records the cancellation event.
func (r *AppointmentRepository) Cancel(ctx context.Context, id string) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	removed, err := r.delete(ctx, tx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.emit(ctx, tx, outbox.EventAppointmentCancelled, removed, ""); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return removed, nil
}

// Replace atomically swaps an existing appointment for a new slot. Deleting
// first frees the old range, so moving within the same day cannot trip the
// exclusion constraint against the caller's own booking. A conflict on the
// new slot rolls the whole thing back and the old appointment survives.
func (r *AppointmentRepository) Replace(ctx context.Context, oldID string, appt model.Appointment) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := r.delete(ctx, tx, oldID); err != nil {
		return model.Appointment{}, err
	}
	appt.ID = uuid.NewString()
	created, err := r.insert(ctx, tx, appt)
	if err != nil {
		return model.Appointment{}, mapConflict(err)
	}
	if err := r.emit(ctx, tx, outbox.EventAppointmentRescheduled, created, oldID); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return created, nil
}

func (r *AppointmentRepository) insert(ctx context.Context, tx pgx.Tx, appt model.Appointment) (model.Appointment, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, caller_id, start_time, end_time, location)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, appt.ID, appt.CallerID, appt.Start.UTC(), appt.End.UTC(), appt.Location).Scan(&appt.CreatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepository) delete(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	var a model.Appointment
	err := tx.QueryRow(ctx, `
		DELETE FROM appointments
		WHERE id = $1
		RETURNING id::text, caller_id::text, start_time, end_time, location, created_at
	`, id).Scan(&a.ID, &a.CallerID, &a.Start, &a.End, &a.Location, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, model.ErrNotFound
		}
		return model.Appointment{}, err
	}
	return a, nil
}

func (r *AppointmentRepository) emit(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment, replacedID string) error {
	var phone string
	err := tx.QueryRow(ctx, `SELECT phone FROM callers WHERE id = $1`, appt.CallerID).Scan(&phone)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	payload, err := json.Marshal(appointmentEvent{
		AppointmentID: appt.ID,
		CallerID:      appt.CallerID,
		Phone:         phone,
		Start:         appt.Start.UTC(),
		End:           appt.End.UTC(),
		Location:      appt.Location,
		ReplacedID:    replacedID,
	})
	if err != nil {
		return err
	}
	return r.events.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var appts []model.Appointment
	for rows.Next() {
		var a model.Appointment
		if err := rows.Scan(&a.ID, &a.CallerID, &a.Start, &a.End, &a.Location, &a.CreatedAt); err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
		return model.ErrConflict
	}
	return err
}
