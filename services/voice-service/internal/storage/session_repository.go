package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/openpantry/pantryline/libs/db"
	"github.com/openpantry/pantryline/services/voice-service/internal/model"
	"github.com/openpantry/pantryline/services/voice-service/internal/outbox"
)

// SessionRepository persists per-call audit records. Transcript and intent
// counters live in jsonb columns and are written back wholesale; a session
// belongs to exactly one webhook turn at a time, so there is no concurrent
// writer to merge against.
type SessionRepository struct {
	pool   *db.Pool
	events *outbox.Repository
}

func NewSessionRepository(pool *db.Pool, events *outbox.Repository) *SessionRepository {
	return &SessionRepository{pool: pool, events: events}
}

func (r *SessionRepository) Start(ctx context.Context, phone, language string) (*model.CallSession, error) {
	s := &model.CallSession{
		ID:           uuid.NewString(),
		Phone:        phone,
		Language:     language,
		IntentCounts: map[string]int{},
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO call_sessions (id, phone, language, transcript, intent_counts)
		VALUES ($1, $2, $3, '[]'::jsonb, '{}'::jsonb)
		RETURNING started_at
	`, s.ID, s.Phone, s.Language).Scan(&s.StartedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Latest returns the most recent session for the phone number. Sessions are
// correlated to callers by number only, so this is how a turn finds its
// in-flight record.
func (r *SessionRepository) Latest(ctx context.Context, phone string) (*model.CallSession, error) {
	var (
		s            model.CallSession
		transcript   []byte
		intentCounts []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, phone, transcript, strikes, total_strikes, intent_counts,
			language, forwarded, COALESCE(forwarded_for, ''), started_at, ended_at
		FROM call_sessions
		WHERE phone = $1
		ORDER BY started_at DESC
		LIMIT 1
	`, phone).Scan(&s.ID, &s.Phone, &transcript, &s.Strikes, &s.TotalStrikes, &intentCounts,
		&s.Language, &s.Forwarded, &s.ForwardedFor, &s.StartedAt, &s.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(transcript, &s.Transcript); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(intentCounts, &s.IntentCounts); err != nil {
		return nil, err
	}
	if s.IntentCounts == nil {
		s.IntentCounts = map[string]int{}
	}
	return &s, nil
}

// Save writes the mutable session fields back. When the session was just
// forwarded to an operator, the forwarding event rides in the same
// transaction.
func (r *SessionRepository) Save(ctx context.Context, s *model.CallSession) error {
	transcript, err := json.Marshal(s.Transcript)
	if err != nil {
		return err
	}
	if s.Transcript == nil {
		transcript = []byte("[]")
	}
	intentCounts, err := json.Marshal(s.IntentCounts)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		wasForwarded bool
		wasEnded     *time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT forwarded, ended_at FROM call_sessions WHERE id = $1 FOR UPDATE
	`, s.ID).Scan(&wasForwarded, &wasEnded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrNotFound
		}
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE call_sessions
		SET transcript = $2,
			strikes = $3,
			total_strikes = $4,
			intent_counts = $5,
			language = $6,
			forwarded = $7,
			forwarded_for = NULLIF($8, ''),
			ended_at = $9
		WHERE id = $1
	`, s.ID, transcript, s.Strikes, s.TotalStrikes, intentCounts,
		s.Language, s.Forwarded, s.ForwardedFor, s.EndedAt)
	if err != nil {
		return err
	}

	if s.Forwarded && !wasForwarded {
		payload, err := json.Marshal(map[string]string{
			"session_id": s.ID,
			"phone":      s.Phone,
			"reason":     s.ForwardedFor,
		})
		if err != nil {
			return err
		}
		evt := outbox.Event{
			AggregateType: "call_session",
			AggregateID:   s.ID,
			EventType:     outbox.EventCallForwarded,
			Payload:       payload,
		}
		if err := r.events.Insert(ctx, tx, evt); err != nil {
			return err
		}
	}

	if s.EndedAt != nil && wasEnded == nil {
		payload, err := json.Marshal(map[string]any{
			"session_id":    s.ID,
			"phone":         s.Phone,
			"forwarded":     s.Forwarded,
			"total_strikes": s.TotalStrikes,
			"ended_at":      s.EndedAt.UTC(),
		})
		if err != nil {
			return err
		}
		evt := outbox.Event{
			AggregateType: "call_session",
			AggregateID:   s.ID,
			EventType:     outbox.EventCallEnded,
			Payload:       payload,
		}
		if err := r.events.Insert(ctx, tx, evt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
