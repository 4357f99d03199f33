package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/openpantry/pantryline/libs/db"
	"github.com/openpantry/pantryline/services/voice-service/internal/model"
)

type CallerRepository struct {
	pool *db.Pool
}

func NewCallerRepository(pool *db.Pool) *CallerRepository {
	return &CallerRepository{pool: pool}
}

func (r *CallerRepository) FindByPhone(ctx context.Context, phone string) (model.CallerProfile, error) {
	var c model.CallerProfile
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, first_name, last_name, phone, COALESCE(email, ''), language, created_at
		FROM callers
		WHERE phone = $1
	`, phone).Scan(&c.ID, &c.FirstName, &c.LastName, &c.Phone, &c.Email, &c.Language, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CallerProfile{}, model.ErrNotFound
		}
		return model.CallerProfile{}, err
	}
	return c, nil
}

func (r *CallerRepository) Create(ctx context.Context, c model.CallerProfile) (model.CallerProfile, error) {
	c.ID = uuid.NewString()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO callers (id, first_name, last_name, phone, email, language)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING created_at
	`, c.ID, c.FirstName, c.LastName, c.Phone, c.Email, c.Language).Scan(&c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Two concurrent calls from the same number: keep the row
			// that won and return it.
			return r.FindByPhone(ctx, c.Phone)
		}
		return model.CallerProfile{}, err
	}
	return c, nil
}

func (r *CallerRepository) Update(ctx context.Context, c model.CallerProfile) (model.CallerProfile, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE callers
		SET first_name = $2, last_name = $3, language = $4
		WHERE id = $1
	`, c.ID, c.FirstName, c.LastName, c.Language)
	if err != nil {
		return model.CallerProfile{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.CallerProfile{}, model.ErrNotFound
	}
	return c, nil
}
