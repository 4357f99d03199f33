package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/openpantry/pantryline/libs/db"
	"github.com/openpantry/pantryline/services/voice-service/internal/model"
)

type FAQRepository struct {
	pool *db.Pool
}

func NewFAQRepository(pool *db.Pool) *FAQRepository {
	return &FAQRepository{pool: pool}
}

// List returns every stored entry in insertion order. The set is small
// (tens of rows) and read on every FAQ turn, so no paging.
func (r *FAQRepository) List(ctx context.Context) ([]model.FAQEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, question, answer, COALESCE(tags, '{}')
		FROM faq_entries
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.FAQEntry
	for rows.Next() {
		var e model.FAQEntry
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.Tags); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

func (r *FAQRepository) Get(ctx context.Context, id string) (model.FAQEntry, error) {
	var e model.FAQEntry
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, question, answer, COALESCE(tags, '{}')
		FROM faq_entries
		WHERE id = $1
	`, id).Scan(&e.ID, &e.Question, &e.Answer, &e.Tags)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.FAQEntry{}, model.ErrNotFound
		}
		return model.FAQEntry{}, err
	}
	return e, nil
}
