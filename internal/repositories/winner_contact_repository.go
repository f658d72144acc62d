package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"secretcontest/internal/models"
)

type WinnerContactRepository struct {
	q Querier
}

func NewWinnerContactRepository(db *DB) *WinnerContactRepository {
	return &WinnerContactRepository{q: db}
}

func (r *WinnerContactRepository) WithTx(tx *sql.Tx) *WinnerContactRepository {
	return &WinnerContactRepository{q: tx}
}

// Create inserts the contact unless the actor already has one; the unique
// actor_hash column decides, so a racing double submit yields false here.
func (r *WinnerContactRepository) Create(ctx context.Context, c *models.WinnerContact) (bool, error) {
	const q = `
		INSERT INTO winner_contacts (actor_hash, name, email, phone, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (actor_hash) DO NOTHING
	`
	var phone sql.NullString
	if c.Phone != nil {
		phone = sql.NullString{String: *c.Phone, Valid: true}
	}
	res, err := r.q.ExecContext(ctx, q, c.ActorHash, c.Name, c.Email, phone, c.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("winner contact create: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("winner contact create rows: %w", err)
	}
	return n == 1, nil
}

// GetLatest returns the most recent contact, or nil when nobody submitted yet.
func (r *WinnerContactRepository) GetLatest(ctx context.Context) (*models.WinnerContact, error) {
	const q = `
		SELECT id, actor_hash, name, email, phone, created_at
		FROM winner_contacts
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var (
		c     models.WinnerContact
		phone sql.NullString
	)
	err := r.q.QueryRowContext(ctx, q).Scan(&c.ID, &c.ActorHash, &c.Name, &c.Email, &phone, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("winner contact latest: %w", err)
	}
	if phone.Valid {
		p := phone.String
		c.Phone = &p
	}
	return &c, nil
}

func (r *WinnerContactRepository) Count(ctx context.Context) (int, error) {
	var c int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM winner_contacts`).Scan(&c); err != nil {
		return 0, fmt.Errorf("winner contacts count: %w", err)
	}
	return c, nil
}

func (r *WinnerContactRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM winner_contacts`)
	if err != nil {
		return 0, fmt.Errorf("winner contacts delete: %w", err)
	}
	return res.RowsAffected()
}
