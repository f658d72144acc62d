package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"secretcontest/internal/models"
)

type ClaimTokenRepository struct {
	q       Querier
	dialect Dialect
}

func NewClaimTokenRepository(db *DB) *ClaimTokenRepository {
	return &ClaimTokenRepository{q: db, dialect: db.Dialect}
}

func (r *ClaimTokenRepository) WithTx(tx *sql.Tx) *ClaimTokenRepository {
	return &ClaimTokenRepository{q: tx, dialect: r.dialect}
}

// Issue stores a new token and drops every unused token the actor still holds,
// leaving at most one live token per actor.
func (r *ClaimTokenRepository) Issue(ctx context.Context, t *models.ClaimToken) error {
	if _, err := r.q.ExecContext(ctx,
		`DELETE FROM winner_claim_tokens WHERE actor_hash = $1 AND used_at IS NULL`, t.ActorHash,
	); err != nil {
		return fmt.Errorf("claim token revoke previous: %w", err)
	}

	const q = `
		INSERT INTO winner_claim_tokens (token_hash, actor_hash, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, NULL, $4)
	`
	if _, err := r.q.ExecContext(ctx, q, t.TokenHash, t.ActorHash, t.ExpiresAt, t.CreatedAt); err != nil {
		return fmt.Errorf("claim token insert: %w", err)
	}
	return nil
}

// GetForUpdate looks a token up by hash and locks it for the rest of the
// transaction. Returns nil, nil when unknown.
func (r *ClaimTokenRepository) GetForUpdate(ctx context.Context, tokenHash string) (*models.ClaimToken, error) {
	q := `
		SELECT token_hash, actor_hash, expires_at, used_at, created_at
		FROM winner_claim_tokens
		WHERE token_hash = $1` + r.dialect.lockClause()

	var (
		t      models.ClaimToken
		usedAt sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, q, tokenHash).Scan(&t.TokenHash, &t.ActorHash, &t.ExpiresAt, &usedAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim token get: %w", err)
	}
	t.UsedAt = timePtr(usedAt)
	return &t, nil
}

// MarkUsed spends the token; false when it was already spent.
func (r *ClaimTokenRepository) MarkUsed(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE winner_claim_tokens SET used_at = $2 WHERE token_hash = $1 AND used_at IS NULL`, tokenHash, now,
	)
	if err != nil {
		return false, fmt.Errorf("claim token mark used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim token mark used rows: %w", err)
	}
	return n == 1, nil
}

func (r *ClaimTokenRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM winner_claim_tokens`)
	if err != nil {
		return 0, fmt.Errorf("claim tokens delete: %w", err)
	}
	return res.RowsAffected()
}

func (r *ClaimTokenRepository) CountUnused(ctx context.Context) (int, error) {
	var c int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM winner_claim_tokens WHERE used_at IS NULL`).Scan(&c); err != nil {
		return 0, fmt.Errorf("claim tokens count: %w", err)
	}
	return c, nil
}
