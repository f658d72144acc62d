package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"secretcontest/internal/models"
)

// ContestStateRepository owns the singleton contest_state row (id = 1).
type ContestStateRepository struct {
	q Querier
}

func NewContestStateRepository(db *DB) *ContestStateRepository {
	return &ContestStateRepository{q: db}
}

func (r *ContestStateRepository) WithTx(tx *sql.Tx) *ContestStateRepository {
	return &ContestStateRepository{q: tx}
}

func (r *ContestStateRepository) Get(ctx context.Context) (*models.ContestState, error) {
	const q = `
		SELECT winner_actor_hash, winner_claimed_at, contact_submitted
		FROM contest_state
		WHERE id = 1
	`
	var (
		s         models.ContestState
		winner    sql.NullString
		claimedAt sql.NullTime
	)
	if err := r.q.QueryRowContext(ctx, q).Scan(&winner, &claimedAt, &s.ContactSubmitted); err != nil {
		return nil, fmt.Errorf("get contest state: %w", err)
	}
	if winner.Valid {
		w := winner.String
		s.WinnerActorHash = &w
	}
	s.WinnerClaimedAt = timePtr(claimedAt)
	return &s, nil
}

func (r *ContestStateRepository) IsClosed(ctx context.Context) (bool, error) {
	var closed bool
	err := r.q.QueryRowContext(ctx, `SELECT winner_actor_hash IS NOT NULL FROM contest_state WHERE id = 1`).Scan(&closed)
	if err != nil {
		return false, fmt.Errorf("contest closed check: %w", err)
	}
	return closed, nil
}

// TryClaimWin sets the winner only if there is none yet. The condition and the
// write are one statement, so among concurrent callers exactly one sees a row
// affected.
func (r *ContestStateRepository) TryClaimWin(ctx context.Context, actorHash string, now time.Time) (bool, error) {
	const q = `
		UPDATE contest_state
		SET winner_actor_hash = $1, winner_claimed_at = $2
		WHERE id = 1 AND winner_actor_hash IS NULL
	`
	res, err := r.q.ExecContext(ctx, q, actorHash, now)
	if err != nil {
		return false, fmt.Errorf("claim win: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim win rows: %w", err)
	}
	return n == 1, nil
}

// MarkContactSubmitted flips contact_submitted for the current winner only.
func (r *ContestStateRepository) MarkContactSubmitted(ctx context.Context, actorHash string) (bool, error) {
	const q = `
		UPDATE contest_state
		SET contact_submitted = TRUE
		WHERE id = 1 AND winner_actor_hash = $1
	`
	res, err := r.q.ExecContext(ctx, q, actorHash)
	if err != nil {
		return false, fmt.Errorf("mark contact submitted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark contact submitted rows: %w", err)
	}
	return n == 1, nil
}

func (r *ContestStateRepository) Clear(ctx context.Context) error {
	const q = `
		UPDATE contest_state
		SET winner_actor_hash = NULL, winner_claimed_at = NULL, contact_submitted = FALSE
		WHERE id = 1
	`
	if _, err := r.q.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("clear contest state: %w", err)
	}
	return nil
}
