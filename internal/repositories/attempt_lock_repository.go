package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"secretcontest/internal/models"
)

type AttemptLockRepository struct {
	q       Querier
	dialect Dialect
}

func NewAttemptLockRepository(db *DB) *AttemptLockRepository {
	return &AttemptLockRepository{q: db, dialect: db.Dialect}
}

func (r *AttemptLockRepository) WithTx(tx *sql.Tx) *AttemptLockRepository {
	return &AttemptLockRepository{q: tx, dialect: r.dialect}
}

// Acquire returns the actor's lock row, creating it on first use, and keeps it
// locked until the surrounding transaction ends. Must be called inside a
// transaction so the read-modify-write that follows is atomic per actor.
func (r *AttemptLockRepository) Acquire(ctx context.Context, actorHash string, now time.Time) (*models.AttemptLock, error) {
	const ins = `
		INSERT INTO attempt_locks (actor_hash, failed_count, blocked_until, updated_at)
		VALUES ($1, 0, NULL, $2)
		ON CONFLICT (actor_hash) DO NOTHING
	`
	if _, err := r.q.ExecContext(ctx, ins, actorHash, now); err != nil {
		return nil, fmt.Errorf("attempt lock ensure: %w", err)
	}

	q := `
		SELECT actor_hash, failed_count, blocked_until, updated_at
		FROM attempt_locks
		WHERE actor_hash = $1` + r.dialect.lockClause()
	l, err := scanAttemptLock(r.q.QueryRowContext(ctx, q, actorHash))
	if err != nil {
		return nil, fmt.Errorf("attempt lock acquire: %w", err)
	}
	return l, nil
}

// Get is the read-only lookup; nil when the actor never attempted.
func (r *AttemptLockRepository) Get(ctx context.Context, actorHash string) (*models.AttemptLock, error) {
	const q = `
		SELECT actor_hash, failed_count, blocked_until, updated_at
		FROM attempt_locks
		WHERE actor_hash = $1
	`
	l, err := scanAttemptLock(r.q.QueryRowContext(ctx, q, actorHash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("attempt lock get: %w", err)
	}
	return l, nil
}

func (r *AttemptLockRepository) Save(ctx context.Context, l *models.AttemptLock) error {
	const q = `
		UPDATE attempt_locks
		SET failed_count = $2, blocked_until = $3, updated_at = $4
		WHERE actor_hash = $1
	`
	if _, err := r.q.ExecContext(ctx, q, l.ActorHash, l.FailedCount, nullTime(l.BlockedUntil), l.UpdatedAt); err != nil {
		return fmt.Errorf("attempt lock save: %w", err)
	}
	return nil
}

func (r *AttemptLockRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM attempt_locks`)
	if err != nil {
		return 0, fmt.Errorf("attempt locks delete: %w", err)
	}
	return res.RowsAffected()
}

func (r *AttemptLockRepository) Count(ctx context.Context) (int, error) {
	var c int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempt_locks`).Scan(&c); err != nil {
		return 0, fmt.Errorf("attempt locks count: %w", err)
	}
	return c, nil
}

// CountBlocked counts actors whose lockout is still running at now. The
// comparison happens here rather than in SQL so both dialects agree on it.
func (r *AttemptLockRepository) CountBlocked(ctx context.Context, now time.Time) (int, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT blocked_until FROM attempt_locks WHERE blocked_until IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("attempt locks blocked: %w", err)
	}
	defer rows.Close()

	var c int
	for rows.Next() {
		var until sql.NullTime
		if err := rows.Scan(&until); err != nil {
			return 0, fmt.Errorf("scan blocked_until: %w", err)
		}
		if until.Valid && now.Before(until.Time) {
			c++
		}
	}
	return c, rows.Err()
}

func scanAttemptLock(row *sql.Row) (*models.AttemptLock, error) {
	var (
		l     models.AttemptLock
		until sql.NullTime
	)
	if err := row.Scan(&l.ActorHash, &l.FailedCount, &until, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.BlockedUntil = timePtr(until)
	return &l, nil
}
