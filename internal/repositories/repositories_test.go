package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secretcontest/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "contest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

var t0 = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))

	var version int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT version FROM schema_version`).Scan(&version))
	assert.Equal(t, 1, version)

	var rows int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contest_state`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "x")
	assert.Error(t, err)
}

func TestContestStateTryClaimWinOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewContestStateRepository(db)

	closed, err := repo.IsClosed(ctx)
	require.NoError(t, err)
	assert.False(t, closed)

	won, err := repo.TryClaimWin(ctx, "actor-a", t0)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.TryClaimWin(ctx, "actor-b", t0.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, won)

	st, err := repo.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.WinnerActorHash)
	assert.Equal(t, "actor-a", *st.WinnerActorHash)
	require.NotNil(t, st.WinnerClaimedAt)
	assert.True(t, st.WinnerClaimedAt.Equal(t0))
	assert.True(t, st.Closed())
}

func TestContestStateConcurrentClaimsHaveOneWinner(t *testing.T) {
	db := newTestDB(t)
	repo := NewContestStateRepository(db)

	const n = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			won, err := repo.TryClaimWin(context.Background(), fmt.Sprintf("actor-%d", i), t0)
			assert.NoError(t, err)
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestContestStateMarkContactSubmittedOnlyForWinner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewContestStateRepository(db)

	ok, err := repo.MarkContactSubmitted(ctx, "actor-a")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.TryClaimWin(ctx, "actor-a", t0)
	require.NoError(t, err)

	ok, err = repo.MarkContactSubmitted(ctx, "actor-b")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.MarkContactSubmitted(ctx, "actor-a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.Clear(ctx))
	st, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.False(t, st.Closed())
	assert.False(t, st.ContactSubmitted)
	assert.Nil(t, st.WinnerClaimedAt)
}

func TestAttemptLockAcquireAndSave(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewAttemptLockRepository(db)

	missing, err := repo.Get(ctx, "actor-a")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = db.InTx(ctx, func(tx *sql.Tx) error {
		l, err := repo.WithTx(tx).Acquire(ctx, "actor-a", t0)
		if err != nil {
			return err
		}
		assert.Equal(t, 0, l.FailedCount)
		assert.Nil(t, l.BlockedUntil)

		until := t0.Add(10 * time.Minute)
		l.FailedCount = 3
		l.BlockedUntil = &until
		l.UpdatedAt = t0
		return repo.WithTx(tx).Save(ctx, l)
	})
	require.NoError(t, err)

	l, err := repo.Get(ctx, "actor-a")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, 3, l.FailedCount)
	require.NotNil(t, l.BlockedUntil)
	assert.True(t, l.BlockedUntil.Equal(t0.Add(10*time.Minute)))
	assert.True(t, l.BlockedAt(t0.Add(time.Minute)))
	assert.False(t, l.BlockedAt(t0.Add(10*time.Minute)))

	// acquiring again keeps the existing row
	err = db.InTx(ctx, func(tx *sql.Tx) error {
		again, err := repo.WithTx(tx).Acquire(ctx, "actor-a", t0.Add(time.Hour))
		if err != nil {
			return err
		}
		assert.Equal(t, 3, again.FailedCount)
		return nil
	})
	require.NoError(t, err)

	blocked, err := repo.CountBlocked(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, blocked)
	blocked, err = repo.CountBlocked(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, blocked)

	n, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestClaimTokenIssueKeepsOneLiveTokenPerActor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewClaimTokenRepository(db)

	require.NoError(t, repo.Issue(ctx, &models.ClaimToken{TokenHash: "h1", ActorHash: "a", ExpiresAt: t0.Add(time.Minute), CreatedAt: t0}))
	require.NoError(t, repo.Issue(ctx, &models.ClaimToken{TokenHash: "h2", ActorHash: "a", ExpiresAt: t0.Add(time.Minute), CreatedAt: t0}))

	old, err := repo.GetForUpdate(ctx, "h1")
	require.NoError(t, err)
	assert.Nil(t, old)

	tok, err := repo.GetForUpdate(ctx, "h2")
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "a", tok.ActorHash)
	assert.True(t, tok.ExpiresAt.Equal(t0.Add(time.Minute)))
	assert.Nil(t, tok.UsedAt)

	unused, err := repo.CountUnused(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, unused)
}

func TestClaimTokenMarkUsedOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewClaimTokenRepository(db)
	require.NoError(t, repo.Issue(ctx, &models.ClaimToken{TokenHash: "h", ActorHash: "a", ExpiresAt: t0.Add(time.Minute), CreatedAt: t0}))

	ok, err := repo.MarkUsed(ctx, "h", t0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkUsed(ctx, "h", t0)
	require.NoError(t, err)
	assert.False(t, ok)

	tok, err := repo.GetForUpdate(ctx, "h")
	require.NoError(t, err)
	require.NotNil(t, tok.UsedAt)

	// a spent token does not block issuing a new one
	require.NoError(t, repo.Issue(ctx, &models.ClaimToken{TokenHash: "h2", ActorHash: "a", ExpiresAt: t0.Add(time.Minute), CreatedAt: t0}))

	n, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestWinnerContactCreateOncePerActor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewWinnerContactRepository(db)

	latest, err := repo.GetLatest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	phone := "+1555"
	ok, err := repo.Create(ctx, &models.WinnerContact{ActorHash: "a", Name: "Ada", Email: "ada@example.com", Phone: &phone, CreatedAt: t0})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Create(ctx, &models.WinnerContact{ActorHash: "a", Name: "Eve", Email: "eve@example.com", CreatedAt: t0})
	require.NoError(t, err)
	assert.False(t, ok)

	latest, err = repo.GetLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "Ada", latest.Name)
	require.NotNil(t, latest.Phone)
	assert.Equal(t, phone, *latest.Phone)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInTxRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sentinel := errors.New("stop")

	err := db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := NewContestStateRepository(db).WithTx(tx).TryClaimWin(ctx, "a", t0); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	closed, err := NewContestStateRepository(db).IsClosed(ctx)
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("syntax error")))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", driver.ErrBadConn)))
	assert.True(t, IsTransient(&pq.Error{Code: "40001"}))
	assert.True(t, IsTransient(&pq.Error{Code: "08006"}))
	assert.False(t, IsTransient(&pq.Error{Code: "23505"}))
}
