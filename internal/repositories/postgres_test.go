package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postgresURLEnv names a scratch database for the integration tests below.
// Its contest tables are wiped before and after each test.
const postgresURLEnv = "CONTEST_TEST_POSTGRES_URL"

func newPostgresTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv(postgresURLEnv)
	if url == "" {
		t.Skipf("%s not set", postgresURLEnv)
	}
	db, err := Open("postgres", url)
	require.NoError(t, err)
	require.NoError(t, Migrate(context.Background(), db))
	require.NoError(t, wipe(context.Background(), db))
	t.Cleanup(func() {
		_ = wipe(context.Background(), db)
		_ = db.Close()
	})
	return db
}

func wipe(ctx context.Context, db *DB) error {
	return db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := NewAttemptLockRepository(db).WithTx(tx).DeleteAll(ctx); err != nil {
			return err
		}
		if _, err := NewClaimTokenRepository(db).WithTx(tx).DeleteAll(ctx); err != nil {
			return err
		}
		if _, err := NewWinnerContactRepository(db).WithTx(tx).DeleteAll(ctx); err != nil {
			return err
		}
		return NewContestStateRepository(db).WithTx(tx).Clear(ctx)
	})
}

func TestPostgresConcurrentClaimsHaveOneWinner(t *testing.T) {
	db := newPostgresTestDB(t)
	repo := NewContestStateRepository(db)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		start   = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := fmt.Sprintf("actor-%d", i)
			<-start
			err := db.InTx(context.Background(), func(tx *sql.Tx) error {
				won, err := repo.WithTx(tx).TryClaimWin(context.Background(), actor, t0)
				if err != nil || !won {
					return err
				}
				mu.Lock()
				winners = append(winners, actor)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	st, err := repo.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st.WinnerActorHash)
	assert.Equal(t, winners[0], *st.WinnerActorHash)
}

func TestPostgresAttemptLockSerializesReadModifyWrite(t *testing.T) {
	db := newPostgresTestDB(t)
	repo := NewAttemptLockRepository(db)

	const n = 20
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := db.InTx(context.Background(), func(tx *sql.Tx) error {
				l, err := repo.WithTx(tx).Acquire(context.Background(), "actor", t0)
				if err != nil {
					return err
				}
				l.FailedCount++
				return repo.WithTx(tx).Save(context.Background(), l)
			})
			assert.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	l, err := repo.Get(context.Background(), "actor")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, n, l.FailedCount, "no increment may be lost")
}
