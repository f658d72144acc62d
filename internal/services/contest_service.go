package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"secretcontest/internal/models"
	"secretcontest/internal/repositories"
	"secretcontest/internal/utils"
)

const (
	statusReadAttempts = 3
	statusRetryBackoff = 50 * time.Millisecond
	notifyTimeout      = 15 * time.Second
	claimTokenBytes    = 32
)

// ContestSettings is built once at startup and never changes afterwards.
type ContestSettings struct {
	Code              CodeShape
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	ClaimTokenTTL     time.Duration
	TestMode          bool
	AdminResetKey     string
}

type ContactSubmission struct {
	ClaimToken string
	Name       string
	Email      string
	Phone      *string
}

type ContestService interface {
	// Status reports whether somebody already won.
	Status(ctx context.Context) (closed bool, err error)
	// EnterCode returns the plaintext claim token on a win.
	EnterCode(ctx context.Context, actor, code string) (claimToken string, err error)
	SubmitContact(ctx context.Context, actor string, in ContactSubmission) (notified bool, err error)
	Reset(ctx context.Context, credential string) error
}

// statusReader is the read side Status retries against.
type statusReader interface {
	IsClosed(ctx context.Context) (bool, error)
}

type contestService struct {
	db       *repositories.DB
	state    *repositories.ContestStateRepository
	status   statusReader
	locks    *repositories.AttemptLockRepository
	tokens   *repositories.ClaimTokenRepository
	contacts *repositories.WinnerContactRepository
	verifier CodeVerifier
	notifier Notifier
	settings ContestSettings
	now      func() time.Time
}

// NewContestService wires the engine. notifier may be nil; clock may be nil for
// wall-clock UTC.
func NewContestService(
	db *repositories.DB,
	verifier CodeVerifier,
	notifier Notifier,
	settings ContestSettings,
	clock func() time.Time,
) ContestService {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
	state := repositories.NewContestStateRepository(db)
	return &contestService{
		db:       db,
		state:    state,
		status:   state,
		locks:    repositories.NewAttemptLockRepository(db),
		tokens:   repositories.NewClaimTokenRepository(db),
		contacts: repositories.NewWinnerContactRepository(db),
		verifier: verifier,
		notifier: notifier,
		settings: settings,
		now:      clock,
	}
}

func (s *contestService) Status(ctx context.Context) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= statusReadAttempts; attempt++ {
		closed, err := s.status.IsClosed(ctx)
		if err == nil {
			return closed, nil
		}
		lastErr = err
		if !repositories.IsTransient(err) || attempt == statusReadAttempts {
			break
		}
		log.Printf("[contest][status] transient store error, retry %d: %v", attempt, err)
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Duration(attempt) * statusRetryBackoff):
		}
	}
	return false, lastErr
}

func (s *contestService) EnterCode(ctx context.Context, actor, code string) (string, error) {
	code = strings.TrimSpace(code)
	if !s.settings.Code.Matches(code) {
		log.Printf("[contest][enter] actor=%s result=%s", shortActor(actor), models.ReasonInvalidFormat)
		return "", ErrInvalidFormat
	}

	now := s.now()
	var (
		claimToken string
		// outcome is a rejection that still has to be committed (a consumed attempt)
		outcome error
	)
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		closed, err := s.state.WithTx(tx).IsClosed(ctx)
		if err != nil {
			return err
		}
		if closed {
			return ErrAlreadyWon
		}

		locks := s.locks.WithTx(tx)
		lock, err := locks.Acquire(ctx, actor, now)
		if err != nil {
			return err
		}
		if lock.BlockedAt(now) {
			return &AttemptError{Err: ErrBlocked, BlockedUntil: *lock.BlockedUntil}
		}
		if lock.BlockedUntil != nil {
			// lockout ran out: fresh budget for this attempt
			lock.FailedCount = 0
			lock.BlockedUntil = nil
		}

		ok, err := s.verifier.Verify(code)
		if err != nil {
			return fmt.Errorf("verify code: %w", err)
		}
		lock.UpdatedAt = now

		if !ok {
			lock.FailedCount++
			if lock.FailedCount >= s.settings.MaxFailedAttempts {
				until := now.Add(s.settings.LockoutDuration)
				lock.BlockedUntil = &until
				outcome = &AttemptError{Err: ErrBlocked, BlockedUntil: until}
			} else {
				outcome = &AttemptError{Err: ErrWrongCode, Remaining: s.settings.MaxFailedAttempts - lock.FailedCount}
			}
			return locks.Save(ctx, lock)
		}

		lock.FailedCount = 0
		lock.BlockedUntil = nil
		if err := locks.Save(ctx, lock); err != nil {
			return err
		}

		raw, err := utils.NewOpaqueToken(claimTokenBytes)
		if err != nil {
			return fmt.Errorf("claim token: %w", err)
		}
		if err := s.tokens.WithTx(tx).Issue(ctx, &models.ClaimToken{
			TokenHash: utils.HashToken(raw),
			ActorHash: actor,
			ExpiresAt: now.Add(s.settings.ClaimTokenTTL),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		won, err := s.state.WithTx(tx).TryClaimWin(ctx, actor, now)
		if err != nil {
			return err
		}
		if !won {
			// somebody committed first; roll back our token
			return ErrAlreadyWon
		}
		claimToken = raw
		return nil
	})
	if err == nil {
		err = outcome
	}

	if err != nil {
		if isContestError(err) {
			log.Printf("[contest][enter] actor=%s result=%v", shortActor(actor), err)
		} else {
			log.Printf("[contest][enter] actor=%s store error: %v", shortActor(actor), err)
		}
		return "", err
	}
	log.Printf("[contest][enter] actor=%s result=won", shortActor(actor))
	return claimToken, nil
}

func (s *contestService) SubmitContact(ctx context.Context, actor string, in ContactSubmission) (bool, error) {
	contact, err := normalizeContact(in)
	if err != nil {
		log.Printf("[contest][contact] actor=%s rejected: %v", shortActor(actor), err)
		return false, err
	}
	token := strings.TrimSpace(in.ClaimToken)
	if token == "" {
		return false, fmt.Errorf("%w: claim token is required", ErrInvalidFormat)
	}

	now := s.now()
	contact.ActorHash = actor
	contact.CreatedAt = now
	tokenHash := utils.HashToken(token)

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		tokens := s.tokens.WithTx(tx)
		t, err := tokens.GetForUpdate(ctx, tokenHash)
		if err != nil {
			return err
		}
		// unknown, spent, expired and foreign tokens all look the same to the caller
		if t == nil || t.UsedAt != nil || !now.Before(t.ExpiresAt) ||
			subtle.ConstantTimeCompare([]byte(t.ActorHash), []byte(actor)) != 1 {
			return ErrUnauthorized
		}

		created, err := s.contacts.WithTx(tx).Create(ctx, &contact)
		if err != nil {
			return err
		}
		if !created {
			return ErrConflict
		}

		used, err := tokens.MarkUsed(ctx, tokenHash, now)
		if err != nil {
			return err
		}
		if !used {
			return ErrUnauthorized
		}

		marked, err := s.state.WithTx(tx).MarkContactSubmitted(ctx, actor)
		if err != nil {
			return err
		}
		if !marked {
			// token outlived its winner (reset in between)
			return ErrUnauthorized
		}
		return nil
	})
	if err != nil {
		if isContestError(err) {
			log.Printf("[contest][contact] actor=%s result=%v", shortActor(actor), err)
		} else {
			log.Printf("[contest][contact] actor=%s store error: %v", shortActor(actor), err)
		}
		return false, err
	}
	log.Printf("[contest][contact] actor=%s result=stored", shortActor(actor))

	if s.notifier == nil {
		return false, nil
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.NotifyWinner(nctx, contact); err != nil {
		log.Printf("[contest][contact] notify failed: %v", err)
		return false, nil
	}
	return true, nil
}

func (s *contestService) Reset(ctx context.Context, credential string) error {
	if !s.settings.TestMode || s.settings.AdminResetKey == "" ||
		subtle.ConstantTimeCompare([]byte(credential), []byte(s.settings.AdminResetKey)) != 1 {
		log.Printf("[contest][reset] refused (test_mode=%v)", s.settings.TestMode)
		return ErrForbidden
	}

	var locks, tokens, contacts int64
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		var err error
		// same table order as EnterCode/SubmitContact: locks, tokens, contacts, state
		if locks, err = s.locks.WithTx(tx).DeleteAll(ctx); err != nil {
			return err
		}
		if tokens, err = s.tokens.WithTx(tx).DeleteAll(ctx); err != nil {
			return err
		}
		if contacts, err = s.contacts.WithTx(tx).DeleteAll(ctx); err != nil {
			return err
		}
		return s.state.WithTx(tx).Clear(ctx)
	})
	if err != nil {
		log.Printf("[contest][reset] failed: %v", err)
		return err
	}
	log.Printf("[contest][reset] done locks=%d tokens=%d contacts=%d", locks, tokens, contacts)
	return nil
}

var contactValidator = validator.New()

type contactFields struct {
	Name  string `validate:"required,max=200"`
	Email string `validate:"required,email,max=320"`
	Phone string `validate:"omitempty,max=50"`
}

func normalizeContact(in ContactSubmission) (models.WinnerContact, error) {
	f := contactFields{
		Name:  strings.TrimSpace(in.Name),
		Email: strings.TrimSpace(in.Email),
	}
	if in.Phone != nil {
		f.Phone = strings.TrimSpace(*in.Phone)
	}
	c := models.WinnerContact{Name: f.Name, Email: f.Email}
	if err := contactValidator.Struct(f); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return c, fmt.Errorf("%w: %s fails %q", ErrInvalidFormat, strings.ToLower(fe.Field()), fe.Tag())
		}
		return c, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if f.Phone != "" {
		c.Phone = &f.Phone
	}
	return c, nil
}

func isContestError(err error) bool {
	for _, target := range []error{
		ErrInvalidFormat, ErrWrongCode, ErrBlocked, ErrAlreadyWon, ErrUnauthorized, ErrForbidden, ErrConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
