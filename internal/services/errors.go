package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidFormat = errors.New("invalid format")
	ErrWrongCode     = errors.New("wrong code")
	ErrBlocked       = errors.New("blocked")
	ErrAlreadyWon    = errors.New("already won")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")
)

// AttemptError carries the lockout details of a rejected code attempt.
// It unwraps to ErrWrongCode or ErrBlocked.
type AttemptError struct {
	Err          error
	Remaining    int
	BlockedUntil time.Time
}

func (e *AttemptError) Error() string {
	if errors.Is(e.Err, ErrBlocked) {
		return fmt.Sprintf("%v until %s", e.Err, e.BlockedUntil.Format(time.RFC3339))
	}
	return fmt.Sprintf("%v, %d attempts remaining", e.Err, e.Remaining)
}

func (e *AttemptError) Unwrap() error { return e.Err }
