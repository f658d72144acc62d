package models

import "time"

// Failure reasons understood by the contest frontend. The values are part of the
// public contract and must not change.
const (
	ReasonInvalidFormat = "invalid_format"
	ReasonWrongCode     = "wrong_code"
	ReasonBlocked       = "blocked"
	ReasonAlreadyWon    = "already_won"
	ReasonUnauthorized  = "unauthorized"
	ReasonForbidden     = "forbidden"
	ReasonConflict      = "conflict"
	ReasonServerError   = "server_error"
)

// ContestState is the singleton row (id = 1) holding the winner.
type ContestState struct {
	WinnerActorHash  *string    `json:"-"`
	WinnerClaimedAt  *time.Time `json:"winner_claimed_at,omitempty"`
	ContactSubmitted bool       `json:"contact_submitted"`
}

func (s ContestState) Closed() bool {
	return s.WinnerActorHash != nil
}

// AttemptLock is the per-actor failed attempt counter and lockout expiry.
type AttemptLock struct {
	ActorHash    string
	FailedCount  int
	BlockedUntil *time.Time
	UpdatedAt    time.Time
}

// BlockedAt reports whether the lockout is still running at now.
func (l *AttemptLock) BlockedAt(now time.Time) bool {
	return l.BlockedUntil != nil && now.Before(*l.BlockedUntil)
}

// ClaimToken is stored by the sha256 of the token value; the value itself is
// only ever handed to the winner.
type ClaimToken struct {
	TokenHash string
	ActorHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

type WinnerContact struct {
	ID        int64     `json:"id"`
	ActorHash string    `json:"-"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Device is what the transport layer knows about the caller before it is
// turned into an actor hash.
type Device struct {
	ID        string
	Presented bool // false when the server had to mint ID for this request
	IP        string
	UserAgent string
}
