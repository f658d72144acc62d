package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"secretcontest/internal/models"
)

// ActorResolver turns device metadata into the pseudonymous actor hash used as
// the key for attempt locks, the winner and claim tokens.
type ActorResolver struct {
	pepper []byte
}

func NewActorResolver(pepper string) *ActorResolver {
	return &ActorResolver{pepper: []byte(pepper)}
}

// Resolve is deterministic. A presented device token identifies the actor on
// its own; without one the connection metadata stands in, so dropping the
// token does not yield a fresh attempt budget on every request.
func (r *ActorResolver) Resolve(d models.Device) string {
	mac := hmac.New(sha256.New, r.pepper)
	if d.Presented && d.ID != "" {
		mac.Write([]byte("device|" + d.ID))
	} else {
		mac.Write([]byte("conn|" + d.IP + "|" + d.UserAgent))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// shortActor trims an actor hash for log lines.
func shortActor(actor string) string {
	if len(actor) > 12 {
		return actor[:12]
	}
	return actor
}
