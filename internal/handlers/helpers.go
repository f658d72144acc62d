package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"secretcontest/internal/middleware"
	"secretcontest/internal/models"
	"secretcontest/internal/services"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	OK           bool   `json:"ok" example:"false"`
	Reason       string `json:"reason" example:"wrong_code"`
	Remaining    *int   `json:"remaining,omitempty" example:"2"`
	BlockedUntil string `json:"blockedUntil,omitempty" example:"2030-01-01T12:10:00Z"`
}

func actorFromContext(c *gin.Context, resolver *services.ActorResolver) string {
	return resolver.Resolve(middleware.DeviceFromContext(c))
}

func respondReason(c *gin.Context, status int, reason string) {
	c.JSON(status, ErrorResponse{Reason: reason})
}

// respondError maps service errors onto status codes and reasons. Anything
// unrecognised is a server_error, never a success.
func respondError(c *gin.Context, op string, err error) {
	var attempt *services.AttemptError
	switch {
	case errors.As(err, &attempt) && errors.Is(attempt.Err, services.ErrBlocked):
		remaining := 0
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Reason:       models.ReasonBlocked,
			Remaining:    &remaining,
			BlockedUntil: attempt.BlockedUntil.UTC().Format(time.RFC3339Nano),
		})
	case errors.As(err, &attempt):
		remaining := attempt.Remaining
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Reason:    models.ReasonWrongCode,
			Remaining: &remaining,
		})
	case errors.Is(err, services.ErrInvalidFormat):
		respondReason(c, http.StatusBadRequest, models.ReasonInvalidFormat)
	case errors.Is(err, services.ErrAlreadyWon):
		respondReason(c, http.StatusConflict, models.ReasonAlreadyWon)
	case errors.Is(err, services.ErrUnauthorized):
		respondReason(c, http.StatusUnauthorized, models.ReasonUnauthorized)
	case errors.Is(err, services.ErrConflict):
		respondReason(c, http.StatusConflict, models.ReasonConflict)
	case errors.Is(err, services.ErrForbidden):
		respondReason(c, http.StatusForbidden, models.ReasonForbidden)
	default:
		log.Printf("[http][%s] internal error: %v", op, err)
		respondReason(c, http.StatusInternalServerError, models.ReasonServerError)
	}
}
