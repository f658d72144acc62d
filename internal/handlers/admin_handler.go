package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"secretcontest/internal/services"
)

const ResetKeyHeader = "X-Reset-Key"

type AdminHandler struct {
	service services.ContestService
}

func NewAdminHandler(service services.ContestService) *AdminHandler {
	return &AdminHandler{service: service}
}

type ResetResponse struct {
	OK    bool `json:"ok" example:"true"`
	Reset bool `json:"reset" example:"true"`
}

// @Summary      Reset the contest
// @Description  Clears the winner, tokens, contacts and lockouts. Only available in test mode.
// @Tags         Admin
// @Produce      json
// @Param        X-Reset-Key  header    string  true  "Admin reset key"
// @Success      200          {object}  ResetResponse
// @Failure      403          {object}  ErrorResponse
// @Failure      500          {object}  ErrorResponse
// @Router       /api/admin/reset [post]
func (h *AdminHandler) Reset(c *gin.Context) {
	if err := h.service.Reset(c.Request.Context(), c.GetHeader(ResetKeyHeader)); err != nil {
		respondError(c, "admin-reset", err)
		return
	}
	c.JSON(http.StatusOK, ResetResponse{OK: true, Reset: true})
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// @Summary      Liveness and database check
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Failure      503  {object}  map[string]bool
// @Router       /healthz [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
