package routes

import (
	"github.com/gin-gonic/gin"

	"secretcontest/internal/handlers"
)

// SetupRoutes registers the public contest API. device resolves the caller's
// device token; throttle (may be nil) guards code entry only.
func SetupRoutes(
	r *gin.Engine,
	contestHandler *handlers.ContestHandler,
	adminHandler *handlers.AdminHandler,
	healthHandler *handlers.HealthHandler,
	device gin.HandlerFunc,
	throttle gin.HandlerFunc,
) *gin.Engine {
	r.GET("/healthz", healthHandler.Health)

	api := r.Group("/api", device)
	{
		api.GET("/status", contestHandler.Status)

		enter := []gin.HandlerFunc{contestHandler.EnterCode}
		if throttle != nil {
			enter = append([]gin.HandlerFunc{throttle}, enter...)
		}
		api.POST("/enter-code", enter...)
		api.POST("/submit-contact", contestHandler.SubmitContact)
	}

	// ---- admin (test mode only; the service refuses otherwise)
	r.POST("/api/admin/reset", adminHandler.Reset)

	return r
}
