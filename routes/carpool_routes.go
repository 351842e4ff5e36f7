package routes

import (
	shared "carpool-pay/internal/handlers/shared"

	"github.com/gin-gonic/gin"
)

// SetupCarpoolRoutes sets up routes for dual confirmation sessions
func SetupCarpoolRoutes(r *gin.RouterGroup, carpoolHandler *shared.CarpoolHandler) {
	sessions := r.Group("/sessions")
	{
		sessions.POST("/", carpoolHandler.CreateSession)
		sessions.GET("/:match_id/:session_id", carpoolHandler.GetSession)
		sessions.POST("/:match_id/:session_id/responses", carpoolHandler.SubmitResponse)
		sessions.POST("/:match_id/:session_id/evaluate", carpoolHandler.Evaluate)
	}

	// Operator review queue
	admin := r.Group("/admin/sessions")
	{
		admin.GET("/escalated", carpoolHandler.ListEscalated)
		admin.POST("/:match_id/:session_id/resolve", carpoolHandler.Resolve)
		admin.POST("/sweep", carpoolHandler.SweepStale)
	}
}
