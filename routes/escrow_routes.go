package routes

import (
	shared "carpool-pay/internal/handlers/shared"

	"github.com/gin-gonic/gin"
)

// SetupEscrowRoutes sets up routes for the escrow transaction lifecycle
func SetupEscrowRoutes(r *gin.RouterGroup, escrowHandler *shared.EscrowHandler) {
	escrows := r.Group("/escrows")
	{
		escrows.POST("/", escrowHandler.OpenEscrow)
		escrows.GET("/:id", escrowHandler.GetEscrow)
		escrows.POST("/:id/settle", escrowHandler.SettleEscrow)
		escrows.POST("/:id/reverse", escrowHandler.ReverseEscrow)
	}

	// Cancellation of a pending hold is an operator action.
	admin := r.Group("/admin/escrows")
	{
		admin.POST("/:id/cancel", escrowHandler.CancelEscrow)
	}
}
