package routes

import (
	shared "carpool-pay/internal/handlers/shared"

	"github.com/gin-gonic/gin"
)

// SetupWalletRoutes sets up routes for wallet balances, top-ups and payouts
func SetupWalletRoutes(r *gin.RouterGroup, walletHandler *shared.WalletHandler) {
	wallets := r.Group("/wallets")
	{
		wallets.GET("/:user_id/balance", walletHandler.GetBalance)
		wallets.POST("/topups", walletHandler.CreateTopUp)
		wallets.POST("/topups/confirm", walletHandler.ConfirmTopUp)
		wallets.POST("/withdrawals", walletHandler.Withdraw)
		wallets.POST("/transfers", walletHandler.Transfer)
	}
}
