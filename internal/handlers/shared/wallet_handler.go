package handlers

import (
	"carpool-pay/internal/services"
	"carpool-pay/internal/utils"
	"carpool-pay/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type WalletHandler struct {
	walletService services.WalletService
}

func NewWalletHandler(walletService services.WalletService) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
	}
}

// GetBalance returns the current balance for a user, zero if the wallet
// has never been touched.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, err := primitive.ObjectIDFromHex(c.Param("user_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID")
		return
	}

	balance, err := h.walletService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.SuccessResponse(c, "Balance retrieved successfully", gin.H{
		"user_id":       userID.Hex(),
		"balance_minor": balance,
	})
}

// CreateTopUp authorizes a charge against the user's payment method and
// records a pending top-up.
func (h *WalletHandler) CreateTopUp(c *gin.Context) {
	var request validators.TopUpRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateTopUp(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	userID, _ := primitive.ObjectIDFromHex(request.UserID)

	txn, auth, err := h.walletService.CreateTopUp(c.Request.Context(), userID, request.AmountMinor, request.Currency, request.PaymentMethodID)
	if err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.CreatedResponse(c, "Top-up created successfully", gin.H{
		"transaction":   txn,
		"client_secret": auth.ClientSecret,
	})
}

// ConfirmTopUp captures the authorized charge and credits the wallet.
func (h *WalletHandler) ConfirmTopUp(c *gin.Context) {
	var request validators.ConfirmTopUpRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateStruct(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	transactionID, _ := primitive.ObjectIDFromHex(request.TransactionID)

	if err := h.walletService.ConfirmTopUp(c.Request.Context(), transactionID); err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.SuccessResponse(c, "Top-up confirmed successfully", nil)
}

// Withdraw pays out wallet funds to the user's payout account.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	var request validators.WithdrawRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateWithdraw(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	userID, _ := primitive.ObjectIDFromHex(request.UserID)

	withdrawal, err := h.walletService.Withdraw(c.Request.Context(), userID, request.AmountMinor, request.Currency, request.PayoutAccountID)
	if err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.CreatedResponse(c, "Withdrawal completed successfully", withdrawal)
}

// Transfer moves funds between two wallets atomically.
func (h *WalletHandler) Transfer(c *gin.Context) {
	var request validators.TransferRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateTransfer(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	fromUserID, _ := primitive.ObjectIDFromHex(request.FromUserID)
	toUserID, _ := primitive.ObjectIDFromHex(request.ToUserID)

	if err := h.walletService.Transfer(c.Request.Context(), fromUserID, toUserID, request.AmountMinor); err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.SuccessResponse(c, "Transfer completed successfully", nil)
}
