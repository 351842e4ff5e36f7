package handlers

import (
	"carpool-pay/internal/services"
	"carpool-pay/internal/utils"
	"carpool-pay/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EscrowHandler struct {
	escrowService services.EscrowService
}

func NewEscrowHandler(escrowService services.EscrowService) *EscrowHandler {
	return &EscrowHandler{
		escrowService: escrowService,
	}
}

// OpenEscrow debits the rider and opens a pending hold for the match.
func (h *EscrowHandler) OpenEscrow(c *gin.Context) {
	var request validators.OpenEscrowRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateOpenEscrow(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	riderID, _ := primitive.ObjectIDFromHex(request.RiderID)
	driverID, _ := primitive.ObjectIDFromHex(request.DriverID)

	txn, err := h.escrowService.OpenEscrow(c.Request.Context(), riderID, driverID, request.AmountMinor, request.Currency, request.MatchID, request.AuthRef)
	if err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.CreatedResponse(c, "Escrow opened successfully", txn)
}

// GetEscrow retrieves an escrow transaction by id.
func (h *EscrowHandler) GetEscrow(c *gin.Context) {
	transactionID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid transaction ID")
		return
	}

	txn, err := h.escrowService.Get(c.Request.Context(), transactionID)
	if err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.SuccessResponse(c, "Escrow transaction retrieved successfully", txn)
}

// SettleEscrow releases the held funds to the driver.
func (h *EscrowHandler) SettleEscrow(c *gin.Context) {
	transactionID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid transaction ID")
		return
	}

	if err := h.escrowService.Settle(c.Request.Context(), transactionID); err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.SuccessResponse(c, "Escrow settled successfully", nil)
}

// ReverseEscrow refunds the rider, clawing back the driver credit when the
// transaction had already settled.
func (h *EscrowHandler) ReverseEscrow(c *gin.Context) {
	transactionID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid transaction ID")
		return
	}

	var request validators.ReverseEscrowRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateReverseEscrow(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	refundRef, err := h.escrowService.Reverse(c.Request.Context(), transactionID, request.Reason)
	if err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.SuccessResponse(c, "Escrow reversed successfully", gin.H{
		"refund_ref": refundRef,
	})
}

// CancelEscrow voids a still-pending hold and returns the funds to the rider.
func (h *EscrowHandler) CancelEscrow(c *gin.Context) {
	transactionID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid transaction ID")
		return
	}

	var request validators.CancelEscrowRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateCancelEscrow(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	if err := h.escrowService.Cancel(c.Request.Context(), transactionID, request.Reason); err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.SuccessResponse(c, "Escrow cancelled successfully", nil)
}
