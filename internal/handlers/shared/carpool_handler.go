package handlers

import (
	"carpool-pay/internal/models"
	"carpool-pay/internal/services"
	"carpool-pay/internal/utils"
	"carpool-pay/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CarpoolHandler struct {
	carpoolService services.CarpoolService
}

func NewCarpoolHandler(carpoolService services.CarpoolService) *CarpoolHandler {
	return &CarpoolHandler{
		carpoolService: carpoolService,
	}
}

// CreateSession opens a confirmation session for an accepted match.
func (h *CarpoolHandler) CreateSession(c *gin.Context) {
	var request validators.CreateSessionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateCreateSession(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	var transactionID *primitive.ObjectID
	if request.TransactionID != "" {
		id, _ := primitive.ObjectIDFromHex(request.TransactionID)
		transactionID = &id
	}

	session, err := h.carpoolService.CreateSession(c.Request.Context(), request.MatchID, request.SessionID, transactionID, request.AuthRef)
	if err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.CreatedResponse(c, "Session created successfully", session)
}

// GetSession retrieves a session by its match and session ids.
func (h *CarpoolHandler) GetSession(c *gin.Context) {
	session, err := h.carpoolService.GetSession(c.Request.Context(), c.Param("match_id"), c.Param("session_id"))
	if err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.SuccessResponse(c, "Session retrieved successfully", session)
}

// SubmitResponse records one party's confirmation. When it completes the
// pair the session is decided in the same request.
func (h *CarpoolHandler) SubmitResponse(c *gin.Context) {
	var request validators.SubmitResponseRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateSubmitResponse(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	session, err := h.carpoolService.SubmitResponse(
		c.Request.Context(),
		c.Param("match_id"),
		c.Param("session_id"),
		models.SessionParty(request.Party),
		models.SessionResponse(request.Response),
		request.AmountMinor,
	)
	if err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.SuccessResponse(c, "Response recorded successfully", session)
}

// Evaluate re-runs the decision for a session, typically after an operator
// nudge or a retried evaluation.
func (h *CarpoolHandler) Evaluate(c *gin.Context) {
	session, err := h.carpoolService.Evaluate(c.Request.Context(), c.Param("match_id"), c.Param("session_id"))
	if err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.SuccessResponse(c, "Session evaluated successfully", session)
}

// Resolve is the operator decision for a disputed or review session.
func (h *CarpoolHandler) Resolve(c *gin.Context) {
	var request validators.ResolveSessionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateResolveSession(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	session, err := h.carpoolService.Resolve(
		c.Request.Context(),
		c.Param("match_id"),
		c.Param("session_id"),
		request.Outcome == "approve",
		request.Reason,
	)
	if err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.SuccessResponse(c, "Session resolved successfully", session)
}

// ListEscalated pages through sessions waiting for an operator.
func (h *CarpoolHandler) ListEscalated(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	sessions, total, err := h.carpoolService.ListEscalated(c.Request.Context(), params)
	if err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.SuccessResponseWithMeta(c, "Escalated sessions retrieved successfully", sessions, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
		Total:      total,
		Count:      len(sessions),
	})
}

// SweepStale escalates pending sessions past the response window.
func (h *CarpoolHandler) SweepStale(c *gin.Context) {
	escalated, err := h.carpoolService.SweepStale(c.Request.Context())
	if err != nil {
		code, status := utils.ErrorKind(err)
		utils.ErrorResponse(c, status, code, err.Error())
		return
	}

	utils.SuccessResponse(c, "Stale session sweep completed", gin.H{
		"escalated": escalated,
	})
}
