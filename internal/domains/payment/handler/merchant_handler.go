package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"paygate-backend/internal/domains/payment/model"
	"paygate-backend/internal/domains/payment/service"
	teammodel "paygate-backend/internal/domains/team/model"
	teamservice "paygate-backend/internal/domains/team/service"
	"paygate-backend/internal/shared/errcodes"
	"paygate-backend/internal/shared/response"
)

// =====================================================
// MERCHANT API HANDLER
// =====================================================
// The merchant surface always answers HTTP 200 with the envelope
// carrying Success/ErrorCode; transport-level status codes are reserved
// for infrastructure failures.

type MerchantHandler struct {
	teams     *teamservice.TeamService
	lifecycle *service.LifecycleService
}

func NewMerchantHandler(teams *teamservice.TeamService, lifecycle *service.LifecycleService) *MerchantHandler {
	return &MerchantHandler{teams: teams, lifecycle: lifecycle}
}

// RegisterRoutes registers the merchant endpoints.
func (h *MerchantHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/init", h.Init)
	router.POST("/confirm", h.Confirm)
	router.POST("/cancel", h.Cancel)
	router.POST("/refund", h.Refund)
	router.POST("/getState", h.GetState)
	router.POST("/check", h.Check)
}

// =====================================================
// INIT
// =====================================================

// Init creates a payment session.
//
// Business Logic Flow:
// 1. Bind and validate the request body.
// 2. Authenticate the merchant by recomputing the canonical token.
// 3. Delegate to the lifecycle service (duplicate check, rules,
//    INIT -> NEW).
// 4. Answer with PaymentId and PaymentURL.
func (h *MerchantHandler) Init(c *gin.Context) {
	var req model.InitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.MerchantError(c, errcodes.InvalidParams, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		response.MerchantError(c, errcodes.InvalidParams, err.Error())
		return
	}

	team, err := h.teams.Authenticate(c.Request.Context(), req.TeamSlug, req.TokenParams(), req.Token)
	if err != nil {
		h.merchantAuthError(c, err)
		return
	}

	payment, err := h.lifecycle.Initialize(c.Request.Context(), team, req)
	if err != nil {
		h.merchantError(c, err)
		return
	}

	body := response.Merchant{
		Status:    string(payment.Status),
		PaymentID: payment.PaymentID,
		OrderID:   payment.OrderID,
		Amount:    payment.Amount,
	}
	if payment.PaymentURL != nil {
		body.PaymentURL = *payment.PaymentURL
	}
	response.MerchantSuccess(c, body)
}

// =====================================================
// LIFECYCLE OPERATIONS
// =====================================================

// Confirm captures an authorized payment.
func (h *MerchantHandler) Confirm(c *gin.Context) {
	req, team, ok := h.bindOperation(c)
	if !ok {
		return
	}

	payment, err := h.lifecycle.Confirm(c.Request.Context(), req.PaymentID, team.TeamSlug)
	if err != nil {
		h.merchantError(c, err)
		return
	}
	h.answerWithPayment(c, payment)
}

// Cancel voids a payment.
func (h *MerchantHandler) Cancel(c *gin.Context) {
	req, team, ok := h.bindOperation(c)
	if !ok {
		return
	}

	payment, err := h.lifecycle.Cancel(c.Request.Context(), req.PaymentID, team.TeamSlug, req.Reason)
	if err != nil {
		h.merchantError(c, err)
		return
	}
	h.answerWithPayment(c, payment)
}

// Refund returns part or all of a confirmed payment. Amount is the
// refund amount in minor units.
func (h *MerchantHandler) Refund(c *gin.Context) {
	req, team, ok := h.bindOperation(c)
	if !ok {
		return
	}

	payment, err := h.lifecycle.Refund(c.Request.Context(), req.PaymentID, team.TeamSlug, req.Amount, req.Reason)
	if err != nil {
		h.merchantError(c, err)
		return
	}
	h.answerWithPayment(c, payment)
}

// =====================================================
// QUERIES
// =====================================================

// GetState answers the current status of a payment.
func (h *MerchantHandler) GetState(c *gin.Context) {
	req, _, ok := h.bindOperation(c)
	if !ok {
		return
	}

	state, err := h.lifecycle.GetStatus(c.Request.Context(), req.PaymentID)
	if err != nil {
		h.merchantError(c, err)
		return
	}

	body := response.Merchant{
		Status:    string(state.Status),
		PaymentID: state.PaymentID,
		OrderID:   state.OrderID,
		Amount:    state.Amount,
	}
	if state.ErrorCode != nil {
		body.ErrorCode = *state.ErrorCode
	}
	if state.ErrorMessage != nil {
		body.Message = *state.ErrorMessage
	}
	response.MerchantSuccess(c, body)
}

// Check reports whether the payment session is still usable.
func (h *MerchantHandler) Check(c *gin.Context) {
	req, _, ok := h.bindOperation(c)
	if !ok {
		return
	}

	expired, err := h.lifecycle.IsExpired(c.Request.Context(), req.PaymentID)
	if err != nil {
		h.merchantError(c, err)
		return
	}
	if expired {
		response.MerchantError(c, errcodes.PaymentExpired, nil)
		return
	}

	state, err := h.lifecycle.GetStatus(c.Request.Context(), req.PaymentID)
	if err != nil {
		h.merchantError(c, err)
		return
	}
	response.MerchantSuccess(c, response.Merchant{
		Status:    string(state.Status),
		PaymentID: state.PaymentID,
		OrderID:   state.OrderID,
		Amount:    state.Amount,
	})
}

// =====================================================
// HELPERS
// =====================================================

// bindOperation binds, validates and authenticates the shared
// operation request shape.
func (h *MerchantHandler) bindOperation(c *gin.Context) (model.OperationRequest, *teammodel.Team, bool) {
	var req model.OperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.MerchantError(c, errcodes.InvalidParams, err.Error())
		return req, nil, false
	}
	if err := req.Validate(); err != nil {
		response.MerchantError(c, errcodes.InvalidParams, err.Error())
		return req, nil, false
	}

	team, err := h.teams.Authenticate(c.Request.Context(), req.TeamSlug, req.TokenParams(), req.Token)
	if err != nil {
		h.merchantAuthError(c, err)
		return req, nil, false
	}
	return req, team, true
}

func (h *MerchantHandler) answerWithPayment(c *gin.Context, payment *model.Payment) {
	body := response.Merchant{
		Status:    string(payment.Status),
		PaymentID: payment.PaymentID,
		OrderID:   payment.OrderID,
		Amount:    payment.Amount,
	}
	response.MerchantSuccess(c, body)
}

func (h *MerchantHandler) merchantAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, teammodel.ErrTeamLocked):
		response.MerchantError(c, errcodes.TeamBlocked, nil)
	case errors.Is(err, teammodel.ErrTeamInactive):
		response.MerchantError(c, errcodes.TeamBlocked, nil)
	case errors.Is(err, teammodel.ErrTeamNotFound):
		response.MerchantError(c, errcodes.TeamNotFound, nil)
	default:
		response.MerchantError(c, errcodes.AuthenticationFail, nil)
	}
}

// merchantError maps service errors onto the envelope.
func (h *MerchantHandler) merchantError(c *gin.Context, err error) {
	var pErr *model.PaymentError
	if errors.As(err, &pErr) {
		response.MerchantError(c, pErr.Code, pErr.Details)
		return
	}
	if errors.Is(err, model.ErrPaymentNotFound) {
		response.MerchantError(c, errcodes.PaymentNotFound, nil)
		return
	}
	response.MerchantError(c, errcodes.InternalError, nil)
}
