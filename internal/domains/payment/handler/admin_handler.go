package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"paygate-backend/internal/domains/payment/model"
	"paygate-backend/internal/domains/payment/repository"
	"paygate-backend/internal/domains/payment/service"
	"paygate-backend/internal/infrastructure/lock"
	"paygate-backend/internal/shared/response"
)

// =====================================================
// ADMIN PAYMENT HANDLER
// =====================================================
// Operator surface: listing, transition history, rollbacks, manual
// retries, lock inspection and metric rollups. Protected by the admin
// JWT middleware at the router level.

type AdminHandler struct {
	lifecycle *service.LifecycleService
	retries   *service.RetryService
	repo      repository.PaymentRepository
	metrics   repository.MetricsRepository
	locks     lock.Manager
}

func NewAdminHandler(
	lifecycle *service.LifecycleService,
	retries *service.RetryService,
	repo repository.PaymentRepository,
	metrics repository.MetricsRepository,
	locks lock.Manager,
) *AdminHandler {
	return &AdminHandler{
		lifecycle: lifecycle,
		retries:   retries,
		repo:      repo,
		metrics:   metrics,
		locks:     locks,
	}
}

// RegisterRoutes registers the admin payment routes.
func (h *AdminHandler) RegisterRoutes(router *gin.RouterGroup) {
	payments := router.Group("/payments")
	{
		payments.GET("", h.ListPayments)                       // GET /admin/payments?team_slug=&status=&page=&limit=
		payments.GET("/:paymentId/history", h.GetHistory)      // GET /admin/payments/:paymentId/history
		payments.GET("/:paymentId/retries", h.GetRetryHistory) // GET /admin/payments/:paymentId/retries
		payments.POST("/:paymentId/rollback", h.Rollback)      // POST /admin/payments/:paymentId/rollback
		payments.POST("/:paymentId/retry", h.TriggerRetry)     // POST /admin/payments/:paymentId/retry
	}

	router.GET("/locks", h.ListLocks)             // GET /admin/locks
	router.GET("/metrics/rollups", h.ListRollups) // GET /admin/metrics/rollups?limit=
}

// =====================================================
// LISTING AND HISTORY
// =====================================================

func (h *AdminHandler) ListPayments(c *gin.Context) {
	var req model.ListPaymentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.Limit == 0 {
		req.Limit = 50
	}
	if err := req.Validate(); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	payments, total, err := h.repo.List(c.Request.Context(), req)
	if err != nil {
		response.InternalServerError(c, "failed to list payments")
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, payments, &response.Meta{
		Page:  req.Page,
		Limit: req.Limit,
		Total: total,
	})
}

func (h *AdminHandler) GetHistory(c *gin.Context) {
	history, err := h.lifecycle.GetHistory(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		h.adminError(c, err)
		return
	}
	response.Success(c, http.StatusOK, history)
}

func (h *AdminHandler) GetRetryHistory(c *gin.Context) {
	attempts, err := h.retries.History(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		h.adminError(c, err)
		return
	}
	response.Success(c, http.StatusOK, attempts)
}

// =====================================================
// MUTATIONS
// =====================================================

type rollbackRequest struct {
	TransitionID string `json:"transition_id" binding:"required"`
}

// Rollback reverses a recorded transition.
func (h *AdminHandler) Rollback(c *gin.Context) {
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	userID, _ := c.Get("user_id")
	operator, _ := userID.(string)

	payment, err := h.lifecycle.Rollback(c.Request.Context(), c.Param("paymentId"), req.TransitionID, operator)
	if err != nil {
		h.adminError(c, err)
		return
	}
	response.Success(c, http.StatusOK, payment)
}

type retryRequest struct {
	Policy string `json:"policy"`
}

// TriggerRetry runs the retry budget synchronously for one payment.
func (h *AdminHandler) TriggerRetry(c *gin.Context) {
	// Body is optional; an empty body selects the policy by amount band.
	var req retryRequest
	_ = c.ShouldBindJSON(&req)

	paymentID := c.Param("paymentId")

	policy := service.PolicyByName(req.Policy)
	if req.Policy == "" {
		payment, err := h.repo.GetByPaymentID(c.Request.Context(), paymentID)
		if err != nil {
			h.adminError(c, err)
			return
		}
		policy = h.retries.PolicyFor(payment)
	}

	result, err := h.retries.Retry(c.Request.Context(), paymentID, policy)
	if err != nil {
		h.adminError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// =====================================================
// INSPECTION
// =====================================================

// ListLocks exposes currently held leases. Only the in-memory manager
// can enumerate; the Redis manager answers an empty list.
func (h *AdminHandler) ListLocks(c *gin.Context) {
	type snapshotter interface {
		Snapshot() []lock.Lease
	}

	if mgr, ok := h.locks.(snapshotter); ok {
		response.Success(c, http.StatusOK, mgr.Snapshot())
		return
	}
	response.Success(c, http.StatusOK, []lock.Lease{})
}

func (h *AdminHandler) ListRollups(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "24"))
	if err != nil || limit < 1 || limit > 500 {
		response.BadRequest(c, "limit must be between 1 and 500")
		return
	}

	rollups, err := h.metrics.ListRollups(c.Request.Context(), limit)
	if err != nil {
		response.InternalServerError(c, "failed to list metric rollups")
		return
	}
	response.Success(c, http.StatusOK, rollups)
}

// =====================================================
// HELPERS
// =====================================================

func (h *AdminHandler) adminError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrPaymentNotFound), errors.Is(err, model.ErrTransitionNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, model.ErrRollbackNotAllowed), errors.Is(err, model.ErrInvalidTransition):
		response.ErrorResponse(c, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, model.ErrRetryExhausted):
		response.ErrorResponse(c, http.StatusConflict, "RETRY_EXHAUSTED", err.Error())
	case errors.Is(err, model.ErrLockConflict):
		response.ErrorResponse(c, http.StatusConflict, "LOCK_CONFLICT", err.Error())
	default:
		response.InternalServerError(c, err.Error())
	}
}
