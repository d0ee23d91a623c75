package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"paygate-backend/internal/domains/audit/model"
	"paygate-backend/internal/domains/audit/service"
	"paygate-backend/internal/shared/response"
)

// =====================================================
// AUDIT HANDLER
// =====================================================
// Read-only operator surface over the audit log.

type AuditHandler struct {
	audit *service.AuditService
}

func NewAuditHandler(audit *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// RegisterRoutes registers the audit routes.
func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	audit := router.Group("/audit")
	{
		audit.GET("", h.Query)                            // GET /admin/audit?entity_id=&action=&min_severity=...
		audit.GET("/integrity", h.VerifyIntegrity)        // GET /admin/audit/integrity?limit=
		audit.GET("/correlations/:id", h.GetCorrelation)  // GET /admin/audit/correlations/:id
	}
}

func (h *AuditHandler) Query(c *gin.Context) {
	var filter model.QueryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if filter.Take == 0 {
		filter.Take = 100
	}

	entries, err := h.audit.Query(c.Request.Context(), filter)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Success(c, http.StatusOK, entries)
}

// VerifyIntegrity recomputes hashes over the newest entries and
// reports any tampered rows.
func (h *AuditHandler) VerifyIntegrity(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "1000"))
	if err != nil || limit < 1 || limit > 10000 {
		response.BadRequest(c, "limit must be between 1 and 10000")
		return
	}

	report, err := h.audit.VerifyIntegrity(c.Request.Context(), limit)
	if err != nil {
		response.InternalServerError(c, "integrity verification failed")
		return
	}
	response.Success(c, http.StatusOK, report)
}

// GetCorrelation returns a resident correlation context. Evicted
// contexts answer 404; their audit rows remain queryable.
func (h *AuditHandler) GetCorrelation(c *gin.Context) {
	cc := h.audit.GetCorrelation(c.Param("id"))
	if cc == nil {
		response.NotFound(c, "correlation context not resident")
		return
	}
	response.Success(c, http.StatusOK, cc)
}
