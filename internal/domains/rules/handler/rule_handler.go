package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"paygate-backend/internal/domains/rules/model"
	"paygate-backend/internal/domains/rules/service"
	"paygate-backend/internal/shared/response"
)

// =====================================================
// RULE HANDLER
// =====================================================
// Operator CRUD over business rules. Every mutation goes through the
// engine so the applicable-rules cache is invalidated.

type RuleHandler struct {
	engine *service.Engine
}

func NewRuleHandler(engine *service.Engine) *RuleHandler {
	return &RuleHandler{engine: engine}
}

// RegisterRoutes registers the rule routes.
func (h *RuleHandler) RegisterRoutes(router *gin.RouterGroup) {
	rules := router.Group("/rules")
	{
		rules.POST("", h.Create)       // POST /admin/rules
		rules.GET("", h.List)          // GET /admin/rules?page=&limit=
		rules.GET("/:id", h.GetByID)   // GET /admin/rules/:id
		rules.PATCH("/:id", h.Update)  // PATCH /admin/rules/:id
		rules.DELETE("/:id", h.Delete) // DELETE /admin/rules/:id
	}
}

func (h *RuleHandler) Create(c *gin.Context) {
	var req model.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rule, err := h.engine.Create(c.Request.Context(), req)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Success(c, http.StatusCreated, rule)
}

func (h *RuleHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 || limit < 1 || limit > 200 {
		response.BadRequest(c, "invalid pagination")
		return
	}

	rules, total, err := h.engine.List(c.Request.Context(), page, limit)
	if err != nil {
		response.InternalServerError(c, "failed to list rules")
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, rules, &response.Meta{
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *RuleHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid rule id")
		return
	}

	rule, err := h.engine.GetByID(c.Request.Context(), id)
	if err != nil {
		h.ruleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, rule)
}

func (h *RuleHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid rule id")
		return
	}

	var req model.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rule, err := h.engine.Update(c.Request.Context(), id, req)
	if err != nil {
		h.ruleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, rule)
}

func (h *RuleHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid rule id")
		return
	}

	if err := h.engine.Delete(c.Request.Context(), id); err != nil {
		h.ruleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": id})
}

func (h *RuleHandler) ruleError(c *gin.Context, err error) {
	if errors.Is(err, model.ErrRuleNotFound) {
		response.NotFound(c, "rule not found")
		return
	}
	response.BadRequest(c, err.Error())
}
