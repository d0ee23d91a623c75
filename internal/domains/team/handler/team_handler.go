package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"paygate-backend/internal/domains/team/model"
	"paygate-backend/internal/domains/team/service"
	"paygate-backend/internal/shared/response"
)

// =====================================================
// TEAM HANDLER
// =====================================================
// Dashboard login plus operator CRUD over merchant accounts.

type TeamHandler struct {
	teams *service.TeamService
}

func NewTeamHandler(teams *service.TeamService) *TeamHandler {
	return &TeamHandler{teams: teams}
}

// RegisterAuthRoutes registers the public dashboard login route.
func (h *TeamHandler) RegisterAuthRoutes(router *gin.RouterGroup) {
	router.POST("/auth/login", h.Login)
}

// RegisterAdminRoutes registers the operator team routes.
func (h *TeamHandler) RegisterAdminRoutes(router *gin.RouterGroup) {
	teams := router.Group("/teams")
	{
		teams.POST("", h.Create)            // POST /admin/teams
		teams.GET("", h.List)               // GET /admin/teams?page=&limit=
		teams.GET("/:slug", h.GetBySlug)    // GET /admin/teams/:slug
		teams.PATCH("/:id", h.Update)       // PATCH /admin/teams/:id
		teams.POST("/:id/unlock", h.Unlock) // POST /admin/teams/:id/unlock
	}
}

// =====================================================
// DASHBOARD LOGIN
// =====================================================

// Login authenticates a dashboard operator against the bcrypt hash and
// issues a JWT. The merchant API password plays no part here.
func (h *TeamHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.teams.Login(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidCredentials):
			response.Unauthorized(c, "invalid credentials")
		case errors.Is(err, model.ErrTeamInactive):
			response.Forbidden(c, "team is not active")
		default:
			response.BadRequest(c, err.Error())
		}
		return
	}
	response.Success(c, http.StatusOK, resp)
}

// =====================================================
// ADMIN CRUD
// =====================================================

func (h *TeamHandler) Create(c *gin.Context) {
	var req model.CreateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	team, err := h.teams.Create(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, model.ErrSlugTaken) {
			response.ErrorResponse(c, http.StatusConflict, "SLUG_TAKEN", err.Error())
			return
		}
		response.BadRequest(c, err.Error())
		return
	}
	response.Success(c, http.StatusCreated, team.ToResponse())
}

func (h *TeamHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 || limit < 1 || limit > 200 {
		response.BadRequest(c, "invalid pagination")
		return
	}

	teams, total, err := h.teams.List(c.Request.Context(), page, limit)
	if err != nil {
		response.InternalServerError(c, "failed to list teams")
		return
	}

	out := make([]model.TeamResponse, 0, len(teams))
	for _, t := range teams {
		out = append(out, t.ToResponse())
	}
	response.SuccessWithMeta(c, http.StatusOK, out, &response.Meta{
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *TeamHandler) GetBySlug(c *gin.Context) {
	team, err := h.teams.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, model.ErrTeamNotFound) {
			response.NotFound(c, "team not found")
			return
		}
		response.InternalServerError(c, "failed to load team")
		return
	}
	response.Success(c, http.StatusOK, team.ToResponse())
}

func (h *TeamHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid team id")
		return
	}

	var req model.UpdateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	team, err := h.teams.Update(c.Request.Context(), id, req)
	if err != nil {
		if errors.Is(err, model.ErrTeamNotFound) {
			response.NotFound(c, "team not found")
			return
		}
		response.BadRequest(c, err.Error())
		return
	}
	response.Success(c, http.StatusOK, team.ToResponse())
}

// Unlock clears an auth-failure lockout before its window expires.
func (h *TeamHandler) Unlock(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid team id")
		return
	}

	if err := h.teams.Unlock(c.Request.Context(), id); err != nil {
		if errors.Is(err, model.ErrTeamNotFound) {
			response.NotFound(c, "team not found")
			return
		}
		response.InternalServerError(c, "failed to unlock team")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unlocked": id})
}
