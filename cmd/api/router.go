package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"paygate-backend/internal/shared/middleware"
	"paygate-backend/pkg/container"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	// Global middlewares
	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.CORS(),
		middleware.ClientIPMiddleware(),
	)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheckHandler(c))

		setupMerchantRoutes(v1, c)
		setupDashboardAuthRoutes(v1, c)
		setupAdminRoutes(v1, c)
	}

	return router
}

// ========================================
// MERCHANT API ROUTES
// ========================================
// Server-to-server endpoints authenticated per request by the token
// signature, not by JWT.
func setupMerchantRoutes(v1 *gin.RouterGroup, c *container.Container) {
	c.MerchantHandler.RegisterRoutes(v1)
}

// ========================================
// DASHBOARD AUTH ROUTES
// ========================================
func setupDashboardAuthRoutes(v1 *gin.RouterGroup, c *container.Container) {
	c.TeamHandler.RegisterAuthRoutes(v1)
}

// ========================================
// ADMIN ROUTES
// ========================================
// Inspection endpoints accept any authenticated dashboard user; team
// and rule management stays operator-only.
func setupAdminRoutes(v1 *gin.RouterGroup, c *container.Container) {
	admin := v1.Group("/admin")
	admin.Use(middleware.AuthMiddleware(c.JWTManager))
	{
		c.AdminHandler.RegisterRoutes(admin)
		c.AuditHandler.RegisterRoutes(admin)
	}

	restricted := admin.Group("")
	restricted.Use(middleware.AdminMiddleware())
	{
		c.RuleHandler.RegisterRoutes(restricted)
		c.TeamHandler.RegisterAdminRoutes(restricted)
	}
}

// ========================================
// HEALTH CHECK HANDLER
// ========================================
func healthCheckHandler(appCtx *container.Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   appCtx.Config.App.Version,
			"services":  gin.H{},
		}

		// Check database
		dbStatus := "ok"
		if appCtx.DB == nil || appCtx.DB.Pool == nil {
			dbStatus = "disconnected"
			health["status"] = "degraded"
		} else {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			if err := appCtx.DB.HealthCheck(ctx); err != nil {
				dbStatus = fmt.Sprintf("error: %v", err)
				health["status"] = "degraded"
			}
		}

		// Check redis
		redisStatus := "ok"
		if appCtx.Cache == nil {
			redisStatus = "disconnected"
		} else {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			if err := appCtx.Cache.Ping(ctx); err != nil {
				redisStatus = fmt.Sprintf("error: %v", err)
			}
		}

		health["services"] = gin.H{
			"database": dbStatus,
			"redis":    redisStatus,
		}

		statusCode := http.StatusOK
		if dbStatus != "ok" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, health)
	}
}
