package main

import (
	"github.com/gin-gonic/gin"
	"github.com/studiofolio/portfolio/backend/internal/middleware"
	"github.com/studiofolio/portfolio/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	cfg := svc.cfg

	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	authPolicy := middleware.PolicyFromConfig("auth", cfg.RateLimit.Auth)
	uploadPolicy := middleware.PolicyFromConfig("upload", cfg.RateLimit.Upload)
	apiPolicy := middleware.PolicyFromConfig("api", cfg.RateLimit.API)
	adminPolicy := middleware.PolicyFromConfig("admin", cfg.RateLimit.Admin)

	r.GET("/health", svc.healthHandler.CheckHealth)
	r.GET("/metrics", svc.metricsHandler.Metrics)

	// Uploaded media
	r.Static(cfg.Storage.PublicPrefix, cfg.Storage.UploadDir)

	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/login", svc.limiter.Middleware(authPolicy), svc.authHandler.Login)
			auth.POST("/logout", svc.authHandler.Logout)
			auth.GET("/verify", svc.limiter.Middleware(apiPolicy), svc.authHandler.Verify)
		}

		// Public site
		public := api.Group("/projects", svc.limiter.Middleware(apiPolicy))
		{
			public.GET("", svc.projectHandler.ListPublished)
			public.GET("/:id", svc.projectHandler.GetPublished)
		}

		// Protected routes
		admin := api.Group("/admin")
		admin.Use(
			svc.limiter.Middleware(adminPolicy),
			middleware.AuthRequired(svc.authService, cfg.Auth.CookieName),
			middleware.AuditLog(logger.Component("audit")),
		)
		{
			// Projects
			admin.GET("/projects", svc.projectHandler.List)
			admin.POST("/projects", svc.projectHandler.Create)
			admin.GET("/projects/:id", svc.projectHandler.GetByID)
			admin.PUT("/projects/:id", svc.projectHandler.Update)
			admin.DELETE("/projects/:id", svc.projectHandler.Delete)
			admin.PUT("/projects/:id/cover", svc.projectHandler.SetCover)

			// Media
			admin.GET("/projects/:id/media", svc.mediaHandler.List)
			admin.POST("/projects/:id/media", svc.limiter.Middleware(uploadPolicy), svc.mediaHandler.Upload)
			admin.DELETE("/projects/:id/media/:mediaId", svc.mediaHandler.Delete)

			// Maintenance
			admin.POST("/maintenance/orphans", svc.maintenanceHandler.SweepOrphans)
		}
	}
}
