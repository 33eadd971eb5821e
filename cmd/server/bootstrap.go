package main

import (
	"context"
	"fmt"

	"github.com/studiofolio/portfolio/backend/internal/config"
	"github.com/studiofolio/portfolio/backend/internal/handlers"
	"github.com/studiofolio/portfolio/backend/internal/middleware"
	"github.com/studiofolio/portfolio/backend/internal/services"
	"github.com/studiofolio/portfolio/backend/internal/store"
	"github.com/studiofolio/portfolio/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg                *config.Config
	authService        *services.AuthService
	maintenanceService *services.MaintenanceService
	limiter            *middleware.RateLimiter

	authHandler        *handlers.AuthHandler
	projectHandler     *handlers.ProjectHandler
	mediaHandler       *handlers.MediaHandler
	maintenanceHandler *handlers.MaintenanceHandler
	healthHandler      *handlers.HealthHandler
	metricsHandler     *handlers.MetricsHandler
}

// bootstrap opens the data files and wires services and handlers.
func bootstrap(ctx context.Context, cfg *config.Config) (*appServices, error) {
	writer := store.NewWriter(store.Options{
		Attempts:   cfg.Storage.WriteRetries,
		RetryDelay: cfg.Storage.RetryDelay(),
		Timeout:    cfg.Storage.Timeout(),
		Logger:     logger.Component("store"),
	})

	mediaTable, err := services.OpenMediaIndex(ctx, cfg.MediaFile(), writer, logger.Component("store"))
	if err != nil {
		return nil, fmt.Errorf("open media index: %w", err)
	}
	projectTable, err := services.OpenProjectTable(ctx, cfg.ProjectsFile(), writer, logger.Component("store"), cfg.Storage.SeedExamples)
	if err != nil {
		return nil, fmt.Errorf("open projects: %w", err)
	}

	mediaService, err := services.NewMediaService(mediaTable, services.MediaOptions{
		UploadDir:      cfg.Storage.UploadDir,
		PublicPrefix:   cfg.Storage.PublicPrefix,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes(),
		Logger:         logger.Component("media"),
	})
	if err != nil {
		return nil, err
	}
	projectService := services.NewProjectService(projectTable, mediaService, services.ProjectOptions{
		CompactIDs: cfg.Storage.CompactIDs,
		Logger:     logger.Component("projects"),
	})
	authService := services.NewAuthService(&cfg.Auth, logger.Component("auth"))

	maintenanceService := services.NewMaintenanceService(cfg.Storage.DataDir, cfg.Maintenance, logger.Component("maintenance"))
	if err := maintenanceService.StartScheduler(); err != nil {
		return nil, fmt.Errorf("schedule backup pruning: %w", err)
	}

	return &appServices{
		cfg:                cfg,
		authService:        authService,
		maintenanceService: maintenanceService,
		limiter:            middleware.NewRateLimiter(),
		authHandler:        handlers.NewAuthHandler(authService, &cfg.Auth),
		projectHandler:     handlers.NewProjectHandler(projectService),
		mediaHandler:       handlers.NewMediaHandler(projectService, mediaService, cfg.Storage.MaxUploadBytes()),
		maintenanceHandler: handlers.NewMaintenanceHandler(mediaService),
		healthHandler:      handlers.NewHealthHandler(cfg.Storage.DataDir, cfg.Storage.UploadDir),
		metricsHandler:     handlers.NewMetricsHandler(writer, projectService, mediaService),
	}, nil
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.maintenanceService.StopScheduler()
	logger.Info().Msg("All schedulers stopped")
}
