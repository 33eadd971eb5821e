package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/studiofolio/portfolio/backend/internal/services"
	"github.com/studiofolio/portfolio/backend/pkg/response"
)

type MaintenanceHandler struct {
	mediaService *services.MediaService
}

func NewMaintenanceHandler(mediaService *services.MediaService) *MaintenanceHandler {
	return &MaintenanceHandler{mediaService: mediaService}
}

// SweepOrphans deletes upload files no media record references. Pass
// ?dry_run=true to only list them. Subdirectories and dotfiles such as
// .gitkeep survive a sweep.
// POST /api/admin/maintenance/orphans
func (h *MaintenanceHandler) SweepOrphans(c *gin.Context) {
	dryRun, _ := strconv.ParseBool(c.Query("dry_run"))

	report, err := h.mediaService.CleanOrphanedFiles(c.Request.Context(), dryRun)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, report)
}
