package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/studiofolio/portfolio/backend/internal/models"
	"github.com/studiofolio/portfolio/backend/internal/services"
	"github.com/studiofolio/portfolio/backend/pkg/response"
)

type ProjectHandler struct {
	projectService *services.ProjectService
}

func NewProjectHandler(projectService *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

// ListPublished returns published projects, featured first
// GET /api/projects
func (h *ProjectHandler) ListPublished(c *gin.Context) {
	response.Success(c, h.projectService.ListPublished())
}

// GetPublished returns one published project
// GET /api/projects/:id
func (h *ProjectHandler) GetPublished(c *gin.Context) {
	project, ok := h.projectService.GetByID(c.Param("id"))
	if !ok || project.Status != models.StatusPublished {
		response.NotFound(c, "project not found")
		return
	}
	response.Success(c, project)
}

// List returns filtered, paginated projects of any status
// GET /api/admin/projects
func (h *ProjectHandler) List(c *gin.Context) {
	var req services.ProjectListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Success(c, h.projectService.List(&req))
}

// GetByID returns a project by ID
// GET /api/admin/projects/:id
func (h *ProjectHandler) GetByID(c *gin.Context) {
	project, ok := h.projectService.GetByID(c.Param("id"))
	if !ok {
		response.NotFound(c, "project not found")
		return
	}
	response.Success(c, project)
}

// Create creates a new project
// POST /api/admin/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req services.CreateProjectInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.projectService.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, project)
}

// Update merges the supplied fields into a project
// PUT /api/admin/projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	var patch models.ProjectPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if patch.IsEmpty() {
		response.BadRequest(c, "no fields to update")
		return
	}

	project, ok, err := h.projectService.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		response.NotFound(c, "project not found")
		return
	}
	response.Success(c, project)
}

type coverRequest struct {
	URL string `json:"url" binding:"required"`
}

// SetCover sets the project's cover image URL
// PUT /api/admin/projects/:id/cover
func (h *ProjectHandler) SetCover(c *gin.Context) {
	var req coverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "url is required")
		return
	}

	project, ok, err := h.projectService.SetCoverImage(c.Request.Context(), c.Param("id"), req.URL)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		response.NotFound(c, "project not found")
		return
	}
	response.Success(c, project)
}

// Delete removes a project and all of its media. Remaining project IDs may
// be renumbered.
// DELETE /api/admin/projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	ok, err := h.projectService.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		response.NotFound(c, "project not found")
		return
	}
	response.Success(c, gin.H{"message": "project deleted"})
}
