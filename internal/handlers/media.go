package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/studiofolio/portfolio/backend/internal/services"
	"github.com/studiofolio/portfolio/backend/pkg/response"
)

// multipartSlack covers form boundaries and headers around the file part.
const multipartSlack = 1 << 20

type MediaHandler struct {
	projectService *services.ProjectService
	mediaService   *services.MediaService
	maxBytes       int64
}

func NewMediaHandler(projectService *services.ProjectService, mediaService *services.MediaService, maxBytes int64) *MediaHandler {
	return &MediaHandler{
		projectService: projectService,
		mediaService:   mediaService,
		maxBytes:       maxBytes,
	}
}

// Upload stores one file from the multipart field "file" for the project.
// An optional "duration" field (seconds) is kept for videos.
// POST /api/admin/projects/:id/media
func (h *MediaHandler) Upload(c *gin.Context) {
	projectID := c.Param("id")
	if !h.projectService.Exists(projectID) {
		response.NotFound(c, "project not found")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartSlack)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			response.Error(c, response.NewTooLarge("file exceeds the "+services.FormatFileSize(h.maxBytes)+" limit"))
			return
		}
		response.BadRequest(c, "file is required")
		return
	}
	if fh.Size > h.maxBytes {
		response.Error(c, response.NewTooLarge("file exceeds the "+services.FormatFileSize(h.maxBytes)+" limit"))
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.Error(c, response.NewServerError(err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, response.NewServerError(err))
		return
	}

	input := services.UploadInput{
		Data:         data,
		OriginalName: fh.Filename,
		MimeType:     fh.Header.Get("Content-Type"),
		Size:         fh.Size,
	}
	if raw := c.PostForm("duration"); raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil || d < 0 {
			response.BadRequest(c, "duration must be a non-negative number of seconds")
			return
		}
		input.Duration = &d
	}

	saved, found, err := h.projectService.AddMedia(c.Request.Context(), projectID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	if !found {
		response.NotFound(c, "project not found")
		return
	}
	response.Created(c, saved)
}

// List returns the project's images and videos with their total size
// GET /api/admin/projects/:id/media
func (h *MediaHandler) List(c *gin.Context) {
	projectID := c.Param("id")
	if !h.projectService.Exists(projectID) {
		response.NotFound(c, "project not found")
		return
	}

	size := h.mediaService.GetProjectMediaSize(projectID)
	response.Success(c, gin.H{
		"images":        h.mediaService.GetProjectImages(projectID),
		"videos":        h.mediaService.GetProjectVideos(projectID),
		"totalSize":     size,
		"totalSizeText": services.FormatFileSize(size),
	})
}

// Delete removes one media record and its file
// DELETE /api/admin/projects/:id/media/:mediaId
func (h *MediaHandler) Delete(c *gin.Context) {
	ok, err := h.mediaService.DeleteMedia(c.Request.Context(), c.Param("mediaId"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		response.NotFound(c, "media not found")
		return
	}
	response.Success(c, gin.H{"message": "media deleted"})
}
