package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports whether the data and upload directories accept writes.
type HealthHandler struct {
	dirs map[string]string
}

func NewHealthHandler(dataDir, uploadDir string) *HealthHandler {
	return &HealthHandler{dirs: map[string]string{
		"data_dir":   dataDir,
		"upload_dir": uploadDir,
	}}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	components := gin.H{}

	for name, dir := range h.dirs {
		status := "ok"
		if err := probeWritable(dir); err != nil {
			status = "error: " + err.Error()
			overall = "unhealthy"
		}
		components[name] = status
	}

	code := http.StatusOK
	if overall != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     overall,
		"service":    "portfolio",
		"components": components,
	})
}

// probeWritable creates and removes a dotfile, which the orphan sweep ignores.
func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
