package handlers

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/studiofolio/portfolio/backend/internal/services"
	"github.com/studiofolio/portfolio/backend/internal/store"
)

var startTime = time.Now()

type MetricsHandler struct {
	writer         *store.Writer
	projectService *services.ProjectService
	mediaService   *services.MediaService
}

func NewMetricsHandler(writer *store.Writer, projectService *services.ProjectService, mediaService *services.MediaService) *MetricsHandler {
	return &MetricsHandler{
		writer:         writer,
		projectService: projectService,
		mediaService:   mediaService,
	}
}

// Metrics returns Prometheus-compatible text format metrics.
// GET /metrics
func (h *MetricsHandler) Metrics(c *gin.Context) {
	var b strings.Builder

	// -- Runtime metrics --
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeGauge(&b, "portfolio_uptime_seconds", "Time since server start in seconds", time.Since(startTime).Seconds())
	writeGauge(&b, "portfolio_goroutines", "Number of active goroutines", float64(runtime.NumGoroutine()))
	writeGauge(&b, "portfolio_memory_alloc_bytes", "Current heap allocation in bytes", float64(m.Alloc))

	// -- Store metrics --
	stats := h.writer.Stats()
	writeCounter(&b, "portfolio_store_atomic_writes_total", "Writes completed by atomic rename", float64(stats.AtomicWrites))
	writeCounter(&b, "portfolio_store_retries_total", "Atomic write retries after a busy file", float64(stats.Retries))
	writeCounter(&b, "portfolio_store_fallback_writes_total", "Writes completed by the non-atomic direct overwrite", float64(stats.Fallbacks))
	writeCounter(&b, "portfolio_store_failed_writes_total", "Writes that failed by every strategy", float64(stats.Failures))

	// -- Content metrics --
	media := h.mediaService.Stats()
	writeGauge(&b, "portfolio_projects_total", "Number of stored projects", float64(h.projectService.Count()))
	writeGauge(&b, "portfolio_images_total", "Number of indexed images", float64(media.Images))
	writeGauge(&b, "portfolio_videos_total", "Number of indexed videos", float64(media.Videos))
	writeGauge(&b, "portfolio_media_bytes", "Total size of indexed media in bytes", float64(media.TotalBytes))

	c.Data(200, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
}

func writeGauge(b *strings.Builder, name, help string, value float64) {
	writeMetric(b, "gauge", name, help, value)
}

func writeCounter(b *strings.Builder, name, help string, value float64) {
	writeMetric(b, "counter", name, help, value)
}

func writeMetric(b *strings.Builder, kind, name, help string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(b, "%s %g\n\n", name, value)
}
