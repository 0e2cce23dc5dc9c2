package handlers

import (
	"net/http"
	"time"

	"smart-guard-go/internal/utils"

	"github.com/gin-gonic/gin"
)

// GetSystem gibt System- und Erkennungsstatistiken zurück
func (h *APIHandler) GetSystem(c *gin.Context) {
	stats := utils.GetSystemStats()
	build := h.guard.BuildStats()

	c.JSON(http.StatusOK, gin.H{
		"system": stats,
		"memory": gin.H{
			"alloc":       utils.FormatBytes(stats.MemoryAlloc),
			"sys":         utils.FormatBytes(stats.MemorySys),
			"process_rss": utils.FormatBytes(stats.ProcessRSS),
		},
		"guard": gin.H{
			"engine":      h.cfg.Engine.Provider,
			"camera":      h.cfg.Camera.Source,
			"status":      h.guard.Snapshot().Status,
			"labels":      len(h.guard.Labels()),
			"descriptors": build.Used,
			"skipped":     build.Skipped,
			"sse_clients": h.hub.ClientCount(),
		},
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Health ist ein einfacher Lebenszeichen-Endpunkt
func (h *APIHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"state":  h.guard.Snapshot().Status,
	})
}
