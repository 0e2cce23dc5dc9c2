package handlers

import (
	"io"
	"net/http"

	"smart-guard-go/internal/server/sse"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Events behandelt SSE-Verbindungen für Status- und Registrierungsupdates
func (h *APIHandler) Events(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	client := make(sse.Client, 10)
	if !h.hub.Register(client) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event stream unavailable"})
		return
	}
	defer h.hub.Unregister(client)

	id := uuid.NewString()
	fields := log.Fields{"component": "sse", "client": id}
	log.WithFields(fields).Debug("Event stream opened")
	defer log.WithFields(fields).Debug("Event stream closed")

	// Aktueller Zustand als erstes Ereignis, damit die Anzeige nicht leer startet
	c.SSEvent(sse.EventStatus, h.statusResponse(c))
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent(msg.Event, string(msg.Data))
			return true
		}
	})
}
