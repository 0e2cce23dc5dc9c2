package handlers

import (
	"net/http"

	"smart-guard-go/internal/api/middleware"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Login prüft die Zugangsdaten und setzt das Session-Cookie
func (h *APIHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing parameters"})
		return
	}

	if !middleware.CheckCredentials(h.cfg.Auth, req.Username, req.Password) {
		log.WithFields(logFields).Warnf("Failed login for %q from %s", req.Username, c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := middleware.Login(c, req.Username); err != nil {
		log.WithFields(logFields).WithError(err).Error("Failed to save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}
	log.WithFields(logFields).Infof("User %s logged in", req.Username)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Logout beendet die Session
func (h *APIHandler) Logout(c *gin.Context) {
	if err := middleware.Logout(c); err != nil {
		log.WithFields(logFields).WithError(err).Warn("Failed to clear session")
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
