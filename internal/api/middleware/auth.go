package middleware

import (
	"crypto/subtle"
	"net/http"

	"smart-guard-go/config"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const sessionUserKey = "user"

// CheckCredentials prüft Benutzername und Passwort gegen die Konfiguration.
// Ein gesetzter bcrypt-Hash hat Vorrang vor dem Klartextpasswort.
func CheckCredentials(cfg config.AuthConfig, username, password string) bool {
	if subtle.ConstantTimeCompare([]byte(username), []byte(cfg.Username)) != 1 {
		return false
	}
	if cfg.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(cfg.PasswordHash), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(cfg.Password)) == 1
}

// Login merkt sich den Benutzer in der Session
func Login(c *gin.Context, username string) error {
	session := sessions.Default(c)
	session.Set(sessionUserKey, username)
	return session.Save()
}

// Logout entfernt den Benutzer aus der Session
func Logout(c *gin.Context) error {
	session := sessions.Default(c)
	session.Delete(sessionUserKey)
	return session.Save()
}

// CurrentUser gibt den angemeldeten Benutzer zurück
func CurrentUser(c *gin.Context) (string, bool) {
	user, ok := sessions.Default(c).Get(sessionUserKey).(string)
	return user, ok && user != ""
}

// RequireAuth lässt nur angemeldete Anfragen durch, solange das Login-Gate aktiv ist
func RequireAuth(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}
		user, ok := CurrentUser(c)
		if !ok {
			log.WithFields(log.Fields{"component": "auth", "path": c.Request.URL.Path}).Debug("Rejected unauthenticated request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(sessionUserKey, user)
		c.Next()
	}
}
