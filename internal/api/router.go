// Package api stellt die HTTP-Schnittstelle des Guards bereit.
package api

import (
	"net/http"
	"time"

	"smart-guard-go/config"
	"smart-guard-go/internal/api/handlers"
	"smart-guard-go/internal/api/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const sessionName = "smart_guard_session"

// NewRouter baut die gin-Engine mit Middleware, statischen Bildern und API-Routen
func NewRouter(cfg *config.Config, apiHandler *handlers.APIHandler, translator *middleware.Translator) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(corsMiddleware(cfg.Server.CORSOrigins))

	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int((12 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(sessionName, store))
	router.Use(middleware.I18n(translator))

	// Registrierte Bilder, z.B. /registered/alice_1.jpg
	registered := router.Group(cfg.Server.RegisteredURL, middleware.RequireAuth(cfg.Auth))
	registered.Static("/", cfg.Server.RegisteredDir)

	apiHandler.RegisterRoutes(router.Group("/api"))

	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Accept-Language")

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Mit Cookies ist "*" nicht erlaubt, daher wird der Origin gespiegelt
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsConfig.AllowOrigins = origins
	}
	return cors.New(corsConfig)
}
