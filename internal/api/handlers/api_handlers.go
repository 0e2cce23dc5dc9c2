package handlers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"time"

	"smart-guard-go/config"
	"smart-guard-go/internal/api/middleware"
	"smart-guard-go/internal/core/processor"
	"smart-guard-go/internal/matcher"
	"smart-guard-go/internal/recognition"
	"smart-guard-go/internal/server/sse"
	"smart-guard-go/internal/store"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{"component": "api"}

// Guard ist der Teil des Coordinators, den die API benötigt
type Guard interface {
	Snapshot() recognition.Snapshot
	Labels() []string
	BuildStats() matcher.BuildStats
	Reload(ctx context.Context) error
	Register(label string) (processor.RegistrationJob, error)
	Registration() (processor.RegistrationJob, bool)
	LastFrame() (image.Image, []recognition.FaceResult)
}

// FaceStore ist der Registered-Face Store samt Dateiliste
type FaceStore interface {
	store.Store
	Filenames(ctx context.Context) ([]string, error)
}

// FrameSink nimmt Bilder der Browser-Kamera entgegen
type FrameSink interface {
	Push(img image.Image)
}

// FrameRenderer zeichnet die Ergebnisse in ein Bild und liefert JPEG-Daten
type FrameRenderer func(img image.Image, results []recognition.FaceResult) ([]byte, error)

// APIHandler behandelt API-Anfragen für das System
type APIHandler struct {
	cfg        *config.Config
	guard      Guard
	store      FaceStore
	hub        *sse.Hub
	translator *middleware.Translator
	frames     FrameSink
	render     FrameRenderer
	startedAt  time.Time

	// reload läuft nach einer vollständigen Browser-Registrierung im Hintergrund
	reloadTimeout time.Duration
}

// Option konfiguriert optionale Teile des Handlers
type Option func(*APIHandler)

// WithFrameSink aktiviert POST /api/frames (Browser-Kamera)
func WithFrameSink(sink FrameSink) Option {
	return func(h *APIHandler) { h.frames = sink }
}

// WithFrameRenderer setzt die Darstellung für GET /api/frame.jpg
func WithFrameRenderer(render FrameRenderer) Option {
	return func(h *APIHandler) { h.render = render }
}

// NewAPIHandler erstellt einen neuen API-Handler
func NewAPIHandler(cfg *config.Config, guard Guard, faceStore FaceStore, hub *sse.Hub, translator *middleware.Translator, opts ...Option) *APIHandler {
	h := &APIHandler{
		cfg:           cfg,
		guard:         guard,
		store:         faceStore,
		hub:           hub,
		translator:    translator,
		startedAt:     time.Now(),
		reloadTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registriert alle API-Routen
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Öffentliche Endpunkte
	router.POST("/login", h.Login)
	router.POST("/logout", h.Logout)
	router.GET("/health", h.Health)

	protected := router.Group("", middleware.RequireAuth(h.cfg.Auth))

	// Registered-Face Store
	protected.POST("/register", h.RegisterFace)
	protected.GET("/registered", h.ListRegistered)
	protected.POST("/faces/reload", h.ReloadFaces)

	// Erkennung
	protected.GET("/status", h.GetStatus)
	protected.POST("/frames", h.PushFrame)
	protected.GET("/frame.jpg", h.GetFrame)
	protected.GET("/events", h.Events)

	// Registrierung mit Serverkamera
	protected.POST("/registrations", h.StartRegistration)
	protected.GET("/registrations/current", h.CurrentRegistration)

	// System
	protected.GET("/system", h.GetSystem)
}

type registerRequest struct {
	Label string `json:"label"`
	Image string `json:"image"`
	Index *int   `json:"index"`
}

// RegisterFace speichert ein Bild einer Kopfhaltung
func (h *APIHandler) RegisterFace(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Label == "" || req.Image == "" || req.Index == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing parameters"})
		return
	}

	data, err := store.DecodeDataURL(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.Put(c.Request.Context(), req.Label, *req.Index, data); err != nil {
		if store.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.WithFields(logFields).WithError(err).Errorf("Failed to save image for %s", req.Label)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save image"})
		return
	}

	log.WithFields(logFields).Infof("Stored %s image for %s", store.AngleName(*req.Index), req.Label)

	// Nach der letzten Kopfhaltung sind die neuen Bilder sofort erkennbar
	if *req.Index == store.AngleCount {
		go h.reloadInBackground()
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *APIHandler) reloadInBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), h.reloadTimeout)
	defer cancel()
	if err := h.guard.Reload(ctx); err != nil {
		log.WithFields(logFields).WithError(err).Warn("Reload after registration failed")
	}
}

// ListRegistered gibt die Dateinamen aller registrierten Bilder zurück
func (h *APIHandler) ListRegistered(c *gin.Context) {
	names, err := h.store.Filenames(c.Request.Context())
	if err != nil {
		log.WithFields(logFields).WithError(err).Error("Failed to list registered faces")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read folder"})
		return
	}
	c.JSON(http.StatusOK, names)
}

// ReloadFaces baut den Matcher neu auf, auch nach einem Initialisierungsfehler
func (h *APIHandler) ReloadFaces(c *gin.Context) {
	err := h.guard.Reload(c.Request.Context())
	resp := h.statusResponse(c)
	if err != nil {
		log.WithFields(logFields).WithError(err).Warn("Manual reload failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":       "Failed to reload faces",
			"status":      resp.Status,
			"status_text": resp.StatusText,
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StatusResponse ist der Snapshot mit übersetztem Statustext
type StatusResponse struct {
	recognition.Snapshot
	StatusText string             `json:"status_text"`
	Authorized bool               `json:"authorized"`
	Labels     []string           `json:"labels"`
	Build      matcher.BuildStats `json:"build"`
	Language   string             `json:"language"`
}

func (h *APIHandler) statusResponse(c *gin.Context) StatusResponse {
	s := h.guard.Snapshot()
	lang := middleware.Language(c)
	return StatusResponse{
		Snapshot:   s,
		StatusText: h.translator.Translate(lang, s.Status.MessageID(), nil),
		Authorized: s.Authorized(),
		Labels:     h.guard.Labels(),
		Build:      h.guard.BuildStats(),
		Language:   lang,
	}
}

// GetStatus gibt den aktuellen Erkennungsstatus zurück
func (h *APIHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.statusResponse(c))
}

type frameRequest struct {
	Image string `json:"image" binding:"required"`
}

// PushFrame nimmt ein Bild der Browser-Kamera entgegen
func (h *APIHandler) PushFrame(c *gin.Context) {
	if h.frames == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Camera is not in browser mode"})
		return
	}

	var req frameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing parameters"})
		return
	}
	data, err := store.DecodeDataURL(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image data"})
		return
	}

	h.frames.Push(img)
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

// GetFrame liefert das zuletzt ausgewertete Bild mit Boxen und Beschriftungen
func (h *APIHandler) GetFrame(c *gin.Context) {
	img, results := h.guard.LastFrame()
	if img == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No frame available"})
		return
	}

	var (
		data []byte
		err  error
	)
	if h.render != nil {
		data, err = h.render(img, results)
	} else {
		var buf bytes.Buffer
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85})
		data = buf.Bytes()
	}
	if err != nil {
		log.WithFields(logFields).WithError(err).Error("Failed to render frame")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render frame"})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/jpeg", data)
}

type registrationRequest struct {
	Label string `json:"label" binding:"required"`
}

// RegistrationResponse ist eine Registrierung mit übersetzter Anweisung
type RegistrationResponse struct {
	processor.RegistrationJob
	Message string `json:"message"`
}

// StartRegistration startet den Registrierungsablauf mit der Serverkamera
func (h *APIHandler) StartRegistration(c *gin.Context) {
	var req registrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing parameters"})
		return
	}

	job, err := h.guard.Register(req.Label)
	switch {
	case err == nil:
	case store.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, processor.ErrRegistrationBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "A registration is already running"})
		return
	default:
		log.WithFields(logFields).WithError(err).Warn("Registration could not be started")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": job.ID, "job": h.registrationResponse(c, job)})
}

// CurrentRegistration gibt die laufende bzw. letzte Registrierung zurück
func (h *APIHandler) CurrentRegistration(c *gin.Context) {
	job, ok := h.guard.Registration()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No registration"})
		return
	}
	c.JSON(http.StatusOK, h.registrationResponse(c, job))
}

func (h *APIHandler) registrationResponse(c *gin.Context, job processor.RegistrationJob) RegistrationResponse {
	return RegistrationResponse{
		RegistrationJob: job,
		Message:         registrationMessage(h.translator, middleware.Language(c), job),
	}
}

func registrationMessage(t *middleware.Translator, lang string, job processor.RegistrationJob) string {
	switch {
	case job.State == processor.JobFailed:
		return t.Translate(lang, "registration.failed", nil)
	case job.State == processor.JobCompleted:
		return t.Translate(lang, "registration.complete", nil)
	case job.Step == nil:
		return ""
	}

	data := map[string]interface{}{"Angle": job.Step.Angle, "Attempt": job.Attempt}
	switch job.Phase {
	case "retry":
		return t.Translate(lang, "registration.retry", data)
	case "captured":
		return t.Translate(lang, "registration.captured", data)
	default:
		return t.Translate(lang, "registration.prompt", data)
	}
}
