package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smart-guard-go/config"
	"smart-guard-go/internal/api"
	"smart-guard-go/internal/api/handlers"
	"smart-guard-go/internal/api/middleware"
	"smart-guard-go/internal/capture"
	"smart-guard-go/internal/cleanup"
	"smart-guard-go/internal/core/processor"
	"smart-guard-go/internal/db"
	"smart-guard-go/internal/db/repository"
	"smart-guard-go/internal/integrations/frigate"
	"smart-guard-go/internal/integrations/homeassistant"
	"smart-guard-go/internal/integrations/mqtt"
	"smart-guard-go/internal/integrations/opencv"
	"smart-guard-go/internal/integrations/provider"
	"smart-guard-go/internal/logger"
	"smart-guard-go/internal/recognition"
	"smart-guard-go/internal/server/sse"
	"smart-guard-go/internal/store"
	"smart-guard-go/internal/util/timezone"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const defaultConfigPath = "/config/config.yaml"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Info("Server stopped.")
}

func run() error {
	configPath := defaultConfigPath
	if p := os.Getenv("SMART_GUARD_CONFIG"); p != "" {
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logCloser, err := logger.Init(cfg.Log)
	if err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}
	defer logCloser.Close()

	timezone.Initialize(cfg.Server.Timezone)
	for _, w := range cfg.SecurityWarnings() {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Registrierungsindex
	log.Info("Initializing database...")
	if err := db.Initialize(cfg); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	faceRepo := repository.NewFaceRepository(db.DB)
	faceStore, err := store.NewFileStore(cfg.Server.RegisteredDir,
		store.WithIndex(faceRepo),
		store.WithJPEGQuality(cfg.Registration.JPEGQuality),
	)
	if err != nil {
		return fmt.Errorf("failed to open registered-face store: %w", err)
	}

	cleanupService := cleanup.NewService(cfg.Server.RegisteredDir, faceRepo,
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.TempMaxAgeMinutes)*time.Minute,
	)
	cleanupService.StartBackgroundCleanup(ctx)
	defer cleanupService.StopBackgroundCleanup()

	// Gesichtserkennungs-Engine
	manager, err := provider.CreateManager(cfg)
	if err != nil {
		return err
	}
	defer manager.Close()
	engine, _ := manager.Active()

	// Bildquelle
	var (
		source      capture.Source
		handlerOpts = []handlers.Option{handlers.WithFrameRenderer(renderFrame)}
	)
	switch cfg.Camera.Source {
	case "webcam":
		cam := capture.NewWebcam(cfg.Camera.Device, cfg.Camera.Width, cfg.Camera.Height)
		if err := cam.Start(ctx); err != nil {
			return fmt.Errorf("failed to start camera %s: %w", cfg.Camera.Device, err)
		}
		defer cam.Close()
		source = cam
	case "frigate":
		buffer := capture.NewBuffer()
		go frigate.NewFrigateClient(cfg.Camera.Frigate).Poll(ctx, buffer)
		source = buffer
	default:
		buffer := capture.NewBuffer()
		source = buffer
		handlerOpts = append(handlerOpts, handlers.WithFrameSink(buffer))
	}
	log.Infof("Camera source: %s", cfg.Camera.Source)

	guard := processor.NewGuard(engine, faceStore, source, processor.OptionsFromConfig(cfg))

	// Echtzeit-Updates
	hub := sse.NewHub()
	go hub.Run(ctx)
	guard.OnStatus(hub.BroadcastStatus)
	guard.OnRegistration(hub.BroadcastRegistration)

	if cfg.MQTT.Enabled {
		mqttClient := mqtt.NewClient(cfg.MQTT)
		if err := mqttClient.Start(); err != nil {
			log.Warnf("Failed to start MQTT client: %v. Continuing without MQTT.", err)
		} else {
			defer mqttClient.Stop()
			if err := homeassistant.NewDiscoveryManager(mqttClient).Register(); err != nil {
				log.Warnf("Home Assistant discovery failed: %v", err)
			}
			guard.OnStatus(homeassistant.NewPublisher(mqttClient).HandleSnapshot)
		}
	} else {
		log.Info("MQTT is disabled in config.")
	}

	translator, err := middleware.NewTranslator(cfg.Server.Language)
	if err != nil {
		return fmt.Errorf("failed to load translations: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	apiHandler := handlers.NewAPIHandler(cfg, guard, faceStore, hub, translator, handlerOpts...)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(cfg, apiHandler, translator),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", srv.Addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Modelle und Gesichter laden, während die API den Fortschritt schon anzeigt
	guard.Start(ctx)
	go func() {
		if err := guard.Init(ctx); err != nil {
			log.WithError(err).Error("Initialization failed, retry with POST /api/faces/reload")
		}
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debugf("sd_notify failed: %v", err)
	}

	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	}

	daemon.SdNotify(false, daemon.SdNotifyStopping)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Graceful shutdown failed: %v", err)
	}
	guard.Wait()
	return nil
}

// renderFrame zeichnet die Erkennungsergebnisse mit OpenCV in das Bild
func renderFrame(img image.Image, results []recognition.FaceResult) ([]byte, error) {
	annotations := make([]opencv.Annotation, 0, len(results))
	for _, r := range results {
		annotations = append(annotations, opencv.Annotation{
			Box:     r.Box.Rect(),
			Text:    r.Text,
			Matched: r.Matched,
		})
	}
	return opencv.Annotate(img, annotations)
}
