package provider

import (
	"fmt"

	"smart-guard-go/config"
	"smart-guard-go/internal/integrations/compreface"
	"smart-guard-go/internal/integrations/dlib"
	"smart-guard-go/internal/integrations/facerecognition"
	"smart-guard-go/internal/integrations/insightface"
	"smart-guard-go/internal/integrations/opencv"

	log "github.com/sirupsen/logrus"
)

// CreateManager registriert alle Engines und aktiviert die konfigurierte.
// Geladen wird erst beim Start des Coordinators, so dass der Status "LoadingModels" sichtbar ist.
func CreateManager(cfg *config.Config) (*facerecognition.ProviderManager, error) {
	manager := facerecognition.NewProviderManager()

	manager.Register(insightface.NewService(cfg.Engine.InsightFace, cfg.Engine.MinConfidence))
	manager.Register(compreface.NewService(cfg.Engine.CompreFace))
	manager.Register(dlib.NewEngine(cfg.Engine.Dlib))
	manager.Register(opencv.NewService(cfg.Engine.OpenCV))

	active := facerecognition.ProviderType(cfg.Engine.Provider)
	if active == "" {
		active = facerecognition.ProviderInsightFace
	}

	if err := manager.SetActive(active); err != nil {
		return nil, fmt.Errorf("unknown face engine %q (available: %v): %w", cfg.Engine.Provider, manager.Names(), err)
	}
	log.Infof("Active face engine: %s", active)

	return manager, nil
}
