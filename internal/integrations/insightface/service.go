package insightface

import (
	"context"
	"fmt"
	"image"
	"math"

	"smart-guard-go/config"
	"smart-guard-go/internal/integrations/facerecognition"

	log "github.com/sirupsen/logrus"
)

// Service implementiert facerecognition.Engine über den InsightFace-REST-Dienst
type Service struct {
	client        *APIClient
	minConfidence float64
}

// NewService erstellt einen neuen InsightFace-Service
func NewService(cfg config.InsightFaceConfig, minConfidence float64) *Service {
	return &Service{
		client:        NewAPIClient(cfg),
		minConfidence: minConfidence,
	}
}

// Name gibt den Namen der Engine zurück
func (s *Service) Name() facerecognition.ProviderType {
	return facerecognition.ProviderInsightFace
}

// Load prüft, ob der Dienst erreichbar ist. Die Modelle lädt der Dienst selbst.
func (s *Service) Load(ctx context.Context) error {
	info, err := s.client.Info(ctx)
	if err != nil {
		return fmt.Errorf("InsightFace not available: %w", err)
	}
	log.WithFields(logFields).Infof("InsightFace %s ready (backend %s)", info.Version, info.Backend)
	return nil
}

// Detect erkennt Gesichter und übersetzt die Antwort in facerecognition.Face
func (s *Service) Detect(ctx context.Context, img image.Image) ([]facerecognition.Face, error) {
	apiResp, err := s.client.Detect(ctx, img, s.minConfidence)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	bounds := img.Bounds()
	faces := make([]facerecognition.Face, 0, len(apiResp.Faces))
	for _, f := range apiResp.Faces {
		if len(f.BoundingBox) < 4 {
			log.WithFields(logFields).Warnf("Ignoring face with malformed bbox %v", f.BoundingBox)
			continue
		}
		box := image.Rect(
			int(math.Round(f.BoundingBox[0])),
			int(math.Round(f.BoundingBox[1])),
			int(math.Round(f.BoundingBox[2])),
			int(math.Round(f.BoundingBox[3])),
		).Add(bounds.Min).Intersect(bounds)

		faces = append(faces, facerecognition.Face{
			Box:        box,
			Score:      f.Confidence,
			Descriptor: f.Embedding,
		})
	}
	return faces, nil
}

// Close hat beim REST-Dienst nichts freizugeben
func (s *Service) Close() error {
	return nil
}
