package compreface

import (
	"context"
	"errors"
	"fmt"
	"image"

	"smart-guard-go/config"
	"smart-guard-go/internal/integrations/facerecognition"

	log "github.com/sirupsen/logrus"
)

// Service implementiert facerecognition.Engine über den Detection-Dienst von CompreFace.
// Der Abgleich mit den registrierten Gesichtern bleibt im Matcher, CompreFace liefert nur Boxen und Embeddings.
type Service struct {
	client *Client
	cfg    config.CompreFaceConfig
}

// NewService erstellt einen neuen CompreFace-Service
func NewService(cfg config.CompreFaceConfig) *Service {
	return &Service{
		client: NewClient(cfg),
		cfg:    cfg,
	}
}

// Name gibt den Namen der Engine zurück
func (s *Service) Name() facerecognition.ProviderType {
	return facerecognition.ProviderCompreFace
}

// Load prüft mit einem leeren Probebild, ob der Dienst erreichbar ist und den API-Key akzeptiert
func (s *Service) Load(ctx context.Context) error {
	if s.cfg.DetectionAPIKey == "" {
		return errors.New("CompreFace detection API key is not configured")
	}
	if _, err := s.client.Detect(ctx, image.NewGray(image.Rect(0, 0, 64, 64))); err != nil {
		return fmt.Errorf("CompreFace not available: %w", err)
	}
	log.WithFields(logFields).Infof("CompreFace detection service ready at %s", s.cfg.URL)
	return nil
}

// Detect erkennt Gesichter und übersetzt die Antwort in facerecognition.Face
func (s *Service) Detect(ctx context.Context, img image.Image) ([]facerecognition.Face, error) {
	resp, err := s.client.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	bounds := img.Bounds()
	faces := make([]facerecognition.Face, 0, len(resp.Result))
	for _, r := range resp.Result {
		box := image.Rect(r.Box.XMin, r.Box.YMin, r.Box.XMax, r.Box.YMax).Add(bounds.Min).Intersect(bounds)
		if box.Empty() {
			continue
		}
		faces = append(faces, facerecognition.Face{
			Box:        box,
			Score:      r.Box.Probability,
			Descriptor: r.Embedding,
		})
	}
	return faces, nil
}

// Close hat beim REST-Dienst nichts freizugeben
func (s *Service) Close() error {
	return nil
}
