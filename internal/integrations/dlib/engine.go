// Package dlib bindet die dlib-Modelle über go-face als lokale Engine an.
package dlib

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"smart-guard-go/config"
	"smart-guard-go/internal/integrations/facerecognition"

	face "github.com/Kagami/go-face"
	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "dlib",
}

// go-face liefert keine Detektionskonfidenz, jedes gefundene Gesicht gilt als sicher
const detectionScore = 1.0

// Engine implementiert facerecognition.Engine mit go-face
type Engine struct {
	cfg config.DlibConfig

	mu  sync.Mutex
	rec *face.Recognizer
}

// NewEngine erstellt eine noch nicht geladene dlib-Engine
func NewEngine(cfg config.DlibConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Name gibt den Namen der Engine zurück
func (e *Engine) Name() facerecognition.ProviderType {
	return facerecognition.ProviderDlib
}

// Load lädt shape predictor, ResNet und Detektor aus dem Modellverzeichnis
func (e *Engine) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec != nil {
		return nil
	}

	log.WithFields(logFields).Infof("Loading dlib models from %s", e.cfg.ModelsDir)
	rec, err := face.NewRecognizer(e.cfg.ModelsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize dlib recognizer: %w", err)
	}
	e.rec = rec
	return nil
}

// Detect erkennt Gesichter. go-face arbeitet auf JPEG-Bytes, daher wird das Bild kodiert.
func (e *Engine) Detect(ctx context.Context, img image.Image) ([]facerecognition.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil {
		return nil, fmt.Errorf("dlib models not loaded")
	}

	var found []face.Face
	var err error
	if e.cfg.UseCNN {
		found, err = e.rec.RecognizeCNN(buf.Bytes())
	} else {
		found, err = e.rec.Recognize(buf.Bytes())
	}
	if err != nil {
		return nil, fmt.Errorf("dlib recognition failed: %w", err)
	}

	offset := img.Bounds().Min
	faces := make([]facerecognition.Face, 0, len(found))
	for _, f := range found {
		faces = append(faces, facerecognition.Face{
			Box:        f.Rectangle.Add(offset),
			Score:      detectionScore,
			Descriptor: append([]float32(nil), f.Descriptor[:]...),
		})
	}
	return faces, nil
}

// Close gibt den Recognizer frei
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec != nil {
		e.rec.Close()
		e.rec = nil
	}
	return nil
}
