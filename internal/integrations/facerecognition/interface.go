package facerecognition

import (
	"context"
	"errors"
	"image"
)

// ProviderType definiert den Typ der Gesichtserkennungs-Engine
type ProviderType string

const (
	// ProviderInsightFace steht für den InsightFace-REST-Dienst
	ProviderInsightFace ProviderType = "insightface"

	// ProviderCompreFace steht für den Detection-Dienst von CompreFace mit calculator-Plugin
	ProviderCompreFace ProviderType = "compreface"

	// ProviderDlib steht für die lokale dlib-Engine (go-face)
	ProviderDlib ProviderType = "dlib"

	// ProviderOpenCV steht für pigo-Detektion mit OpenCV-DNN-Deskriptoren
	ProviderOpenCV ProviderType = "opencv"
)

// ErrNoFace wird zurückgegeben, wenn kein Gesicht mit ausreichender Konfidenz gefunden wurde
var ErrNoFace = errors.New("no face detected")

// Face repräsentiert ein erkanntes Gesicht
type Face struct {
	// Box ist die Gesichtsbox in Bildkoordinaten
	Box image.Rectangle `json:"box"`

	// Score ist die Detektionskonfidenz (0-1)
	Score float64 `json:"score"`

	// Descriptor ist der Gesichtsvektor für den Abgleich
	Descriptor []float32 `json:"-"`
}

// Engine definiert die Schnittstelle einer Gesichtserkennungs-Engine.
// Detektion, Landmarken und Deskriptoren liefert die Engine, der Abgleich passiert im Matcher.
type Engine interface {
	// Name gibt den Namen der Engine zurück
	Name() ProviderType

	// Load lädt die Modelle, muss vor Detect aufgerufen werden
	Load(ctx context.Context) error

	// Detect findet alle Gesichter eines Bildes samt Deskriptor
	Detect(ctx context.Context, img image.Image) ([]Face, error)

	// Close gibt Ressourcen der Engine frei
	Close() error
}

// DetectSingle liefert das Gesicht mit der höchsten Konfidenz oberhalb von minConfidence
func DetectSingle(ctx context.Context, engine Engine, img image.Image, minConfidence float64) (Face, error) {
	faces, err := engine.Detect(ctx, img)
	if err != nil {
		return Face{}, err
	}

	best := -1
	for i, f := range faces {
		if f.Score < minConfidence || len(f.Descriptor) == 0 {
			continue
		}
		if best < 0 || f.Score > faces[best].Score {
			best = i
		}
	}
	if best < 0 {
		return Face{}, ErrNoFace
	}
	return faces[best], nil
}

// FilterConfident entfernt Gesichter unterhalb von minConfidence
func FilterConfident(faces []Face, minConfidence float64) []Face {
	kept := faces[:0:0]
	for _, f := range faces {
		if f.Score >= minConfidence && len(f.Descriptor) > 0 {
			kept = append(kept, f)
		}
	}
	return kept
}
