package matcher

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"smart-guard-go/internal/integrations/facerecognition"
	"smart-guard-go/internal/store"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "matcher",
}

// Builder erzeugt aus den gespeicherten Bildern einen Matcher
type Builder struct {
	engine        facerecognition.Engine
	minConfidence float64
	threshold     float64
}

// BuildStats fasst einen Build zusammen
type BuildStats struct {
	Entries int `json:"entries"`
	Used    int `json:"used"`
	Skipped int `json:"skipped"`
	Labels  int `json:"labels"`
}

// NewBuilder erstellt einen Builder
func NewBuilder(engine facerecognition.Engine, minConfidence, threshold float64) *Builder {
	return &Builder{
		engine:        engine,
		minConfidence: minConfidence,
		threshold:     threshold,
	}
}

// Build berechnet für jedes Bild einen Deskriptor und gruppiert nach Label.
// Bilder ohne erkennbares Gesicht werden übersprungen, ohne ein einziges Label gibt es ErrNoUsableData.
func (b *Builder) Build(ctx context.Context, entries []store.Entry) (*Matcher, BuildStats, error) {
	stats := BuildStats{Entries: len(entries)}

	var labeled []LabeledDescriptors
	positions := make(map[string]int)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		fields := log.Fields{"component": "matcher", "file": entry.Filename}

		img, _, err := image.Decode(bytes.NewReader(entry.Data))
		if err != nil {
			log.WithFields(fields).WithError(err).Warn("Skipping undecodable face image")
			stats.Skipped++
			continue
		}

		face, err := facerecognition.DetectSingle(ctx, b.engine, img, b.minConfidence)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, stats, err
			}
			if errors.Is(err, facerecognition.ErrNoFace) {
				log.WithFields(fields).Warn("No face found in registered image")
			} else {
				log.WithFields(fields).WithError(err).Warn("Face engine failed on registered image")
			}
			stats.Skipped++
			continue
		}

		if pos, ok := positions[entry.Label]; ok {
			labeled[pos].Descriptors = append(labeled[pos].Descriptors, face.Descriptor)
		} else {
			positions[entry.Label] = len(labeled)
			labeled = append(labeled, LabeledDescriptors{
				Label:       entry.Label,
				Descriptors: [][]float32{face.Descriptor},
			})
		}
		stats.Used++
	}

	stats.Labels = len(labeled)
	if len(labeled) == 0 {
		return nil, stats, ErrNoUsableData
	}

	m, err := New(labeled, b.threshold)
	if err != nil {
		return nil, stats, err
	}

	log.WithFields(logFields).Infof("Matcher built: %d labels from %d of %d images", stats.Labels, stats.Used, stats.Entries)
	return m, stats, nil
}
