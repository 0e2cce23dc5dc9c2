package opencv

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
)

const (
	pigoShiftFactor  = 0.1
	pigoScaleFactor  = 1.1
	pigoIoUThreshold = 0.2
)

// faceDetector findet Gesichtsboxen mit einer pigo-Kaskade
type faceDetector struct {
	classifier   *pigo.Pigo
	minSize      int
	maxSize      int
	qualityScale float64
}

// detection ist eine Gesichtsbox mit normierter Qualität
type detection struct {
	box   image.Rectangle
	score float64
}

func newFaceDetector(cascadeFile string, minSize, maxSize int, qualityScale float64) (*faceDetector, error) {
	data, err := os.ReadFile(cascadeFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read pigo cascade %s: %w", cascadeFile, err)
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack pigo cascade: %w", err)
	}

	if qualityScale <= 0 {
		qualityScale = 10
	}
	return &faceDetector{
		classifier:   classifier,
		minSize:      minSize,
		maxSize:      maxSize,
		qualityScale: qualityScale,
	}, nil
}

// detect liefert Boxen in den Koordinaten von img
func (d *faceDetector) detect(img image.Image) []detection {
	src := imaging.Clone(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	params := pigo.CascadeParams{
		MinSize:     d.minSize,
		MaxSize:     d.maxSize,
		ShiftFactor: pigoShiftFactor,
		ScaleFactor: pigoScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, pigoIoUThreshold)

	frame := image.Rect(0, 0, cols, rows)
	offset := img.Bounds().Min
	result := make([]detection, 0, len(dets))
	for _, det := range dets {
		half := det.Scale / 2
		box := image.Rect(det.Col-half, det.Row-half, det.Col-half+det.Scale, det.Row-half+det.Scale).Intersect(frame)
		if box.Empty() {
			continue
		}
		score := float64(det.Q) / d.qualityScale
		if score > 1 {
			score = 1
		}
		result = append(result, detection{box: box.Add(offset), score: score})
	}
	return result
}
