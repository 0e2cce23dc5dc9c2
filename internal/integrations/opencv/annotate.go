package opencv

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	gocv "gocv.io/x/gocv"
)

var (
	colorMatched = color.RGBA{0, 255, 0, 0}
	colorUnknown = color.RGBA{255, 0, 0, 0}
)

// Annotation ist eine Gesichtsbox mit Beschriftung
type Annotation struct {
	Box     image.Rectangle
	Text    string
	Matched bool
}

// Annotate zeichnet die Boxen in das Bild und gibt es als JPEG zurück.
// Erkannte Gesichter werden grün, unbekannte rot umrandet, der Text steht über der Box.
func Annotate(img image.Image, annotations []Annotation) ([]byte, error) {
	if img == nil {
		return nil, errors.New("no frame to annotate")
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	offset := img.Bounds().Min
	for _, a := range annotations {
		c := colorUnknown
		if a.Matched {
			c = colorMatched
		}
		r := a.Box.Sub(offset)
		gocv.Rectangle(&mat, r, c, 2)

		textY := r.Min.Y - 6
		if textY < 12 {
			textY = r.Max.Y + 16
		}
		gocv.PutText(&mat, a.Text, image.Pt(r.Min.X, textY), gocv.FontHersheySimplex, 0.6, c, 2)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode annotated frame: %w", err)
	}
	defer buf.Close()

	// Der native Puffer wird mit Close freigegeben, daher kopieren
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}
