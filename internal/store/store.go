// Package store hält die registrierten Gesichtsbilder als flaches Verzeichnis von JPEG-Dateien.
package store

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
	"unicode"
)

const (
	// AngleCount ist die Anzahl der Aufnahmewinkel pro Person
	AngleCount = 3

	fileExt        = ".jpg"
	maxLabelLength = 64

	// Label des Matchers für nicht zugeordnete Gesichter
	unknownLabel = "unknown"
)

var angleNames = [AngleCount]string{"front", "left", "right"}

// AngleName gibt den Namen der Kopfhaltung zu einem Winkelindex (1..3) zurück
func AngleName(index int) string {
	if index < 1 || index > AngleCount {
		return ""
	}
	return angleNames[index-1]
}

// Entry ist ein gespeichertes Gesichtsbild
type Entry struct {
	Label    string
	Index    int
	Filename string
	Data     []byte
}

// Store ist die Schlüssel-Wert-Schnittstelle für registrierte Gesichtsbilder
type Store interface {
	// Put schreibt oder überschreibt das Bild für (label, index)
	Put(ctx context.Context, label string, index int, data []byte, opts ...PutOption) error
	// ListAll gibt alle gespeicherten Bilder zurück, eine leere Liste ist kein Fehler
	ListAll(ctx context.Context) ([]Entry, error)
}

// PutOption ergänzt Metadaten beim Speichern
type PutOption func(*putOptions)

type putOptions struct {
	box *image.Rectangle
}

// WithCaptureBox hinterlegt die Gesichtsbox im Originalframe im Index
func WithCaptureBox(box image.Rectangle) PutOption {
	return func(o *putOptions) {
		o.box = &box
	}
}

// ValidationError beschreibt eine ungültige Eingabe an der Speichergrenze
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation prüft, ob err ein ValidationError ist
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateLabel prüft, ob ein Label als Teil eines Dateinamens taugt
func ValidateLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return &ValidationError{Field: "label", Reason: "must not be empty"}
	}
	if len(label) > maxLabelLength {
		return &ValidationError{Field: "label", Reason: fmt.Sprintf("longer than %d bytes", maxLabelLength)}
	}
	if strings.EqualFold(strings.TrimSpace(label), unknownLabel) {
		return &ValidationError{Field: "label", Reason: "\"unknown\" is reserved for unmatched faces"}
	}
	if label == "." || label == ".." || strings.HasPrefix(label, ".") {
		return &ValidationError{Field: "label", Reason: "must not start with a dot"}
	}
	for _, r := range label {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return &ValidationError{Field: "label", Reason: "contains path separators or control characters"}
		}
	}
	return nil
}

// ValidateIndex prüft den Winkelindex
func ValidateIndex(index int) error {
	if index < 1 || index > AngleCount {
		return &ValidationError{Field: "index", Reason: fmt.Sprintf("must be within 1..%d", AngleCount)}
	}
	return nil
}

// FileName bildet den Speicherschlüssel "<label>_<index>.jpg"
func FileName(label string, index int) string {
	return fmt.Sprintf("%s_%d%s", label, index, fileExt)
}

// ParseFileName gewinnt Label und Index aus einem Dateinamen zurück.
// Der Index folgt dem letzten Unterstrich, daher bleiben Labels mit Unterstrichen eindeutig.
func ParseFileName(name string) (string, int, bool) {
	if !hasImageExt(name) {
		return "", 0, false
	}
	base := name[:len(name)-len(fileExt)]
	sep := strings.LastIndex(base, "_")
	if sep <= 0 || sep == len(base)-1 {
		return "", 0, false
	}
	index, err := strconv.Atoi(base[sep+1:])
	if err != nil || index < 1 {
		return "", 0, false
	}
	return base[:sep], index, true
}

func hasImageExt(name string) bool {
	return len(name) > len(fileExt) && strings.EqualFold(name[len(name)-len(fileExt):], fileExt)
}
