package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"smart-guard-go/internal/core/models"

	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
	"gorm.io/datatypes"
)

var logFields = log.Fields{
	"component": "store",
}

// Index ist der strukturierte Registrierungsindex neben den Dateien
type Index interface {
	Upsert(ctx context.Context, face *models.RegisteredFace) error
	List(ctx context.Context) ([]models.RegisteredFace, error)
}

// FileStore speichert Gesichtsbilder als "<label>_<index>.jpg" in einem Verzeichnis.
// Es gibt keine Sperren: gleichzeitige Schreiber auf denselben Schlüssel, der letzte gewinnt.
type FileStore struct {
	dir     string
	index   Index
	quality int
}

// Option konfiguriert einen FileStore
type Option func(*FileStore)

// WithIndex aktiviert den strukturierten Index
func WithIndex(index Index) Option {
	return func(s *FileStore) {
		s.index = index
	}
}

// WithJPEGQuality setzt die Qualität für umkodierte Bilder
func WithJPEGQuality(quality int) Option {
	return func(s *FileStore) {
		s.quality = quality
	}
}

// NewFileStore erstellt einen FileStore und legt das Verzeichnis bei Bedarf an
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}
	s := &FileStore{
		dir:     dir,
		quality: 92,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir gibt das Speicherverzeichnis zurück
func (s *FileStore) Dir() string {
	return s.dir
}

// Put schreibt das Bild für (label, index). Nicht-JPEG-Eingaben werden nach JPEG umkodiert.
func (s *FileStore) Put(ctx context.Context, label string, index int, data []byte, opts ...PutOption) error {
	if err := ValidateLabel(label); err != nil {
		return err
	}
	if err := ValidateIndex(index); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var po putOptions
	for _, opt := range opts {
		opt(&po)
	}

	jpegData, err := s.normalize(data)
	if err != nil {
		return err
	}

	filename := FileName(label, index)
	if err := s.writeFile(filename, jpegData); err != nil {
		return err
	}

	log.WithFields(logFields).Infof("Stored face image %s (%d bytes)", filename, len(jpegData))

	if s.index != nil {
		record := &models.RegisteredFace{
			Filename:    filename,
			Label:       label,
			AngleIndex:  index,
			AngleName:   AngleName(index),
			ContentHash: contentHash(jpegData),
		}
		if po.box != nil {
			box, _ := json.Marshal(models.CaptureBox{
				X:      po.box.Min.X,
				Y:      po.box.Min.Y,
				Width:  po.box.Dx(),
				Height: po.box.Dy(),
			})
			record.CaptureBox = datatypes.JSON(box)
		}
		// Die Datei ist geschrieben, ohne Indexeintrag greift der Dateiname als Fallback
		if err := s.index.Upsert(ctx, record); err != nil {
			log.WithFields(logFields).WithError(err).Warnf("Failed to update registration index for %s", filename)
		}
	}

	return nil
}

// ListAll liest alle gespeicherten Bilder nach Dateinamen sortiert
func (s *FileStore) ListAll(ctx context.Context) ([]Entry, error) {
	names, err := s.Filenames(ctx)
	if err != nil {
		return nil, err
	}

	indexed := s.indexByFilename(ctx)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var label string
		var index int
		if rec, ok := indexed[name]; ok {
			label, index = rec.Label, rec.AngleIndex
		} else {
			var ok bool
			label, index, ok = ParseFileName(name)
			if !ok {
				log.WithFields(logFields).Warnf("Skipping %s: filename does not follow <label>_<index>.jpg", name)
				continue
			}
		}

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			log.WithFields(logFields).WithError(err).Warnf("Skipping unreadable face image %s", name)
			continue
		}

		entries = append(entries, Entry{
			Label:    label,
			Index:    index,
			Filename: name,
			Data:     data,
		})
	}

	return entries, nil
}

// Filenames gibt die Namen aller gespeicherten Bilder zurück
func (s *FileStore) Filenames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read store directory %s: %w", s.dir, err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || !hasImageExt(name) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (s *FileStore) indexByFilename(ctx context.Context) map[string]models.RegisteredFace {
	result := make(map[string]models.RegisteredFace)
	if s.index == nil {
		return result
	}
	records, err := s.index.List(ctx)
	if err != nil {
		log.WithFields(logFields).WithError(err).Warn("Failed to read registration index, falling back to filenames")
		return result
	}
	for _, rec := range records {
		result[rec.Filename] = rec
	}
	return result
}

// normalize prüft, ob die Daten ein Bild sind, und liefert JPEG-Bytes
func (s *FileStore) normalize(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, &ValidationError{Field: "image", Reason: "empty payload"}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ValidationError{Field: "image", Reason: "not decodable image data"}
	}
	if format == "jpeg" {
		return data, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return nil, fmt.Errorf("failed to re-encode %s image as JPEG: %w", format, err)
	}
	return buf.Bytes(), nil
}

// TempFilePrefix kennzeichnet unfertige Uploads im Speicherverzeichnis
const TempFilePrefix = ".upload-"

// writeFile schreibt über eine temporäre Datei und benennt sie anschließend um
func (s *FileStore) writeFile(filename string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, TempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", filename, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		log.WithFields(logFields).WithError(err).Debugf("Failed to chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, filename)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", filename, err)
	}
	return nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
