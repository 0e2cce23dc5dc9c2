package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"smart-guard-go/internal/core/models"
	"smart-guard-go/internal/store"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{"component": "cleanup"}

// Index ist der Teil des Registrierungsindex, den die Bereinigung braucht
type Index interface {
	List(ctx context.Context) ([]models.RegisteredFace, error)
	DeleteByFilename(ctx context.Context, filename string) error
}

// Result fasst einen Bereinigungslauf zusammen
type Result struct {
	TempFilesRemoved int
	IndexRowsPruned  int
}

// Service entfernt liegengebliebene Uploads und Indexeinträge ohne Datei.
// Registrierte Bilder selbst werden nie gelöscht.
type Service struct {
	dir           string
	index         Index
	checkInterval time.Duration
	tempMaxAge    time.Duration

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewService erstellt einen neuen Service. Bei checkInterval <= 0 ist die Bereinigung deaktiviert.
func NewService(dir string, index Index, checkInterval, tempMaxAge time.Duration) *Service {
	if checkInterval <= 0 {
		log.WithFields(logFields).Info("Automatic cleanup disabled (interval <= 0).")
		return nil
	}
	if dir == "" {
		log.WithFields(logFields).Error("Cannot initialize cleanup: registered directory is empty")
		return nil
	}
	log.WithFields(logFields).Infof("Initializing cleanup: Dir='%s', CheckInterval=%s", dir, checkInterval)
	return &Service{
		dir:           dir,
		index:         index,
		checkInterval: checkInterval,
		tempMaxAge:    tempMaxAge,
		stopChan:      make(chan struct{}),
	}
}

// StartBackgroundCleanup startet einen sofortigen und danach periodische Läufe
func (s *Service) StartBackgroundCleanup(ctx context.Context) {
	if s == nil {
		return
	}

	go func() {
		s.RunCleanupCycle(ctx)

		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunCleanupCycle(ctx)
			case <-ctx.Done():
				return
			case <-s.stopChan:
				log.WithFields(logFields).Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup beendet die periodischen Läufe
func (s *Service) StopBackgroundCleanup() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// RunCleanupCycle führt einen Bereinigungslauf durch
func (s *Service) RunCleanupCycle(ctx context.Context) Result {
	var res Result
	if s == nil {
		return res
	}

	res.TempFilesRemoved = s.removeStaleUploads(time.Now().Add(-s.tempMaxAge))
	if s.index != nil {
		res.IndexRowsPruned = s.pruneIndex(ctx)
	}

	if res.TempFilesRemoved > 0 || res.IndexRowsPruned > 0 {
		log.WithFields(logFields).Infof("Cleanup cycle finished. Removed uploads: %d, pruned index rows: %d", res.TempFilesRemoved, res.IndexRowsPruned)
	} else {
		log.WithFields(logFields).Debug("Cleanup cycle finished, nothing to do")
	}
	return res
}

func (s *Service) removeStaleUploads(cutoff time.Time) int {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.WithFields(logFields).WithError(err).Warn("Failed to read registered directory")
		}
		return 0
	}

	removed := 0
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasPrefix(de.Name(), store.TempFilePrefix) {
			continue
		}
		info, err := de.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, de.Name())
		if err := os.Remove(path); err != nil {
			log.WithFields(logFields).WithError(err).Warnf("Failed to remove stale upload %s", path)
			continue
		}
		removed++
	}
	return removed
}

func (s *Service) pruneIndex(ctx context.Context) int {
	rows, err := s.index.List(ctx)
	if err != nil {
		log.WithFields(logFields).WithError(err).Warn("Failed to read registration index")
		return 0
	}

	pruned := 0
	for _, row := range rows {
		_, err := os.Stat(filepath.Join(s.dir, row.Filename))
		if !errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := s.index.DeleteByFilename(ctx, row.Filename); err != nil {
			log.WithFields(logFields).WithError(err).Warnf("Failed to prune index row %s", row.Filename)
			continue
		}
		log.WithFields(logFields).Infof("Pruned index row for missing file %s", row.Filename)
		pruned++
	}
	return pruned
}
