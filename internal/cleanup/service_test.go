package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"smart-guard-go/internal/core/models"
	"smart-guard-go/internal/store"
)

type memoryIndex struct {
	rows map[string]models.RegisteredFace
}

func (m *memoryIndex) List(ctx context.Context) ([]models.RegisteredFace, error) {
	out := make([]models.RegisteredFace, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryIndex) DeleteByFilename(ctx context.Context, filename string) error {
	delete(m.rows, filename)
	return nil
}

func TestNewService_Disabled(t *testing.T) {
	if s := NewService(t.TempDir(), nil, 0, time.Minute); s != nil {
		t.Error("NewService() with zero interval should be disabled")
	}
	// deaktivierter Service ist gefahrlos nutzbar
	var s *Service
	s.StartBackgroundCleanup(context.Background())
	s.StopBackgroundCleanup()
	if res := s.RunCleanupCycle(context.Background()); res != (Result{}) {
		t.Errorf("RunCleanupCycle() on nil service = %+v", res)
	}
}

func TestRunCleanupCycle(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, age time.Duration) {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		mtime := time.Now().Add(-age)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("Chtimes: %v", err)
		}
	}

	write("alice_1.jpg", time.Hour)
	write(store.TempFilePrefix+"old", time.Hour)
	write(store.TempFilePrefix+"fresh", 0)

	idx := &memoryIndex{rows: map[string]models.RegisteredFace{
		"alice_1.jpg": {Filename: "alice_1.jpg", Label: "alice", AngleIndex: 1},
		"bob_2.jpg":   {Filename: "bob_2.jpg", Label: "bob", AngleIndex: 2},
	}}

	s := NewService(dir, idx, time.Hour, 10*time.Minute)
	res := s.RunCleanupCycle(context.Background())

	if res.TempFilesRemoved != 1 || res.IndexRowsPruned != 1 {
		t.Errorf("result = %+v, want 1 upload and 1 index row", res)
	}
	if _, ok := idx.rows["alice_1.jpg"]; !ok {
		t.Error("index row for existing file was pruned")
	}
	for _, name := range []string{"alice_1.jpg", store.TempFilePrefix + "fresh"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s removed: %v", name, err)
		}
	}
}
