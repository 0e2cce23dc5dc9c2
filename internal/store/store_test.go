package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"smart-guard-go/internal/core/models"
)

func testImage(t *testing.T, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	return buf.Bytes()
}

type memoryIndex struct {
	rows map[string]models.RegisteredFace
}

func (m *memoryIndex) Upsert(_ context.Context, face *models.RegisteredFace) error {
	if m.rows == nil {
		m.rows = make(map[string]models.RegisteredFace)
	}
	m.rows[face.Filename] = *face
	return nil
}

func (m *memoryIndex) List(_ context.Context) ([]models.RegisteredFace, error) {
	out := make([]models.RegisteredFace, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

func TestFileStore_PutThenListAll(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "alice", 2, testImage(t, "jpeg")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	entries, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ListAll() returned %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Label != "alice" || e.Index != 2 || e.Filename != "alice_2.jpg" {
		t.Errorf("entry = %s/%d/%s, want alice/2/alice_2.jpg", e.Label, e.Index, e.Filename)
	}
	if _, _, err := image.Decode(bytes.NewReader(e.Data)); err != nil {
		t.Errorf("stored data does not decode: %v", err)
	}
}

func TestFileStore_OverwriteKeepsSingleFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := s.Put(ctx, "alice", 1, testImage(t, "jpeg")); err != nil {
			t.Fatalf("Put() #%d error = %v", i, err)
		}
	}

	names, err := s.Filenames(ctx)
	if err != nil {
		t.Fatalf("Filenames() error = %v", err)
	}
	if len(names) != 1 || names[0] != "alice_1.jpg" {
		t.Errorf("Filenames() = %v, want [alice_1.jpg]", names)
	}

	// keine Temp-Dateien zurückgelassen
	all, _ := os.ReadDir(dir)
	if len(all) != 1 {
		t.Errorf("directory holds %d files, want 1", len(all))
	}
}

func TestFileStore_PutValidation(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()
	valid := testImage(t, "jpeg")

	tests := []struct {
		name  string
		label string
		index int
		data  []byte
	}{
		{"empty label", "", 1, valid},
		{"blank label", "   ", 1, valid},
		{"path separator", "../evil", 1, valid},
		{"backslash", `a\b`, 1, valid},
		{"dot label", "..", 1, valid},
		{"reserved unknown", "unknown", 1, valid},
		{"reserved unknown any case", " Unknown", 1, valid},
		{"index zero", "alice", 0, valid},
		{"index four", "alice", 4, valid},
		{"empty data", "alice", 1, nil},
		{"garbage data", "alice", 1, []byte("not an image")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Put(ctx, tt.label, tt.index, tt.data)
			if err == nil {
				t.Fatal("Put() error = nil, want validation error")
			}
			if !IsValidation(err) {
				t.Errorf("Put() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestFileStore_ReencodesPNG(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "bob", 3, testImage(t, "png")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	entries, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ListAll() returned %d entries, want 1", len(entries))
	}
	if _, format, err := image.Decode(bytes.NewReader(entries[0].Data)); err != nil || format != "jpeg" {
		t.Errorf("stored format = %q (err %v), want jpeg", format, err)
	}
}

func TestFileStore_MissingDirectoryIsEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "registered")
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}

	entries, err := s.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("ListAll() = %d entries, want 0", len(entries))
	}
}

func TestFileStore_IndexResolvesUnderscoreLabels(t *testing.T) {
	dir := t.TempDir()
	idx := &memoryIndex{}
	s, err := NewFileStore(dir, WithIndex(idx))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "mary_ann", 1, testImage(t, "jpeg"), WithCaptureBox(image.Rect(10, 20, 110, 140))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	row, ok := idx.rows["mary_ann_1.jpg"]
	if !ok {
		t.Fatal("index row for mary_ann_1.jpg missing")
	}
	if row.AngleName != "front" || row.ContentHash == "" || len(row.CaptureBox) == 0 {
		t.Errorf("index row = %+v, want angle front, hash and capture box", row)
	}

	// Datei ohne Indexeintrag: Fallback auf den letzten Unterstrich
	if err := os.WriteFile(filepath.Join(dir, "jean_luc_2.jpg"), testImage(t, "jpeg"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// Dateien, die nicht dem Schema folgen, werden übersprungen
	if err := os.WriteFile(filepath.Join(dir, "notes.jpg"), testImage(t, "jpeg"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	got := map[string]int{}
	for _, e := range entries {
		got[e.Label] = e.Index
	}
	if len(got) != 2 || got["mary_ann"] != 1 || got["jean_luc"] != 2 {
		t.Errorf("labels = %v, want mary_ann:1 jean_luc:2", got)
	}
}

func TestParseFileName(t *testing.T) {
	tests := []struct {
		in    string
		label string
		index int
		ok    bool
	}{
		{"alice_1.jpg", "alice", 1, true},
		{"mary_ann_3.JPG", "mary_ann", 3, true},
		{"alice.jpg", "", 0, false},
		{"_1.jpg", "", 0, false},
		{"alice_x.jpg", "", 0, false},
		{"alice_0.jpg", "", 0, false},
		{"alice_1.png", "", 0, false},
	}
	for _, tt := range tests {
		label, index, ok := ParseFileName(tt.in)
		if label != tt.label || index != tt.index || ok != tt.ok {
			t.Errorf("ParseFileName(%q) = %q, %d, %v; want %q, %d, %v", tt.in, label, index, ok, tt.label, tt.index, tt.ok)
		}
	}
}

func TestDecodeDataURL(t *testing.T) {
	raw := testImage(t, "jpeg")
	enc := base64.StdEncoding.EncodeToString(raw)

	for _, in := range []string{"data:image/jpeg;base64," + enc, enc} {
		got, err := DecodeDataURL(in)
		if err != nil {
			t.Fatalf("DecodeDataURL() error = %v", err)
		}
		if !bytes.Equal(got, raw) {
			t.Errorf("DecodeDataURL() returned %d bytes, want %d", len(got), len(raw))
		}
	}

	if _, err := DecodeDataURL("data:text/plain;base64,aGVsbG8="); !IsValidation(err) {
		t.Errorf("DecodeDataURL(text/plain) error = %v, want ValidationError", err)
	}
	if _, err := DecodeDataURL(""); !IsValidation(err) {
		t.Errorf("DecodeDataURL(\"\") error = %v, want ValidationError", err)
	}
}
