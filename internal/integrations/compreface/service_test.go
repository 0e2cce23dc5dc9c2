package compreface

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"smart-guard-go/config"
)

func TestService_Detect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/detection/detect" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("x-api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("face_plugins") != "calculator" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(DetectionResponse{Result: []DetectionResult{
			{Box: Box{Probability: 0.99, XMin: 10, YMin: 20, XMax: 60, YMax: 80}, Embedding: []float32{0.1, 0.2}},
			{Box: Box{Probability: 0.9, XMin: 500, YMin: 500, XMax: 600, YMax: 600}},
		}})
	}))
	defer srv.Close()

	svc := NewService(config.CompreFaceConfig{URL: srv.URL, DetectionAPIKey: "secret", DetProbThreshold: 0.8})
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	faces, err := svc.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 100, 100)))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(faces) != 1 {
		t.Fatalf("Detect() returned %d faces, want 1 (box outside image dropped)", len(faces))
	}
	if faces[0].Box != image.Rect(10, 20, 60, 80) || faces[0].Score != 0.99 || len(faces[0].Descriptor) != 2 {
		t.Errorf("face = %+v", faces[0])
	}
}

func TestService_NoFaceIsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"No face is found in the given image","code":28}`))
	}))
	defer srv.Close()

	svc := NewService(config.CompreFaceConfig{URL: srv.URL, DetectionAPIKey: "secret"})
	faces, err := svc.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10)))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("Detect() returned %d faces, want 0", len(faces))
	}
}

func TestService_LoadFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Missing header: x-api-key","code":20}`))
	}))
	defer srv.Close()

	if err := NewService(config.CompreFaceConfig{URL: srv.URL}).Load(context.Background()); err == nil {
		t.Error("Load() without API key error = nil, want error")
	}
	if err := NewService(config.CompreFaceConfig{URL: srv.URL, DetectionAPIKey: "wrong"}).Load(context.Background()); err == nil {
		t.Error("Load() with rejected key error = nil, want error")
	}
}
