package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir, path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SMART_GUARD_SERVER_DATA_DIR", dir)
	t.Setenv("SMART_GUARD_SERVER_REGISTERED_DIR", filepath.Join(dir, "registered"))
	t.Setenv("SMART_GUARD_LOG_FILE", filepath.Join(dir, "logs", "test.log"))
	t.Setenv("SMART_GUARD_DB_FILE", filepath.Join(dir, "db", "test.db"))

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Recognition.MatchThreshold != 0.5 {
		t.Errorf("Recognition.MatchThreshold = %v, want 0.5", cfg.Recognition.MatchThreshold)
	}
	if cfg.Recognition.RequiredFrames != 3 {
		t.Errorf("Recognition.RequiredFrames = %d, want 3", cfg.Recognition.RequiredFrames)
	}
	if cfg.Engine.MinConfidence != 0.4 {
		t.Errorf("Engine.MinConfidence = %v, want 0.4", cfg.Engine.MinConfidence)
	}
	if cfg.Auth.Username != "admin" || cfg.Auth.Password != "1234" {
		t.Errorf("Auth = %+v, want admin/1234 defaults", cfg.Auth)
	}
	if cfg.Cleanup.IntervalMinutes != 60 || cfg.Cleanup.TempMaxAgeMinutes != 10 {
		t.Errorf("Cleanup = %+v, want 60/10 defaults", cfg.Cleanup)
	}
	if cfg.Registration.SettleSeconds != 2 {
		t.Errorf("Registration.SettleSeconds = %v, want 2", cfg.Registration.SettleSeconds)
	}

	for _, p := range []string{cfg.Server.RegisteredDir, filepath.Dir(cfg.Log.File), filepath.Dir(cfg.DB.File)} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected directory %s to exist: %v", p, err)
		}
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir, path := writeConfig(t, `
server:
  port: 8080
recognition:
  required_frames: 5
engine:
  provider: dlib
camera:
  source: webcam
  device: /dev/video2
`)
	t.Setenv("SMART_GUARD_SERVER_DATA_DIR", dir)
	t.Setenv("SMART_GUARD_SERVER_REGISTERED_DIR", filepath.Join(dir, "registered"))
	t.Setenv("SMART_GUARD_LOG_FILE", filepath.Join(dir, "test.log"))
	t.Setenv("SMART_GUARD_DB_FILE", filepath.Join(dir, "test.db"))
	t.Setenv("SMART_GUARD_RECOGNITION_MATCH_THRESHOLD", "0.6")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Recognition.RequiredFrames != 5 {
		t.Errorf("Recognition.RequiredFrames = %d, want 5", cfg.Recognition.RequiredFrames)
	}
	if cfg.Recognition.MatchThreshold != 0.6 {
		t.Errorf("Recognition.MatchThreshold = %v, want 0.6 from env", cfg.Recognition.MatchThreshold)
	}
	if cfg.Engine.Provider != "dlib" {
		t.Errorf("Engine.Provider = %s, want dlib", cfg.Engine.Provider)
	}
	if cfg.Camera.Source != "webcam" || cfg.Camera.Device != "/dev/video2" {
		t.Errorf("Camera = %+v, want webcam on /dev/video2", cfg.Camera)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown camera source", "camera:\n  source: ipcam\n"},
		{"zero required frames", "recognition:\n  required_frames: 0\n"},
		{"negative threshold", "recognition:\n  match_threshold: -1\n"},
		{"jpeg quality out of range", "registration:\n  jpeg_quality: 150\n"},
		{"frigate without camera", "camera:\n  source: frigate\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, path := writeConfig(t, tt.body)
			t.Setenv("SMART_GUARD_SERVER_DATA_DIR", dir)
			t.Setenv("SMART_GUARD_SERVER_REGISTERED_DIR", filepath.Join(dir, "registered"))
			t.Setenv("SMART_GUARD_LOG_FILE", filepath.Join(dir, "test.log"))
			t.Setenv("SMART_GUARD_DB_FILE", filepath.Join(dir, "test.db"))

			if _, err := Load(path); err == nil {
				t.Error("Load() expected error, got nil")
			}
		})
	}
}

func TestSecurityWarnings(t *testing.T) {
	cfg := &Config{}
	cfg.Server.SessionSecret = DefaultSessionSecret
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Auth = AuthConfig{Enabled: true, Username: "admin", Password: "1234"}
	if got := cfg.SecurityWarnings(); len(got) != 3 {
		t.Errorf("SecurityWarnings() = %v, want 3 warnings for demo defaults", got)
	}

	cfg.Server.SessionSecret = "a-long-random-secret"
	cfg.Server.CORSOrigins = []string{"https://guard.example"}
	cfg.Auth.PasswordHash = "$2a$10$abcdefghijklmnopqrstuv"
	if got := cfg.SecurityWarnings(); len(got) != 0 {
		t.Errorf("SecurityWarnings() = %v, want none", got)
	}
}
