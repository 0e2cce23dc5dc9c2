package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	DB           DBConfig           `mapstructure:"db"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Recognition  RecognitionConfig  `mapstructure:"recognition"`
	Registration RegistrationConfig `mapstructure:"registration"`
	Camera       CameraConfig       `mapstructure:"camera"`
	MQTT         MQTTConfig         `mapstructure:"mqtt"`
	Cleanup      CleanupConfig      `mapstructure:"cleanup"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host          string   `mapstructure:"host"`
	Port          int      `mapstructure:"port"`
	DataDir       string   `mapstructure:"data_dir"`
	RegisteredDir string   `mapstructure:"registered_dir"`
	RegisteredURL string   `mapstructure:"registered_url"`
	SessionSecret string   `mapstructure:"session_secret"`
	CORSOrigins   []string `mapstructure:"cors_origins"`
	Language      string   `mapstructure:"language"`
	Timezone      string   `mapstructure:"timezone"` // leer = TZ-Umgebungsvariable
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig enthält Datenbankeinstellungen
type DBConfig struct {
	File string `mapstructure:"file"` // SQLite-Datei des Registrierungsindex
}

// AuthConfig enthält die Zugangsdaten für das Login-Gate
type AuthConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password_hash"` // bcrypt, hat Vorrang vor Password
}

// EngineConfig wählt und konfiguriert die Gesichtserkennungs-Engine
type EngineConfig struct {
	Provider      string            `mapstructure:"provider"` // "insightface", "compreface", "dlib" oder "opencv"
	MinConfidence float64           `mapstructure:"min_confidence"`
	InsightFace   InsightFaceConfig `mapstructure:"insightface"`
	CompreFace    CompreFaceConfig  `mapstructure:"compreface"`
	Dlib          DlibConfig        `mapstructure:"dlib"`
	OpenCV        OpenCVConfig      `mapstructure:"opencv"`
}

// InsightFaceConfig enthält Einstellungen für den InsightFace-REST-Dienst
type InsightFaceConfig struct {
	URL     string `mapstructure:"url"`
	Timeout int    `mapstructure:"timeout"` // Sekunden
}

// CompreFaceConfig enthält Einstellungen für den Detection-Dienst von CompreFace
type CompreFaceConfig struct {
	URL              string  `mapstructure:"url"`
	DetectionAPIKey  string  `mapstructure:"detection_api_key"`
	DetProbThreshold float64 `mapstructure:"det_prob_threshold"`
	Timeout          int     `mapstructure:"timeout"` // Sekunden
}

// DlibConfig enthält Einstellungen für die dlib-Engine (go-face)
type DlibConfig struct {
	ModelsDir string `mapstructure:"models_dir"`
	UseCNN    bool   `mapstructure:"use_cnn"`
}

// OpenCVConfig enthält Einstellungen für die OpenCV-Engine
type OpenCVConfig struct {
	CascadeFile  string  `mapstructure:"cascade_file"`  // pigo-Kaskade
	ModelFile    string  `mapstructure:"model_file"`    // DNN-Encoder (z.B. nn4.small2.v1.t7)
	ConfigFile   string  `mapstructure:"config_file"`   // optional
	InputSize    int     `mapstructure:"input_size"`    // Kantenlänge der Netzeingabe
	ScaleFactor  float64 `mapstructure:"scale_factor"`  // Pixel-Skalierung für BlobFromImage
	SwapRB       bool    `mapstructure:"swap_rb"`
	MinFaceSize  int     `mapstructure:"min_face_size"`
	MaxFaceSize  int     `mapstructure:"max_face_size"`
	QualityScale float64 `mapstructure:"quality_scale"` // pigo-Qualität, die Konfidenz 1.0 entspricht
	UseGPU       bool    `mapstructure:"use_gpu"`
}

// RecognitionConfig enthält Parameter der Erkennungsschleife
type RecognitionConfig struct {
	MatchThreshold float64 `mapstructure:"match_threshold"`
	RequiredFrames int     `mapstructure:"required_frames"`
	RetryDelayMs   int     `mapstructure:"retry_delay_ms"`
}

// RegistrationConfig enthält Parameter des Registrierungsablaufs
type RegistrationConfig struct {
	SettleSeconds  float64 `mapstructure:"settle_seconds"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxAttempts    int     `mapstructure:"max_attempts"` // 0 = unbegrenzt
	JPEGQuality    int     `mapstructure:"jpeg_quality"`
}

// CameraConfig legt die Bildquelle fest
type CameraConfig struct {
	Source  string        `mapstructure:"source"` // "browser", "webcam" oder "frigate"
	Device  string        `mapstructure:"device"`
	Width   int           `mapstructure:"width"`
	Height  int           `mapstructure:"height"`
	Frigate FrigateConfig `mapstructure:"frigate"`
}

// FrigateConfig enthält die Einstellungen für Snapshots einer Frigate NVR-Kamera
type FrigateConfig struct {
	Host           string `mapstructure:"host"`   // z.B. http://frigate:5000
	Camera         string `mapstructure:"camera"` // Kameraname in Frigate
	PollIntervalMs int    `mapstructure:"poll_interval_ms"`
	Timeout        int    `mapstructure:"timeout"` // Sekunden
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// CleanupConfig steuert die Bereinigung von Upload-Resten und verwaisten Indexeinträgen
type CleanupConfig struct {
	IntervalMinutes   int `mapstructure:"interval_minutes"` // 0 = deaktiviert
	TempMaxAgeMinutes int `mapstructure:"temp_max_age_minutes"`
}

// DefaultSessionSecret ist der mitgelieferte Schlüssel für das Session-Cookie
const DefaultSessionSecret = "smart-guard-change-me"

// SecurityWarnings listet Einstellungen, die nur für Demos taugen
func (c *Config) SecurityWarnings() []string {
	var warnings []string
	if c.Server.SessionSecret == "" || c.Server.SessionSecret == DefaultSessionSecret {
		warnings = append(warnings, "server.session_secret is not set, session cookies are signed with the default key")
	}
	if c.Auth.Enabled && c.Auth.PasswordHash == "" && c.Auth.Password == "1234" {
		warnings = append(warnings, "auth uses the default demo password, set auth.password_hash")
	}
	if c.Auth.Enabled && (len(c.Server.CORSOrigins) == 0 || (len(c.Server.CORSOrigins) == 1 && c.Server.CORSOrigins[0] == "*")) {
		warnings = append(warnings, "server.cors_origins allows every origin with credentials")
	}
	return warnings
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.SetEnvPrefix("SMART_GUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "/data")
	v.SetDefault("server.registered_dir", "/data/registered")
	v.SetDefault("server.registered_url", "/registered")
	v.SetDefault("server.session_secret", DefaultSessionSecret)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.language", "en")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "/data/logs/smart-guard.log")

	v.SetDefault("db.file", "/data/smart-guard.db")

	// Demo-Zugangsdaten des Login-Formulars
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password", "1234")
	v.SetDefault("auth.password_hash", "")

	v.SetDefault("engine.provider", "insightface")
	v.SetDefault("engine.min_confidence", 0.4)
	v.SetDefault("engine.insightface.url", "http://localhost:18081")
	v.SetDefault("engine.insightface.timeout", 30)
	v.SetDefault("engine.compreface.url", "http://localhost:8000")
	v.SetDefault("engine.compreface.detection_api_key", "")
	v.SetDefault("engine.compreface.det_prob_threshold", 0.8)
	v.SetDefault("engine.compreface.timeout", 30)
	v.SetDefault("engine.dlib.models_dir", "/data/models")
	v.SetDefault("engine.dlib.use_cnn", false)
	v.SetDefault("engine.opencv.cascade_file", "/data/models/facefinder")
	v.SetDefault("engine.opencv.model_file", "/data/models/nn4.small2.v1.t7")
	v.SetDefault("engine.opencv.config_file", "")
	v.SetDefault("engine.opencv.input_size", 96)
	v.SetDefault("engine.opencv.scale_factor", 1.0/255.0)
	v.SetDefault("engine.opencv.swap_rb", true)
	v.SetDefault("engine.opencv.min_face_size", 80)
	v.SetDefault("engine.opencv.max_face_size", 1000)
	v.SetDefault("engine.opencv.quality_scale", 10.0)
	v.SetDefault("engine.opencv.use_gpu", false)

	v.SetDefault("recognition.match_threshold", 0.5)
	v.SetDefault("recognition.required_frames", 3)
	v.SetDefault("recognition.retry_delay_ms", 30)

	v.SetDefault("registration.settle_seconds", 2.0)
	v.SetDefault("registration.timeout_seconds", 120)
	v.SetDefault("registration.max_attempts", 0)
	v.SetDefault("registration.jpeg_quality", 92)

	v.SetDefault("camera.source", "browser")
	v.SetDefault("camera.device", "/dev/video0")
	v.SetDefault("camera.width", 1280)
	v.SetDefault("camera.height", 720)
	v.SetDefault("camera.frigate.host", "http://frigate:5000")
	v.SetDefault("camera.frigate.poll_interval_ms", 200)
	v.SetDefault("camera.frigate.timeout", 10)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "smart-guard")
	v.SetDefault("mqtt.topic_prefix", "smart-guard")

	v.SetDefault("cleanup.interval_minutes", 60)
	v.SetDefault("cleanup.temp_max_age_minutes", 10)
}

// validate prüft Werte, für die kein sinnvoller Betrieb möglich ist
func (c *Config) validate() error {
	switch c.Camera.Source {
	case "browser", "webcam":
	case "frigate":
		if c.Camera.Frigate.Camera == "" {
			return fmt.Errorf("camera.frigate.camera is required for source frigate")
		}
	default:
		return fmt.Errorf("unknown camera source %q", c.Camera.Source)
	}
	if c.Recognition.RequiredFrames < 1 {
		return fmt.Errorf("recognition.required_frames must be at least 1, got %d", c.Recognition.RequiredFrames)
	}
	if c.Recognition.MatchThreshold <= 0 {
		return fmt.Errorf("recognition.match_threshold must be positive, got %v", c.Recognition.MatchThreshold)
	}
	if c.Registration.JPEGQuality < 1 || c.Registration.JPEGQuality > 100 {
		return fmt.Errorf("registration.jpeg_quality must be within 1..100, got %d", c.Registration.JPEGQuality)
	}
	return nil
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.Server.RegisteredDir, 0755); err != nil {
		return fmt.Errorf("failed to create registered faces directory: %w", err)
	}

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	if cfg.DB.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.File), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
