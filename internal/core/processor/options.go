package processor

import (
	"time"

	"smart-guard-go/config"
	"smart-guard-go/internal/registration"
)

// OptionsFromConfig übernimmt die Parameter aus der Konfiguration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MinConfidence:  cfg.Engine.MinConfidence,
		MatchThreshold: cfg.Recognition.MatchThreshold,
		RequiredFrames: cfg.Recognition.RequiredFrames,
		RetryDelay:     time.Duration(cfg.Recognition.RetryDelayMs) * time.Millisecond,
		Registration: registration.Config{
			Settle:        time.Duration(cfg.Registration.SettleSeconds * float64(time.Second)),
			MinConfidence: cfg.Engine.MinConfidence,
			MaxAttempts:   cfg.Registration.MaxAttempts,
			JPEGQuality:   cfg.Registration.JPEGQuality,
			RetryDelay:    time.Duration(cfg.Recognition.RetryDelayMs) * time.Millisecond,
		},
		RegistrationTimeout: time.Duration(cfg.Registration.TimeoutSeconds) * time.Second,
	}
}
