package main

import (
	"context"
	"fmt"
	"os"

	"smart-guard-go/config"
	"smart-guard-go/internal/db"
	"smart-guard-go/internal/db/repository"
	"smart-guard-go/internal/integrations/facerecognition"
	"smart-guard-go/internal/integrations/provider"
	"smart-guard-go/internal/logger"
	"smart-guard-go/internal/store"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Register and inspect faces for the smart guard",
	Long: `enroll registers faces with a local camera, using the same store,
index and face engine as the smart guard server. Faces registered here are
picked up by the server on its next reload.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/config/config.yaml", "Path to the configuration file")
}

func initEnv() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// environment holds what every subcommand needs
type environment struct {
	cfg     *config.Config
	store   *store.FileStore
	manager *facerecognition.ProviderManager
	cleanup func()
}

func loadEnvironment() (*environment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	// Nur Warnungen, die Konsole gehört dem Fortschrittsbalken
	cfg.Log.Level = "warn"
	logCloser, err := logger.Init(cfg.Log)
	if err != nil {
		return nil, err
	}

	conn, err := db.Open(cfg.DB.File)
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	faceStore, err := store.NewFileStore(cfg.Server.RegisteredDir,
		store.WithIndex(repository.NewFaceRepository(conn)),
		store.WithJPEGQuality(cfg.Registration.JPEGQuality),
	)
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	manager, err := provider.CreateManager(cfg)
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	return &environment{
		cfg:     cfg,
		store:   faceStore,
		manager: manager,
		cleanup: func() {
			manager.Close()
			if sqlDB, err := conn.DB(); err == nil {
				sqlDB.Close()
			}
			logCloser.Close()
		},
	}, nil
}

// loadEngine loads the models of the configured engine
func (e *environment) loadEngine(ctx context.Context) (facerecognition.Engine, error) {
	engine, ok := e.manager.Active()
	if !ok {
		return nil, fmt.Errorf("no active face engine")
	}
	fmt.Printf("Loading %s models...\n", engine.Name())
	if err := engine.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load %s models: %w", engine.Name(), err)
	}
	return engine, nil
}
