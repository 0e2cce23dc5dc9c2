package main

import (
	"fmt"

	"smart-guard-go/internal/matcher"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Build the face matcher from the registered images and report the result",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.cleanup()

	ctx := cmd.Context()
	entries, err := env.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read registered faces: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No Registered Faces")
		return nil
	}

	engine, err := env.loadEngine(ctx)
	if err != nil {
		return err
	}

	builder := matcher.NewBuilder(engine, env.cfg.Engine.MinConfidence, env.cfg.Recognition.MatchThreshold)
	m, stats, err := builder.Build(ctx, entries)
	fmt.Printf("Images: %d, usable: %d, skipped: %d\n", stats.Entries, stats.Used, stats.Skipped)
	if err != nil {
		return err
	}

	for _, label := range m.Labels() {
		fmt.Printf("  - %s\n", label)
	}
	fmt.Println("System Ready")
	return nil
}
