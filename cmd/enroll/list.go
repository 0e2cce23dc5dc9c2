package main

import (
	"fmt"

	"smart-guard-go/internal/store"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered images",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.cleanup()

	entries, err := env.store.ListAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read registered faces: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No Registered Faces")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%-32s %-20s %s\n", e.Filename, e.Label, store.AngleName(e.Index))
	}
	return nil
}
