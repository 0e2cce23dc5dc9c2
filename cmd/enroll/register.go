package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smart-guard-go/internal/capture"
	"smart-guard-go/internal/core/processor"
	"smart-guard-go/internal/registration"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <label>",
	Short: "Capture front, left and right images of a person",
	Long: `Capture three images of a person with the configured V4L2 camera.
For each head position the command waits for the person to settle and
retries until a face is detected.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("device", "", "Camera device (defaults to camera.device)")
	registerCmd.Flags().Duration("settle", 0, "Time to turn the head before each capture (defaults to registration.settle_seconds)")
	registerCmd.Flags().Int("max-attempts", -1, "Attempts per head position, 0 for unlimited (defaults to registration.max_attempts)")
}

func runRegister(cmd *cobra.Command, args []string) error {
	label := args[0]

	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := env.loadEngine(ctx)
	if err != nil {
		return err
	}

	device, _ := cmd.Flags().GetString("device")
	if device == "" {
		device = env.cfg.Camera.Device
	}
	cam := capture.NewWebcam(device, env.cfg.Camera.Width, env.cfg.Camera.Height)
	if err := cam.Start(ctx); err != nil {
		return fmt.Errorf("failed to open camera %s: %w", device, err)
	}
	defer cam.Close()

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = cam.WaitReady(waitCtx, 50*time.Millisecond)
	cancel()
	if err != nil {
		return fmt.Errorf("camera %s delivered no frame: %w", device, err)
	}

	flowCfg := processor.OptionsFromConfig(env.cfg).Registration
	if settle, _ := cmd.Flags().GetDuration("settle"); settle > 0 {
		flowCfg.Settle = settle
	}
	if attempts, _ := cmd.Flags().GetInt("max-attempts"); attempts >= 0 {
		flowCfg.MaxAttempts = attempts
	}

	prompter := newConsolePrompter(os.Stdout)
	flow := registration.NewFlow(cam, engine, env.store, prompter, flowCfg)

	fmt.Printf("Registering %q with %s\n", label, device)
	if err := flow.Run(ctx, label); err != nil {
		prompter.abort()
		return fmt.Errorf("registration failed: %w", err)
	}

	fmt.Println("Reload the server (POST /api/faces/reload) to recognize the new face.")
	return nil
}
