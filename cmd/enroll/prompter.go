package main

import (
	"context"
	"fmt"
	"io"

	"smart-guard-go/internal/registration"
	"smart-guard-go/internal/store"

	"github.com/schollz/progressbar/v3"
)

// consolePrompter shows the registration steps as a progress bar
type consolePrompter struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func newConsolePrompter(out io.Writer) *consolePrompter {
	return &consolePrompter{
		out: out,
		bar: progressbar.NewOptions(store.AngleCount,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("Registering"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		),
	}
}

func (p *consolePrompter) Prompt(ctx context.Context, label string, step registration.Step) {
	p.bar.Describe(fmt.Sprintf("Turn head: %s", step.Angle))
}

func (p *consolePrompter) Retry(ctx context.Context, label string, step registration.Step, attempt int) {
	p.bar.Describe(fmt.Sprintf("No face detected. Turn head: %s (attempt %d)", step.Angle, attempt))
}

func (p *consolePrompter) Captured(ctx context.Context, label string, step registration.Step) {
	p.bar.Describe(fmt.Sprintf("Captured %s", step.Angle))
	_ = p.bar.Add(1)
}

func (p *consolePrompter) Complete(ctx context.Context, label string) {
	p.bar.Describe("Registration complete!")
	_ = p.bar.Finish()
	fmt.Fprintln(p.out)
}

func (p *consolePrompter) abort() {
	_ = p.bar.Exit()
	fmt.Fprintln(p.out)
}
