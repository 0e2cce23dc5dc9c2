// Package registration nimmt drei Aufnahmen einer Person aus unterschiedlichen Winkeln auf.
package registration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"smart-guard-go/internal/capture"
	"smart-guard-go/internal/integrations/facerecognition"
	"smart-guard-go/internal/store"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "registration",
}

// ErrTooManyAttempts wird zurückgegeben, wenn ein Schritt zu oft ohne Gesicht blieb
var ErrTooManyAttempts = errors.New("too many attempts without a detectable face")

// Step ist ein Aufnahmeschritt
type Step struct {
	Index int    `json:"index"`
	Angle string `json:"angle"`
}

// Steps sind die drei Kopfhaltungen in fester Reihenfolge
func Steps() []Step {
	steps := make([]Step, store.AngleCount)
	for i := range steps {
		steps[i] = Step{Index: i + 1, Angle: store.AngleName(i + 1)}
	}
	return steps
}

// Prompter zeigt dem Benutzer an, was zu tun ist
type Prompter interface {
	// Prompt fordert zur Kopfhaltung des Schritts auf
	Prompt(ctx context.Context, label string, step Step)
	// Retry meldet, dass im Schritt kein Gesicht gefunden wurde
	Retry(ctx context.Context, label string, step Step, attempt int)
	// Captured meldet einen gespeicherten Schritt
	Captured(ctx context.Context, label string, step Step)
	// Complete meldet das Ende der Registrierung
	Complete(ctx context.Context, label string)
}

// Config enthält die Parameter des Ablaufs
type Config struct {
	Settle        time.Duration
	MinConfidence float64
	MaxAttempts   int // 0 = unbegrenzt
	JPEGQuality   int
	RetryDelay    time.Duration
}

// Flow führt die Registrierung durch
type Flow struct {
	source   capture.Source
	engine   facerecognition.Engine
	store    store.Store
	prompter Prompter
	cfg      Config

	// OnComplete wird nach dem letzten Schritt aufgerufen, z.B. um den Matcher neu zu bauen
	OnComplete func(ctx context.Context, label string) error

	sleep func(ctx context.Context, d time.Duration) error
}

// NewFlow erstellt einen Registrierungsablauf
func NewFlow(source capture.Source, engine facerecognition.Engine, st store.Store, prompter Prompter, cfg Config) *Flow {
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 92
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Millisecond
	}
	return &Flow{
		source:   source,
		engine:   engine,
		store:    st,
		prompter: prompter,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// Run registriert label. Ein Schritt wird wiederholt, bis ein Gesicht gefunden wurde.
// Fehler der Engine (außer "kein Gesicht") und des Speichers brechen ab.
func (f *Flow) Run(ctx context.Context, label string) error {
	if err := store.ValidateLabel(label); err != nil {
		return err
	}

	for _, step := range Steps() {
		if err := f.captureStep(ctx, label, step); err != nil {
			return err
		}
	}

	f.prompter.Complete(ctx, label)
	log.WithFields(logFields).Infof("Registration of %s completed", label)

	if f.OnComplete != nil {
		if err := f.OnComplete(ctx, label); err != nil {
			return fmt.Errorf("post-registration hook failed: %w", err)
		}
	}
	return nil
}

func (f *Flow) captureStep(ctx context.Context, label string, step Step) error {
	fields := log.Fields{"component": "registration", "label": label, "angle": step.Angle}

	for attempt := 1; ; attempt++ {
		f.prompter.Prompt(ctx, label, step)
		if err := f.sleep(ctx, f.cfg.Settle); err != nil {
			return err
		}

		frame, err := f.nextFrame(ctx)
		if err != nil {
			return err
		}

		face, err := facerecognition.DetectSingle(ctx, f.engine, frame, f.cfg.MinConfidence)
		if errors.Is(err, facerecognition.ErrNoFace) {
			log.WithFields(fields).Infof("No face detected (attempt %d), retrying", attempt)
			if f.cfg.MaxAttempts > 0 && attempt >= f.cfg.MaxAttempts {
				return fmt.Errorf("%s step: %w", step.Angle, ErrTooManyAttempts)
			}
			f.prompter.Retry(ctx, label, step, attempt)
			continue
		}
		if err != nil {
			return fmt.Errorf("face detection failed: %w", err)
		}

		data, box, err := cropFace(frame, face.Box, f.cfg.JPEGQuality)
		if err != nil {
			return err
		}

		if err := f.store.Put(ctx, label, step.Index, data, store.WithCaptureBox(box)); err != nil {
			return fmt.Errorf("failed to store %s image: %w", step.Angle, err)
		}

		log.WithFields(fields).Infof("Captured %s", store.FileName(label, step.Index))
		f.prompter.Captured(ctx, label, step)
		return nil
	}
}

// nextFrame wartet auf ein Bild, solange die Quelle noch keines hat
func (f *Flow) nextFrame(ctx context.Context) (image.Image, error) {
	for {
		frame, err := f.source.NextFrame(ctx)
		if err == nil {
			return frame, nil
		}
		if !errors.Is(err, capture.ErrNotReady) {
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}
		if err := f.sleep(ctx, f.cfg.RetryDelay); err != nil {
			return nil, err
		}
	}
}

// cropFace schneidet die Gesichtsbox aus (auf das Bild begrenzt) und kodiert sie als JPEG
func cropFace(frame image.Image, box image.Rectangle, quality int) ([]byte, image.Rectangle, error) {
	clamped := box.Intersect(frame.Bounds())
	if clamped.Empty() {
		return nil, clamped, fmt.Errorf("face box %v outside of frame %v", box, frame.Bounds())
	}

	cropped := imaging.Crop(frame, clamped)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, cropped, &jpeg.Options{Quality: quality}); err != nil {
		return nil, clamped, fmt.Errorf("failed to encode face crop: %w", err)
	}
	return buf.Bytes(), clamped, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
