// Package capture liefert Kamerabilder an Erkennungsschleife und Registrierung.
package capture

import (
	"context"
	"errors"
	"image"
)

// ErrNotReady bedeutet, dass (noch) kein neues Bild vorliegt. Aufrufer warten kurz und versuchen es erneut.
var ErrNotReady = errors.New("camera frame not ready")

// Source ist eine Bildquelle
type Source interface {
	// NextFrame liefert das nächste noch nicht gelieferte Bild oder ErrNotReady
	NextFrame(ctx context.Context) (image.Image, error)
}

// Lease regelt den exklusiven Zugriff auf die Kamera. Die Erkennungsschleife hält sie pro Bild,
// die Registrierung für den gesamten Ablauf.
type Lease struct {
	slot chan struct{}
}

// NewLease erstellt eine freie Lease
func NewLease() *Lease {
	l := &Lease{slot: make(chan struct{}, 1)}
	l.slot <- struct{}{}
	return l
}

// Acquire wartet, bis die Kamera frei ist
func (l *Lease) Acquire(ctx context.Context) error {
	select {
	case <-l.slot:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire übernimmt die Kamera nur, wenn sie sofort frei ist
func (l *Lease) TryAcquire() bool {
	select {
	case <-l.slot:
		return true
	default:
		return false
	}
}

// Release gibt die Kamera wieder frei
func (l *Lease) Release() {
	select {
	case l.slot <- struct{}{}:
	default:
		panic("capture: Release without Acquire")
	}
}
