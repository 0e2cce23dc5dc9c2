package capture

import (
	"context"
	"image"
	"sync"
	"time"
)

// Buffer hält das zuletzt empfangene Bild, z.B. vom Browser per POST /api/frames geschickt.
// Jedes Bild wird über NextFrame höchstens einmal geliefert.
type Buffer struct {
	mu       sync.Mutex
	frame    image.Image
	seq      uint64
	served   uint64
	received time.Time
}

// NewBuffer erstellt einen leeren Buffer
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Push ersetzt das aktuelle Bild
func (b *Buffer) Push(img image.Image) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frame = img
	b.seq++
	b.received = time.Now()
}

// NextFrame liefert das neueste Bild, sofern es noch nicht geliefert wurde
func (b *Buffer) NextFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame == nil || b.seq == b.served {
		return nil, ErrNotReady
	}
	b.served = b.seq
	return b.frame, nil
}

// Latest gibt das zuletzt empfangene Bild zurück, unabhängig davon, ob es schon geliefert wurde
func (b *Buffer) Latest() (image.Image, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frame, b.received
}
