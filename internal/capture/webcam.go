package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/blackjack/webcam"
	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "capture",
}

const (
	pixFmtMJPEG webcam.PixelFormat = 0x47504A4D // 'MJPG'
	pixFmtYUYV  webcam.PixelFormat = 0x56595559 // 'YUYV'

	frameTimeout = 5 // Sekunden
)

// Webcam liest Bilder von einem V4L2-Gerät und stellt das neueste über einen Buffer bereit
type Webcam struct {
	*Buffer

	device string
	width  uint32
	height uint32

	mu     sync.Mutex
	cam    *webcam.Webcam
	format webcam.PixelFormat
	done   chan struct{}
	err    error
}

// NewWebcam erstellt eine Webcam-Quelle für das angegebene Gerät
func NewWebcam(device string, width, height int) *Webcam {
	return &Webcam{
		Buffer: NewBuffer(),
		device: device,
		width:  uint32(width),
		height: uint32(height),
	}
}

// Start öffnet das Gerät und startet das Streaming im Hintergrund
func (w *Webcam) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cam != nil {
		return nil
	}

	cam, err := webcam.Open(w.device)
	if err != nil {
		return fmt.Errorf("can not open device %s: %w", w.device, err)
	}

	format, err := chooseFormat(cam)
	if err != nil {
		cam.Close()
		return err
	}

	f, width, height, err := cam.SetImageFormat(format, w.width, w.height)
	if err != nil {
		cam.Close()
		return fmt.Errorf("can not set image format: %w", err)
	}
	w.format, w.width, w.height = f, width, height

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return fmt.Errorf("can not start streaming: %w", err)
	}

	log.WithFields(logFields).Infof("Streaming %s at %dx%d (%s)", w.device, width, height, formatName(f))

	w.cam = cam
	w.done = make(chan struct{})
	go w.run(ctx, cam, w.done)
	return nil
}

// Err gibt den Fehler zurück, mit dem das Streaming beendet wurde
func (w *Webcam) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close beendet das Streaming und schließt das Gerät
func (w *Webcam) Close() error {
	w.mu.Lock()
	cam, done := w.cam, w.done
	w.cam = nil
	w.mu.Unlock()

	if cam == nil {
		return nil
	}
	cam.StopStreaming()
	<-done
	return cam.Close()
}

func (w *Webcam) run(ctx context.Context, cam *webcam.Webcam, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		err := cam.WaitForFrame(frameTimeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			log.WithFields(logFields).Debug("Timeout waiting for frame")
			continue
		default:
			w.fail(fmt.Errorf("frame wait failed: %w", err))
			return
		}

		raw, err := cam.ReadFrame()
		if err != nil {
			w.fail(fmt.Errorf("read frame failed: %w", err))
			return
		}
		if len(raw) == 0 {
			continue
		}

		img, err := w.decode(raw)
		if err != nil {
			log.WithFields(logFields).WithError(err).Debug("Dropping undecodable frame")
			continue
		}
		w.Push(img)
	}
}

func (w *Webcam) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cam == nil {
		// Close hat das Streaming beendet
		return
	}
	w.err = err
	log.WithFields(logFields).WithError(err).Error("Webcam streaming stopped")
}

func (w *Webcam) decode(raw []byte) (image.Image, error) {
	switch w.format {
	case pixFmtMJPEG:
		return jpeg.Decode(bytes.NewReader(raw))
	case pixFmtYUYV:
		return decodeYUYV(raw, int(w.width), int(w.height))
	default:
		return nil, fmt.Errorf("unsupported pixel format %s", formatName(w.format))
	}
}

func chooseFormat(cam *webcam.Webcam) (webcam.PixelFormat, error) {
	formats := cam.GetSupportedFormats()
	for _, f := range []webcam.PixelFormat{pixFmtMJPEG, pixFmtYUYV} {
		if _, ok := formats[f]; ok {
			return f, nil
		}
	}
	return 0, errors.New("camera supports neither MJPEG nor YUYV")
}

func formatName(f webcam.PixelFormat) string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

// decodeYUYV wandelt ein gepacktes YUYV-Bild (4:2:2) in ein image.YCbCr
func decodeYUYV(raw []byte, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("invalid YUYV frame size %dx%d", width, height)
	}
	if len(raw) < width*height*2 {
		return nil, fmt.Errorf("short YUYV frame: %d bytes for %dx%d", len(raw), width, height)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := raw[y*width*2 : (y+1)*width*2]
		for x := 0; x < width; x += 2 {
			i := x * 2
			img.Y[y*img.YStride+x] = row[i]
			img.Y[y*img.YStride+x+1] = row[i+2]
			ci := y*img.CStride + x/2
			img.Cb[ci] = row[i+1]
			img.Cr[ci] = row[i+3]
		}
	}
	return img, nil
}

// WaitReady wartet, bis die Kamera ein erstes Bild geliefert hat
func (w *Webcam) WaitReady(ctx context.Context, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if img, _ := w.Latest(); img != nil {
			return nil
		}
		if err := w.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
