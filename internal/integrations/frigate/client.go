package frigate

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"smart-guard-go/config"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "frigate",
}

// maxSnapshotSize begrenzt die Größe eines einzelnen Snapshots
const maxSnapshotSize = 16 << 20

// FrameSink nimmt empfangene Bilder entgegen
type FrameSink interface {
	Push(img image.Image)
}

// FrigateClient lädt aktuelle Kamerabilder aus einer Frigate NVR-Instanz
type FrigateClient struct {
	config     config.FrigateConfig
	httpClient *http.Client
}

// NewFrigateClient erstellt einen neuen Frigate-Client
func NewFrigateClient(cfg config.FrigateConfig) *FrigateClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FrigateClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SnapshotURL liefert die URL des aktuellen Kamerabilds
func (c *FrigateClient) SnapshotURL() string {
	host := strings.TrimRight(c.config.Host, "/")
	return fmt.Sprintf("%s/api/%s/latest.jpg", host, url.PathEscape(c.config.Camera))
}

// LatestFrame lädt das aktuelle Kamerabild herunter
func (c *FrigateClient) LatestFrame(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SnapshotURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download snapshot, status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return img, nil
}

// Poll lädt im festen Intervall Snapshots und reicht sie an sink weiter, bis ctx endet.
// Fehler werden geloggt, der nächste Versuch folgt im nächsten Intervall.
func (c *FrigateClient) Poll(ctx context.Context, sink FrameSink) {
	interval := time.Duration(c.config.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.WithFields(logFields).Infof("Polling snapshots from %s every %v", c.SnapshotURL(), interval)

	failing := false
	for {
		img, err := c.LatestFrame(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			// nur den ersten Fehler einer Serie melden
			if !failing {
				log.WithFields(logFields).Warnf("Frigate snapshot failed: %v", err)
			}
			failing = true
		case err == nil:
			if failing {
				log.WithFields(logFields).Info("Frigate snapshots available again")
			}
			failing = false
			sink.Push(img)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
