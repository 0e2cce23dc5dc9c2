package compreface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"smart-guard-go/config"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "compreface",
}

// Client für die Detection-API von CompreFace
type Client struct {
	config     config.CompreFaceConfig
	httpClient *http.Client
}

// Box repräsentiert die Begrenzungsbox eines Gesichts
type Box struct {
	Probability float64 `json:"probability"`
	XMin        int     `json:"x_min"`
	YMin        int     `json:"y_min"`
	XMax        int     `json:"x_max"`
	YMax        int     `json:"y_max"`
}

// DetectionResult ist ein Gesicht samt Embedding des calculator-Plugins
type DetectionResult struct {
	Box       Box       `json:"box"`
	Embedding []float32 `json:"embedding"`
}

// DetectionResponse repräsentiert die Antwort von /api/v1/detection/detect
type DetectionResponse struct {
	Result []DetectionResult `json:"result"`
}

// apiError ist der Fehlerkörper der CompreFace-API
type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// codeNoFace meldet CompreFace, wenn im Bild kein Gesicht gefunden wurde
const codeNoFace = 28

// NewClient erstellt einen neuen CompreFace-Client
func NewClient(cfg config.CompreFaceConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Detect sendet ein Bild an den Detection-Dienst und fordert Embeddings an.
// Ein Bild ohne Gesicht liefert ein leeres Ergebnis, keinen Fehler.
func (c *Client) Detect(ctx context.Context, img image.Image) (*DetectionResponse, error) {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 92}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	apiURL, err := url.JoinPath(c.config.URL, "/api/v1/detection/detect")
	if err != nil {
		return nil, fmt.Errorf("failed to create API URL: %w", err)
	}
	query := url.Values{}
	query.Set("face_plugins", "calculator")
	query.Set("det_prob_threshold", fmt.Sprintf("%.2f", c.config.DetProbThreshold))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"?"+query.Encode(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("x-api-key", c.config.DetectionAPIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	log.WithFields(logFields).Debugf("CompreFace detection request took %s", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		if json.Unmarshal(bodyBytes, &apiErr) == nil && apiErr.Code == codeNoFace {
			return &DetectionResponse{}, nil
		}
		return nil, fmt.Errorf("CompreFace API returned error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result DetectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	log.WithFields(logFields).Debugf("CompreFace detected %d faces", len(result.Result))
	return &result, nil
}
