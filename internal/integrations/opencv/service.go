package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"smart-guard-go/config"
	"smart-guard-go/internal/integrations/facerecognition"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

var logFields = log.Fields{
	"component": "opencv",
}

// Service implementiert facerecognition.Engine mit pigo-Detektion und einem OpenCV-DNN-Encoder
type Service struct {
	cfg config.OpenCVConfig

	mutex       sync.Mutex
	detector    *faceDetector
	encoder     gocv.Net
	initialized bool
}

// NewService erstellt einen neuen, noch nicht geladenen OpenCV-Service
func NewService(cfg config.OpenCVConfig) *Service {
	return &Service{cfg: cfg}
}

// Name gibt den Namen der Engine zurück
func (s *Service) Name() facerecognition.ProviderType {
	return facerecognition.ProviderOpenCV
}

// Load lädt die pigo-Kaskade und das Encoder-Netz
func (s *Service) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.initialized {
		return nil
	}

	detector, err := newFaceDetector(s.cfg.CascadeFile, s.cfg.MinFaceSize, s.cfg.MaxFaceSize, s.cfg.QualityScale)
	if err != nil {
		return err
	}

	log.WithFields(logFields).Infof("Loading face encoder %s", s.cfg.ModelFile)
	net := gocv.ReadNet(s.cfg.ModelFile, s.cfg.ConfigFile)
	if net.Empty() {
		return fmt.Errorf("failed to load face encoder model %s", s.cfg.ModelFile)
	}

	if s.cfg.UseGPU {
		if err := net.SetPreferableBackend(gocv.NetBackendCUDA); err != nil {
			log.WithFields(logFields).WithError(err).Warn("CUDA backend not available, staying on CPU")
		} else if err := net.SetPreferableTarget(gocv.NetTargetCUDA); err != nil {
			log.WithFields(logFields).WithError(err).Warn("CUDA target not available, staying on CPU")
		}
	}

	s.detector = detector
	s.encoder = net
	s.initialized = true
	return nil
}

// Detect findet Gesichter mit pigo und berechnet für jedes einen Deskriptor
func (s *Service) Detect(ctx context.Context, img image.Image) ([]facerecognition.Face, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.initialized {
		return nil, errors.New("opencv engine not loaded")
	}

	dets := s.detector.detect(img)
	if len(dets) == 0 {
		return nil, nil
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	offset := img.Bounds().Min
	faces := make([]facerecognition.Face, 0, len(dets))
	for _, det := range dets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		region := mat.Region(det.box.Sub(offset))
		descriptor, err := s.embed(region)
		region.Close()
		if err != nil {
			log.WithFields(logFields).WithError(err).Debugf("Skipping face at %v", det.box)
			continue
		}

		faces = append(faces, facerecognition.Face{
			Box:        det.box,
			Score:      det.score,
			Descriptor: descriptor,
		})
	}
	return faces, nil
}

// embed berechnet den L2-normierten Deskriptor eines Gesichtsausschnitts
func (s *Service) embed(face gocv.Mat) ([]float32, error) {
	if face.Empty() {
		return nil, errors.New("empty face region")
	}

	size := image.Pt(s.cfg.InputSize, s.cfg.InputSize)
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(face, &resized, size, 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, s.cfg.ScaleFactor, size, gocv.NewScalar(0, 0, 0, 0), s.cfg.SwapRB, false)
	defer blob.Close()

	s.encoder.SetInput(blob, "")
	output := s.encoder.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read encoder output: %w", err)
	}
	return normalize(data), nil
}

// normalize kopiert v und skaliert auf Länge 1
func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		if norm == 0 {
			out[i] = x
		} else {
			out[i] = float32(float64(x) / norm)
		}
	}
	return out
}

// Close gibt das Netz frei
func (s *Service) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.initialized {
		s.initialized = false
		return s.encoder.Close()
	}
	return nil
}
