package processor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"smart-guard-go/config"
	"smart-guard-go/internal/capture"
	"smart-guard-go/internal/integrations/facerecognition"
	"smart-guard-go/internal/recognition"
	"smart-guard-go/internal/registration"
	"smart-guard-go/internal/store"
)

// colorEngine meldet ein Gesicht, dessen Deskriptor die Farbe des ersten Pixels ist.
// Schwarze Bilder enthalten kein Gesicht.
type colorEngine struct {
	loadErr error
	mu      sync.Mutex
	loads   int
	detects int
}

func (e *colorEngine) Name() facerecognition.ProviderType { return "color" }
func (e *colorEngine) Close() error                       { return nil }
func (e *colorEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loads++
	return e.loadErr
}
func (e *colorEngine) Detect(ctx context.Context, img image.Image) ([]facerecognition.Face, error) {
	e.mu.Lock()
	e.detects++
	e.mu.Unlock()

	b := img.Bounds()
	r, g, _, _ := img.At(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2).RGBA()
	if r>>8 < 10 && g>>8 < 10 {
		return nil, nil
	}
	return []facerecognition.Face{{
		Box:        b,
		Score:      0.9,
		Descriptor: []float32{float32(r>>8) / 255, float32(g>>8) / 255},
	}}, nil
}

func solid(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func jpegOf(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

var (
	aliceColor = color.RGBA{R: 230, G: 20, B: 20, A: 255}
	bobColor   = color.RGBA{R: 20, G: 230, B: 20, A: 255}
)

func newTestGuard(t *testing.T, engine facerecognition.Engine) (*Guard, *store.FileStore, *capture.Buffer) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	buf := capture.NewBuffer()
	g := NewGuard(engine, st, buf, Options{
		MinConfidence:  0.4,
		MatchThreshold: 0.5,
		RequiredFrames: 3,
		RetryDelay:     time.Millisecond,
		Registration:   registration.Config{MinConfidence: 0.4, RetryDelay: time.Millisecond},
	})
	return g, st, buf
}

func TestGuard_InitWithoutFaces(t *testing.T) {
	g, _, _ := newTestGuard(t, &colorEngine{})
	if err := g.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if got := g.Snapshot().Status; got != recognition.StatusNoRegisteredFaces {
		t.Errorf("status = %s, want %s", got, recognition.StatusNoRegisteredFaces)
	}
}

func TestGuard_ModelLoadFailureAndManualRetry(t *testing.T) {
	engine := &colorEngine{loadErr: errors.New("missing weights")}
	g, _, _ := newTestGuard(t, engine)

	if err := g.Init(context.Background()); !errors.Is(err, ErrModelLoad) {
		t.Fatalf("Init() error = %v, want ErrModelLoad", err)
	}
	if got := g.Snapshot().Status; got != recognition.StatusModelLoadFailed {
		t.Errorf("status = %s, want %s", got, recognition.StatusModelLoadFailed)
	}

	engine.mu.Lock()
	engine.loadErr = nil
	engine.mu.Unlock()

	if err := g.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if engine.loads != 2 {
		t.Errorf("engine loaded %d times, want 2", engine.loads)
	}
	if got := g.Snapshot().Status; got != recognition.StatusNoRegisteredFaces {
		t.Errorf("status = %s, want %s", got, recognition.StatusNoRegisteredFaces)
	}
}

// unreadableStore simuliert ein nicht lesbares Registrierungsverzeichnis
type unreadableStore struct{}

func (unreadableStore) Put(ctx context.Context, label string, index int, data []byte, opts ...store.PutOption) error {
	return errors.New("read-only")
}

func (unreadableStore) ListAll(ctx context.Context) ([]store.Entry, error) {
	return nil, errors.New("permission denied")
}

func TestGuard_FaceLoadFailureStopsRecognition(t *testing.T) {
	engine := &colorEngine{}
	buf := capture.NewBuffer()
	g := NewGuard(engine, unreadableStore{}, buf, Options{
		MinConfidence:  0.4,
		MatchThreshold: 0.5,
		RequiredFrames: 3,
		RetryDelay:     time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := g.Init(ctx); !errors.Is(err, ErrFaceLoad) {
		t.Fatalf("Init() error = %v, want ErrFaceLoad", err)
	}
	if got := g.Snapshot().Status; got != recognition.StatusFaceLoadFailed {
		t.Fatalf("status = %s, want %s", got, recognition.StatusFaceLoadFailed)
	}

	g.Start(ctx)
	buf.Push(solid(aliceColor))
	time.Sleep(50 * time.Millisecond)

	engine.mu.Lock()
	detects := engine.detects
	engine.mu.Unlock()
	if detects != 0 {
		t.Errorf("engine evaluated %d frames after face loading failed, want 0", detects)
	}
	if got := g.Snapshot().Status; got != recognition.StatusFaceLoadFailed {
		t.Errorf("status after frame = %s, want %s", got, recognition.StatusFaceLoadFailed)
	}
	if labels := g.Labels(); len(labels) != 0 {
		t.Errorf("Labels() = %v, want none", labels)
	}

	cancel()
	g.Wait()
}

func TestGuard_NoValidFaceData(t *testing.T) {
	g, st, _ := newTestGuard(t, &colorEngine{})
	ctx := context.Background()
	if err := st.Put(ctx, "ghost", 1, jpegOf(t, solid(color.RGBA{A: 255}))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := g.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if got := g.Snapshot().Status; got != recognition.StatusNoValidFaceData {
		t.Errorf("status = %s, want %s", got, recognition.StatusNoValidFaceData)
	}
}

func TestGuard_AuthorizesAfterThreeFrames(t *testing.T) {
	g, st, buf := newTestGuard(t, &colorEngine{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 1; i <= 3; i++ {
		if err := st.Put(ctx, "alice", i, jpegOf(t, solid(aliceColor))); err != nil {
			t.Fatalf("Put(alice) error = %v", err)
		}
		if err := st.Put(ctx, "bob", i, jpegOf(t, solid(bobColor))); err != nil {
			t.Fatalf("Put(bob) error = %v", err)
		}
	}
	if err := g.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if got := g.Snapshot().Status; got != recognition.StatusReady {
		t.Fatalf("status = %s, want ready", got)
	}
	if labels := g.Labels(); len(labels) != 2 {
		t.Errorf("Labels() = %v, want alice and bob", labels)
	}

	statuses := make(chan recognition.Snapshot, 16)
	g.OnStatus(func(s recognition.Snapshot) { statuses <- s })
	g.Start(ctx)

	for i := 0; i < 3; i++ {
		buf.Push(solid(aliceColor))
		select {
		case s := <-statuses:
			if s.AuthorizedFrames != i+1 {
				t.Fatalf("frame %d: counter = %d", i, s.AuthorizedFrames)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d not evaluated", i)
		}
	}
	if got := g.Snapshot().Status; got != recognition.StatusAuthorized {
		t.Errorf("status = %s, want authorized", got)
	}

	buf.Push(solid(color.RGBA{R: 120, G: 120, B: 255, A: 255}))
	select {
	case s := <-statuses:
		if s.Status != recognition.StatusUnknownDetected || s.AuthorizedFrames != 0 {
			t.Errorf("after stranger: %s/%d, want unknown_detected/0", s.Status, s.AuthorizedFrames)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stranger frame not evaluated")
	}

	cancel()
	g.Wait()
}

func TestGuard_RegisterCapturesAndReloads(t *testing.T) {
	g, st, buf := newTestGuard(t, &colorEngine{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := g.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if _, err := g.Register("carol"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Register() before Start error = %v, want ErrNotStarted", err)
	}

	g.Start(ctx)

	done := make(chan RegistrationJob, 1)
	g.OnRegistration(func(j RegistrationJob) {
		if j.State != JobRunning {
			done <- j
		}
	})

	job, err := g.Register("carol")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if job.ID == "" || job.State != JobRunning {
		t.Errorf("job = %+v, want running with id", job)
	}
	if _, err := g.Register("dave"); !errors.Is(err, ErrRegistrationBusy) {
		t.Errorf("second Register() error = %v, want ErrRegistrationBusy", err)
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				buf.Push(solid(aliceColor))
			}
		}
	}()

	var final RegistrationJob
	select {
	case final = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("registration did not finish")
	}
	close(stop)

	if final.State != JobCompleted || final.Captured != 3 {
		t.Fatalf("final job = %+v, want completed with 3 captures", final)
	}

	names, err := st.Filenames(ctx)
	if err != nil {
		t.Fatalf("Filenames() error = %v", err)
	}
	if len(names) != 3 {
		t.Errorf("stored %v, want carol_1..3", names)
	}
	if labels := g.Labels(); len(labels) != 1 || labels[0] != "carol" {
		t.Errorf("Labels() after registration = %v, want [carol]", labels)
	}

	cancel()
	g.Wait()
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Engine:       config.EngineConfig{MinConfidence: 0.4},
		Recognition:  config.RecognitionConfig{MatchThreshold: 0.5, RequiredFrames: 3, RetryDelayMs: 30},
		Registration: config.RegistrationConfig{SettleSeconds: 2, TimeoutSeconds: 120, JPEGQuality: 92},
	}
	opts := OptionsFromConfig(cfg)
	if opts.RequiredFrames != 3 || opts.MatchThreshold != 0.5 || opts.MinConfidence != 0.4 {
		t.Errorf("recognition options = %+v", opts)
	}
	if opts.Registration.Settle != 2*time.Second || opts.RegistrationTimeout != 2*time.Minute {
		t.Errorf("registration timing = %v / %v", opts.Registration.Settle, opts.RegistrationTimeout)
	}
	if opts.RetryDelay != 30*time.Millisecond {
		t.Errorf("RetryDelay = %v", opts.RetryDelay)
	}
}
