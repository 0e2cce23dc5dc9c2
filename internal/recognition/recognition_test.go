package recognition

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"smart-guard-go/internal/capture"
	"smart-guard-go/internal/integrations/facerecognition"
	"smart-guard-go/internal/matcher"
)

var (
	aliceDesc = []float32{0, 0}
	bobDesc   = []float32{1, 1}
	strangerD = []float32{5, 5}
)

// scriptedEngine liefert pro Aufruf die nächste Gesichtsliste
type scriptedEngine struct {
	mu     sync.Mutex
	frames [][]facerecognition.Face
	calls  int
}

func (e *scriptedEngine) Name() facerecognition.ProviderType { return "scripted" }
func (e *scriptedEngine) Load(ctx context.Context) error     { return nil }
func (e *scriptedEngine) Close() error                       { return nil }
func (e *scriptedEngine) Detect(ctx context.Context, img image.Image) ([]facerecognition.Face, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.calls >= len(e.frames) {
		return nil, nil
	}
	faces := e.frames[e.calls]
	e.calls++
	return faces, nil
}

// endlessSource liefert immer dasselbe Bild
type endlessSource struct{}

func (endlessSource) NextFrame(ctx context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}

func face(desc []float32) facerecognition.Face {
	return facerecognition.Face{Box: image.Rect(1, 1, 5, 5), Score: 0.9, Descriptor: desc}
}

func testMatcher(t *testing.T) *matcher.Matcher {
	t.Helper()
	m, err := matcher.New([]matcher.LabeledDescriptors{
		{Label: "alice", Descriptors: [][]float32{aliceDesc}},
		{Label: "bob", Descriptors: [][]float32{bobDesc}},
	}, 0.5)
	if err != nil {
		t.Fatalf("matcher.New() error = %v", err)
	}
	return m
}

func TestState_Observe(t *testing.T) {
	s := NewState(3)
	gen := s.Reset(StatusReady)

	steps := []struct {
		faces   int
		unknown bool
		status  Status
		counter int
	}{
		{1, false, StatusReady, 1},
		{2, false, StatusReady, 2},
		{1, false, StatusAuthorized, 3},
		{1, false, StatusAuthorized, 4},
		{0, false, StatusNoFaceDetected, 0},
		{1, false, StatusNoFaceDetected, 1},
		{2, true, StatusUnknownDetected, 0},
	}
	for i, st := range steps {
		status, counter, ok := s.Observe(gen, st.faces, st.unknown)
		if !ok {
			t.Fatalf("step %d: Observe() rejected current generation", i)
		}
		if status != st.status || counter != st.counter {
			t.Errorf("step %d: got %s/%d, want %s/%d", i, status, counter, st.status, st.counter)
		}
	}
}

func TestState_StaleGenerationIgnored(t *testing.T) {
	s := NewState(1)
	old := s.Reset(StatusReady)
	s.Reset(StatusReady)

	if _, counter, ok := s.Observe(old, 1, false); ok || counter != 0 {
		t.Errorf("Observe(stale) = counter %d ok %v, want ignored", counter, ok)
	}
}

func TestLoop_AliceBobScenario(t *testing.T) {
	engine := &scriptedEngine{frames: [][]facerecognition.Face{
		{face(aliceDesc)},
		{face(aliceDesc), face(bobDesc)},
		{face(bobDesc)},
		{face(aliceDesc), face(strangerD)},
	}}
	loop := NewLoop(endlessSource{}, capture.NewLease(), engine, Config{MinConfidence: 0.4, RequiredFrames: 3})
	m := testMatcher(t)
	loop.SetMatcher(m, StatusReady)

	ctx := context.Background()
	want := []struct {
		status  Status
		counter int
	}{
		{StatusReady, 1},
		{StatusReady, 2},
		{StatusAuthorized, 3},
		{StatusUnknownDetected, 0},
	}
	for i, w := range want {
		if err := loop.Step(ctx); err != nil {
			t.Fatalf("Step(%d) error = %v", i, err)
		}
		snap := loop.Snapshot()
		if snap.Status != w.status || snap.AuthorizedFrames != w.counter {
			t.Errorf("frame %d: got %s/%d, want %s/%d", i, snap.Status, snap.AuthorizedFrames, w.status, w.counter)
		}
	}

	last := loop.Snapshot()
	if len(last.Results) != 2 || !last.Results[0].Matched || last.Results[1].Matched {
		t.Errorf("results = %+v, want alice matched and one unknown", last.Results)
	}
	if last.Results[0].Text != "alice (0)" {
		t.Errorf("Text = %q, want \"alice (0)\"", last.Results[0].Text)
	}
}

func TestLoop_SetMatcherResetsCounter(t *testing.T) {
	engine := &scriptedEngine{frames: [][]facerecognition.Face{{face(aliceDesc)}, {face(aliceDesc)}}}
	loop := NewLoop(endlessSource{}, capture.NewLease(), engine, Config{RequiredFrames: 3})
	m := testMatcher(t)
	loop.SetMatcher(m, StatusReady)

	ctx := context.Background()
	if err := loop.Step(ctx); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	loop.SetMatcher(m, StatusReady)
	if got := loop.Snapshot().AuthorizedFrames; got != 0 {
		t.Fatalf("AuthorizedFrames after swap = %d, want 0", got)
	}
	if err := loop.Step(ctx); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if got := loop.Snapshot().AuthorizedFrames; got != 1 {
		t.Errorf("AuthorizedFrames = %d, want 1", got)
	}
}

type notReadySource struct {
	calls int
	mu    sync.Mutex
}

func (s *notReadySource) NextFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil, capture.ErrNotReady
}

func TestLoop_RunRetriesWhenNotReady(t *testing.T) {
	src := &notReadySource{}
	engine := &scriptedEngine{}
	loop := NewLoop(src, capture.NewLease(), engine, Config{RequiredFrames: 3, RetryDelay: 5 * time.Millisecond})
	loop.SetMatcher(testMatcher(t), StatusReady)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := loop.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want DeadlineExceeded", err)
	}

	src.mu.Lock()
	calls := src.calls
	src.mu.Unlock()
	if calls < 2 {
		t.Errorf("NextFrame called %d times, want retries", calls)
	}
	if engine.calls != 0 {
		t.Errorf("engine called %d times without a frame", engine.calls)
	}
	if got := loop.Snapshot().Status; got != StatusReady {
		t.Errorf("status = %s, want ready (not evaluated)", got)
	}
}

func TestLoop_ListenersReceiveSnapshots(t *testing.T) {
	engine := &scriptedEngine{frames: [][]facerecognition.Face{{}}}
	loop := NewLoop(endlessSource{}, capture.NewLease(), engine, Config{RequiredFrames: 3})

	var got []Status
	loop.AddListener(func(s Snapshot) { got = append(got, s.Status) })

	m := testMatcher(t)
	loop.SetMatcher(m, StatusReady)
	if err := loop.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(got) != 2 || got[0] != StatusReady || got[1] != StatusNoFaceDetected {
		t.Errorf("listener saw %v, want [ready no_face_detected]", got)
	}
}

// swappingSource tauscht beim Lesen des Bildes einmalig den Matcher aus
type swappingSource struct {
	swap func()
	once sync.Once
}

func (s *swappingSource) NextFrame(ctx context.Context) (image.Image, error) {
	s.once.Do(s.swap)
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}

func TestLoop_FrameFromReplacedMatcherDiscarded(t *testing.T) {
	engine := &scriptedEngine{frames: [][]facerecognition.Face{
		{face(aliceDesc)},
		{face(bobDesc)},
	}}
	src := &swappingSource{}
	loop := NewLoop(src, capture.NewLease(), engine, Config{RequiredFrames: 3})

	old := testMatcher(t)
	replacement, err := matcher.New([]matcher.LabeledDescriptors{
		{Label: "bob", Descriptors: [][]float32{bobDesc}},
	}, 0.5)
	if err != nil {
		t.Fatalf("matcher.New() error = %v", err)
	}
	src.swap = func() { loop.SetMatcher(replacement, StatusReady) }
	loop.SetMatcher(old, StatusReady)

	ctx := context.Background()
	if err := loop.Step(ctx); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if snap := loop.Snapshot(); snap.AuthorizedFrames != 0 || snap.FacesDetected != 0 {
		t.Fatalf("frame scored with replaced matcher was counted: %+v", snap)
	}
	if loop.Matcher() != replacement {
		t.Fatal("Matcher() did not return the replacement")
	}

	if err := loop.Step(ctx); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	snap := loop.Snapshot()
	if snap.AuthorizedFrames != 1 || len(snap.Results) != 1 || snap.Results[0].Label != "bob" {
		t.Errorf("snapshot after swap = %+v, want bob counted once", snap)
	}
}

func TestLoop_StepWithoutMatcher(t *testing.T) {
	loop := NewLoop(endlessSource{}, capture.NewLease(), &scriptedEngine{}, Config{RequiredFrames: 3})
	if err := loop.Step(context.Background()); !errors.Is(err, ErrNoMatcher) {
		t.Errorf("Step() error = %v, want ErrNoMatcher", err)
	}
	loop.SetMatcher(nil, StatusLoadingFaces)
	if err := loop.Step(context.Background()); !errors.Is(err, ErrNoMatcher) {
		t.Errorf("Step() after SetMatcher(nil) error = %v, want ErrNoMatcher", err)
	}
}
