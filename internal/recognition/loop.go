package recognition

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"smart-guard-go/internal/capture"
	"smart-guard-go/internal/integrations/facerecognition"
	"smart-guard-go/internal/matcher"
	"smart-guard-go/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "recognition",
}

// Box ist eine Gesichtsbox in Bildkoordinaten
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BoxFromRect wandelt ein image.Rectangle
func BoxFromRect(r image.Rectangle) Box {
	return Box{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Rect wandelt zurück in ein image.Rectangle
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// FaceResult ist das Abgleichsergebnis eines Gesichts
type FaceResult struct {
	Box      Box      `json:"box"`
	Label    string   `json:"label"`
	Distance *float64 `json:"distance,omitempty"`
	Score    float64  `json:"score"`
	Text     string   `json:"text"`
	Matched  bool     `json:"matched"`
}

// Snapshot ist der Zustand nach einem ausgewerteten Bild oder einem Statuswechsel
type Snapshot struct {
	Status           Status       `json:"status"`
	AuthorizedFrames int          `json:"authorized_frames"`
	RequiredFrames   int          `json:"required_frames"`
	FacesDetected    int          `json:"faces_detected"`
	Results          []FaceResult `json:"results"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Authorized gibt an, ob der Status Authorized ist
func (s Snapshot) Authorized() bool {
	return s.Status == StatusAuthorized
}

// SameState vergleicht Status, Zähler und erkannte Labels
func (s Snapshot) SameState(o Snapshot) bool {
	if s.Status != o.Status || s.AuthorizedFrames != o.AuthorizedFrames || s.FacesDetected != o.FacesDetected {
		return false
	}
	if len(s.Results) != len(o.Results) {
		return false
	}
	for i := range s.Results {
		if s.Results[i].Label != o.Results[i].Label {
			return false
		}
	}
	return true
}

// ErrNoMatcher wird zurückgegeben, wenn Step ohne geladenen Matcher aufgerufen wird
var ErrNoMatcher = errors.New("no matcher loaded")

// Listener wird nach jedem Snapshot aufgerufen, er darf nicht blockieren
type Listener func(Snapshot)

// Config enthält die Parameter der Schleife
type Config struct {
	MinConfidence  float64
	RequiredFrames int
	RetryDelay     time.Duration
}

// Loop holt fortlaufend Bilder, gleicht alle Gesichter ab und führt den Autorisierungszustand
type Loop struct {
	source capture.Source
	lease  *capture.Lease
	engine facerecognition.Engine
	cfg    Config

	state   *State
	bindMu  sync.Mutex
	current atomic.Pointer[binding]
	wake    chan struct{}

	mu        sync.RWMutex
	snapshot  Snapshot
	lastFrame image.Image
	listeners []Listener
}

// binding hält einen Matcher zusammen mit der Generation, ab der er gilt
type binding struct {
	matcher    *matcher.Matcher
	generation uint64
}

// NewLoop erstellt eine Erkennungsschleife
func NewLoop(source capture.Source, lease *capture.Lease, engine facerecognition.Engine, cfg Config) *Loop {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Millisecond
	}
	state := NewState(cfg.RequiredFrames)
	l := &Loop{
		source: source,
		lease:  lease,
		engine: engine,
		cfg:    cfg,
		state:  state,
		wake:   make(chan struct{}, 1),
	}
	l.snapshot = Snapshot{
		Status:         StatusInitializing,
		RequiredFrames: state.Required(),
		Results:        []FaceResult{},
		UpdatedAt:      timezone.Now(),
	}
	return l
}

// AddListener registriert einen Listener
func (l *Loop) AddListener(fn Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// SetMatcher tauscht den Matcher aus und setzt den Zähler zurück.
// nil hält die Auswertung an, status ist dann der angezeigte Zustand.
func (l *Loop) SetMatcher(m *matcher.Matcher, status Status) {
	l.bindMu.Lock()
	generation := l.state.Reset(status)
	l.current.Store(&binding{matcher: m, generation: generation})
	l.bindMu.Unlock()

	l.publish(Snapshot{
		Status:         status,
		RequiredFrames: l.state.Required(),
		Results:        []FaceResult{},
		UpdatedAt:      timezone.Now(),
	}, nil)

	if m != nil {
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
}

// Matcher gibt den aktuellen Matcher zurück
func (l *Loop) Matcher() *matcher.Matcher {
	if b := l.current.Load(); b != nil {
		return b.matcher
	}
	return nil
}

// Snapshot gibt den letzten Snapshot zurück
func (l *Loop) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// LastFrame gibt das zuletzt ausgewertete Bild samt Ergebnissen zurück
func (l *Loop) LastFrame() (image.Image, []FaceResult) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastFrame, l.snapshot.Results
}

// Run läuft, bis ctx beendet wird
func (l *Loop) Run(ctx context.Context) error {
	log.WithFields(logFields).Info("Recognition loop started")
	defer log.WithFields(logFields).Info("Recognition loop stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b := l.current.Load()
		if b == nil || b.matcher == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.wake:
			}
			continue
		}

		if err := l.lease.Acquire(ctx); err != nil {
			return err
		}
		err := l.step(ctx, b)
		l.lease.Release()

		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, capture.ErrNotReady) {
			log.WithFields(logFields).WithError(err).Warn("Frame evaluation failed")
		}
		if !sleep(ctx, l.cfg.RetryDelay) {
			return ctx.Err()
		}
	}
}

// Step wertet genau ein Bild mit dem aktuellen Matcher aus. Der Aufrufer hält die Kamera-Lease.
func (l *Loop) Step(ctx context.Context) error {
	b := l.current.Load()
	if b == nil || b.matcher == nil {
		return ErrNoMatcher
	}
	return l.step(ctx, b)
}

// step wertet mit dem Matcher aus b aus. Wurde der Matcher inzwischen getauscht,
// passt die Generation nicht mehr und das Ergebnis wird verworfen.
func (l *Loop) step(ctx context.Context, b *binding) error {
	frame, err := l.source.NextFrame(ctx)
	if err != nil {
		return err
	}

	faces, err := l.engine.Detect(ctx, frame)
	if err != nil {
		return err
	}
	faces = facerecognition.FilterConfident(faces, l.cfg.MinConfidence)

	results, unknown := Evaluate(b.matcher, faces)
	status, counter, current := l.state.Observe(b.generation, len(faces), unknown)
	if !current {
		log.WithFields(logFields).Debug("Matcher changed during evaluation, frame discarded")
		return nil
	}

	l.publish(Snapshot{
		Status:           status,
		AuthorizedFrames: counter,
		RequiredFrames:   l.state.Required(),
		FacesDetected:    len(faces),
		Results:          results,
		UpdatedAt:        timezone.Now(),
	}, frame)
	return nil
}

// Evaluate gleicht alle Gesichter ab und meldet, ob eines unbekannt ist
func Evaluate(m *matcher.Matcher, faces []facerecognition.Face) ([]FaceResult, bool) {
	results := make([]FaceResult, 0, len(faces))
	unknown := false
	for _, f := range faces {
		match := m.FindBestMatch(f.Descriptor)
		res := FaceResult{
			Box:     BoxFromRect(f.Box),
			Label:   match.Label,
			Score:   f.Score,
			Text:    match.String(),
			Matched: !match.IsUnknown(),
		}
		if d := match.Distance; d >= 0 && d < 1e9 {
			res.Distance = &d
		}
		if match.IsUnknown() {
			unknown = true
		}
		results = append(results, res)
	}
	return results, unknown
}

func (l *Loop) publish(s Snapshot, frame image.Image) {
	l.mu.Lock()
	l.snapshot = s
	if frame != nil {
		l.lastFrame = frame
	}
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
