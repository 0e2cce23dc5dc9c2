// Package processor koordiniert Modelle, Matcher, Erkennungsschleife und Registrierung.
package processor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"smart-guard-go/internal/capture"
	"smart-guard-go/internal/integrations/facerecognition"
	"smart-guard-go/internal/matcher"
	"smart-guard-go/internal/recognition"
	"smart-guard-go/internal/registration"
	"smart-guard-go/internal/store"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "guard",
}

var (
	// ErrModelLoad bedeutet, dass die Engine ihre Modelle nicht laden konnte
	ErrModelLoad = errors.New("model loading failed")
	// ErrFaceLoad bedeutet, dass die registrierten Bilder nicht gelesen werden konnten
	ErrFaceLoad = errors.New("face loading failed")
	// ErrRegistrationBusy wird zurückgegeben, wenn bereits eine Registrierung läuft
	ErrRegistrationBusy = errors.New("a registration is already running")
	// ErrNotStarted wird zurückgegeben, wenn Start noch nicht aufgerufen wurde
	ErrNotStarted = errors.New("guard not started")
)

// Options enthält die Parameter des Coordinators
type Options struct {
	MinConfidence       float64
	MatchThreshold      float64
	RequiredFrames      int
	RetryDelay          time.Duration
	Registration        registration.Config
	RegistrationTimeout time.Duration
}

// Guard verbindet Engine, Store, Matcher, Erkennungsschleife und Registrierung
type Guard struct {
	engine  facerecognition.Engine
	store   store.Store
	source  capture.Source
	lease   *capture.Lease
	builder *matcher.Builder
	loop    *recognition.Loop
	opts    Options

	jobs jobTracker

	reloadMu     sync.Mutex
	modelsLoaded bool
	lastStats    matcher.BuildStats

	runMu   sync.Mutex
	rootCtx context.Context
	wg      sync.WaitGroup
}

// NewGuard erstellt einen Coordinator
func NewGuard(engine facerecognition.Engine, st store.Store, source capture.Source, opts Options) *Guard {
	lease := capture.NewLease()
	return &Guard{
		engine:  engine,
		store:   st,
		source:  source,
		lease:   lease,
		builder: matcher.NewBuilder(engine, opts.MinConfidence, opts.MatchThreshold),
		loop: recognition.NewLoop(source, lease, engine, recognition.Config{
			MinConfidence:  opts.MinConfidence,
			RequiredFrames: opts.RequiredFrames,
			RetryDelay:     opts.RetryDelay,
		}),
		opts: opts,
	}
}

// OnStatus registriert einen Listener für Snapshots der Erkennung
func (g *Guard) OnStatus(fn recognition.Listener) {
	g.loop.AddListener(fn)
}

// OnRegistration registriert einen Listener für den Fortschritt der Registrierung
func (g *Guard) OnRegistration(fn RegistrationListener) {
	g.jobs.addListener(fn)
}

// Init lädt die Modelle und danach die registrierten Gesichter.
// Fehler hinterlassen einen Fehlerstatus, ein erneuter Versuch erfolgt nur über Reload.
func (g *Guard) Init(ctx context.Context) error {
	g.reloadMu.Lock()
	defer g.reloadMu.Unlock()

	if err := g.loadModels(ctx); err != nil {
		return err
	}
	return g.reload(ctx)
}

// Reload baut den Matcher aus dem Store neu auf. Fehlen die Modelle, werden sie zuerst geladen.
func (g *Guard) Reload(ctx context.Context) error {
	g.reloadMu.Lock()
	defer g.reloadMu.Unlock()

	if !g.modelsLoaded {
		if err := g.loadModels(ctx); err != nil {
			return err
		}
	}
	return g.reload(ctx)
}

func (g *Guard) loadModels(ctx context.Context) error {
	g.loop.SetMatcher(nil, recognition.StatusLoadingModels)
	log.WithFields(logFields).Infof("Loading models for engine %s", g.engine.Name())

	if err := g.engine.Load(ctx); err != nil {
		log.WithFields(logFields).WithError(err).Error("Model loading failed")
		g.loop.SetMatcher(nil, recognition.StatusModelLoadFailed)
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	g.modelsLoaded = true
	return nil
}

func (g *Guard) reload(ctx context.Context) error {
	g.loop.SetMatcher(nil, recognition.StatusLoadingFaces)

	entries, err := g.store.ListAll(ctx)
	if err != nil {
		log.WithFields(logFields).WithError(err).Error("Failed to read registered faces")
		g.loop.SetMatcher(nil, recognition.StatusFaceLoadFailed)
		return fmt.Errorf("%w: %v", ErrFaceLoad, err)
	}

	if len(entries) == 0 {
		log.WithFields(logFields).Info("No registered faces")
		g.lastStats = matcher.BuildStats{}
		g.loop.SetMatcher(nil, recognition.StatusNoRegisteredFaces)
		return nil
	}

	m, stats, err := g.builder.Build(ctx, entries)
	g.lastStats = stats
	if errors.Is(err, matcher.ErrNoUsableData) {
		log.WithFields(logFields).Warnf("None of %d registered images contains a usable face", len(entries))
		g.loop.SetMatcher(nil, recognition.StatusNoValidFaceData)
		return nil
	}
	if err != nil {
		g.loop.SetMatcher(nil, recognition.StatusFaceLoadFailed)
		return fmt.Errorf("%w: %v", ErrFaceLoad, err)
	}

	g.loop.SetMatcher(m, recognition.StatusReady)
	log.WithFields(logFields).Infof("System ready with %d registered people", len(m.Labels()))
	return nil
}

// BuildStats gibt die Zahlen des letzten Matcher-Builds zurück
func (g *Guard) BuildStats() matcher.BuildStats {
	g.reloadMu.Lock()
	defer g.reloadMu.Unlock()
	return g.lastStats
}

// Labels gibt die Personen des aktuellen Matchers zurück
func (g *Guard) Labels() []string {
	if m := g.loop.Matcher(); m != nil {
		return m.Labels()
	}
	return []string{}
}

// Start startet die Erkennungsschleife. Sie wartet, solange kein Matcher geladen ist.
func (g *Guard) Start(ctx context.Context) {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	if g.rootCtx != nil {
		return
	}
	g.rootCtx = ctx

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithFields(logFields).WithError(err).Error("Recognition loop ended")
		}
	}()
}

// Wait wartet auf alle Hintergrund-Goroutinen
func (g *Guard) Wait() {
	g.wg.Wait()
}

// Snapshot gibt den aktuellen Zustand zurück
func (g *Guard) Snapshot() recognition.Snapshot {
	return g.loop.Snapshot()
}

// LastFrame gibt das zuletzt ausgewertete Bild mit Ergebnissen zurück
func (g *Guard) LastFrame() (image.Image, []recognition.FaceResult) {
	return g.loop.LastFrame()
}

// Registration gibt die aktuelle bzw. letzte Registrierung zurück
func (g *Guard) Registration() (RegistrationJob, bool) {
	return g.jobs.current()
}

// Register startet eine Registrierung im Hintergrund. Die Erkennung pausiert währenddessen.
func (g *Guard) Register(label string) (RegistrationJob, error) {
	if err := store.ValidateLabel(label); err != nil {
		return RegistrationJob{}, err
	}

	g.runMu.Lock()
	root := g.rootCtx
	g.runMu.Unlock()
	if root == nil {
		return RegistrationJob{}, ErrNotStarted
	}

	g.reloadMu.Lock()
	loaded := g.modelsLoaded
	g.reloadMu.Unlock()
	if !loaded {
		return RegistrationJob{}, ErrModelLoad
	}

	job, ok := g.jobs.begin(uuid.NewString(), label)
	if !ok {
		return RegistrationJob{}, ErrRegistrationBusy
	}

	ctx := root
	var cancel context.CancelFunc = func() {}
	if g.opts.RegistrationTimeout > 0 {
		ctx, cancel = context.WithTimeout(root, g.opts.RegistrationTimeout)
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer cancel()
		err := g.runRegistration(ctx, label)
		final := g.jobs.finish(err)
		if err != nil {
			log.WithFields(logFields).WithError(err).Warnf("Registration %s for %s failed", final.ID, label)
		}
	}()

	return job, nil
}

// runRegistration hält die Kamera für den gesamten Ablauf
func (g *Guard) runRegistration(ctx context.Context, label string) error {
	if err := g.lease.Acquire(ctx); err != nil {
		return err
	}
	defer g.lease.Release()

	flow := registration.NewFlow(g.source, g.engine, g.store, &g.jobs, g.opts.Registration)
	flow.OnComplete = func(ctx context.Context, _ string) error {
		return g.Reload(ctx)
	}
	return flow.Run(ctx, label)
}

// Store gibt den Store zurück
func (g *Guard) Store() store.Store {
	return g.store
}
