package recognition

import (
	"sync"
)

// State zählt aufeinanderfolgende Bilder, in denen jedes Gesicht erkannt wurde
type State struct {
	mu         sync.Mutex
	status     Status
	counter    int
	required   int
	generation uint64
}

// NewState erstellt einen State, der nach required Bildern autorisiert
func NewState(required int) *State {
	if required < 1 {
		required = 1
	}
	return &State{
		status:   StatusInitializing,
		required: required,
	}
}

// Observe wertet ein Bild aus. faces ist die Anzahl erkannter Gesichter,
// unknown gibt an, ob mindestens eines davon keiner Person zugeordnet wurde.
// Ergebnisse einer veralteten Generation werden ignoriert.
func (s *State) Observe(generation uint64, faces int, unknown bool) (Status, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return s.status, s.counter, false
	}

	switch {
	case faces == 0:
		s.counter = 0
		s.status = StatusNoFaceDetected
	case unknown:
		s.counter = 0
		s.status = StatusUnknownDetected
	default:
		s.counter++
		if s.counter >= s.required {
			s.status = StatusAuthorized
		}
	}
	return s.status, s.counter, true
}

// Reset setzt den Zähler zurück, setzt den Status und beginnt eine neue Generation
func (s *State) Reset(status Status) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter = 0
	s.status = status
	s.generation++
	return s.generation
}

// Current gibt Status und Zähler zurück
func (s *State) Current() (Status, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.counter
}

// Required gibt die Anzahl benötigter Bilder zurück
func (s *State) Required() int {
	return s.required
}
