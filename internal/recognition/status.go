// Package recognition wertet Kamerabilder fortlaufend gegen die registrierten Gesichter aus.
package recognition

// Status ist der sichtbare Zustand des Systems
type Status string

const (
	StatusInitializing      Status = "initializing"
	StatusLoadingModels     Status = "loading_models"
	StatusLoadingFaces      Status = "loading_faces"
	StatusNoRegisteredFaces Status = "no_registered_faces"
	StatusNoValidFaceData   Status = "no_valid_face_data"
	StatusReady             Status = "ready"
	StatusNoFaceDetected    Status = "no_face_detected"
	StatusUnknownDetected   Status = "unknown_detected"
	StatusAuthorized        Status = "authorized"
	StatusModelLoadFailed   Status = "model_load_failed"
	StatusFaceLoadFailed    Status = "face_load_failed"
)

// AllStatuses listet alle Zustände, z.B. für die Übersetzungen
var AllStatuses = []Status{
	StatusInitializing,
	StatusLoadingModels,
	StatusLoadingFaces,
	StatusNoRegisteredFaces,
	StatusNoValidFaceData,
	StatusReady,
	StatusNoFaceDetected,
	StatusUnknownDetected,
	StatusAuthorized,
	StatusModelLoadFailed,
	StatusFaceLoadFailed,
}

// MessageID ist der Schlüssel in den Übersetzungsdateien
func (s Status) MessageID() string {
	return "status." + string(s)
}

// Failed gibt an, ob die Initialisierung gescheitert ist
func (s Status) Failed() bool {
	return s == StatusModelLoadFailed || s == StatusFaceLoadFailed
}

// Evaluating gibt an, ob der Status aus der Bildauswertung stammt
func (s Status) Evaluating() bool {
	switch s {
	case StatusReady, StatusNoFaceDetected, StatusUnknownDetected, StatusAuthorized:
		return true
	}
	return false
}
