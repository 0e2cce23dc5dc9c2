package homeassistant

import (
	"sync"
	"time"

	"smart-guard-go/internal/integrations/mqtt"
	"smart-guard-go/internal/recognition"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{"component": "homeassistant"}

const (
	topicStatus     = "status"
	topicAuthorized = "authorized"

	payloadOn  = "ON"
	payloadOff = "OFF"
)

// StatusMessage ist der JSON-Inhalt von "<prefix>/status"
type StatusMessage struct {
	Status           recognition.Status `json:"status"`
	Authorized       bool               `json:"authorized"`
	AuthorizedFrames int                `json:"authorized_frames"`
	FacesDetected    int                `json:"faces_detected"`
	Labels           []string           `json:"labels"`
	Timestamp        time.Time          `json:"timestamp"`
}

// Publisher veröffentlicht Statuswechsel der Erkennung via MQTT.
// Gesendet wird nur, wenn sich Status oder erkannte Personen ändern.
type Publisher struct {
	publisher mqtt.Publisher

	mu         sync.Mutex
	last       *StatusMessage
	authorized *bool
}

// NewPublisher erstellt einen neuen Publisher
func NewPublisher(publisher mqtt.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

// HandleSnapshot ist ein recognition.Listener. Schlägt das Senden fehl,
// wird es beim nächsten Snapshot erneut versucht.
func (p *Publisher) HandleSnapshot(s recognition.Snapshot) {
	msg := StatusMessage{
		Status:           s.Status,
		Authorized:       s.Authorized(),
		AuthorizedFrames: s.AuthorizedFrames,
		FacesDetected:    s.FacesDetected,
		Labels:           labelsOf(s.Results),
		Timestamp:        s.UpdatedAt,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last == nil || !sameMessage(*p.last, msg) {
		if err := p.publisher.Publish(p.publisher.Topic(topicStatus), msg, true); err != nil {
			log.WithFields(logFields).WithError(err).Debug("Failed to publish status")
		} else {
			p.last = &msg
		}
	}

	if p.authorized == nil || *p.authorized != msg.Authorized {
		payload := payloadOff
		if msg.Authorized {
			payload = payloadOn
		}
		if err := p.publisher.Publish(p.publisher.Topic(topicAuthorized), payload, true); err != nil {
			log.WithFields(logFields).WithError(err).Debug("Failed to publish authorized state")
		} else {
			authorized := msg.Authorized
			p.authorized = &authorized
		}
	}
}

func labelsOf(results []recognition.FaceResult) []string {
	labels := make([]string, 0, len(results))
	for _, r := range results {
		labels = append(labels, r.Label)
	}
	return labels
}

// Der Zähler zählt nicht als Änderung, sonst ginge jedes Bild hinaus
func sameMessage(a, b StatusMessage) bool {
	if a.Status != b.Status || a.FacesDetected != b.FacesDetected || len(a.Labels) != len(b.Labels) {
		return false
	}
	for i := range a.Labels {
		if a.Labels[i] != b.Labels[i] {
			return false
		}
	}
	return true
}
