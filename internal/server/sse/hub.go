package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"smart-guard-go/internal/core/processor"
	"smart-guard-go/internal/recognition"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{"component": "sse"}

// Ereignisnamen
const (
	EventStatus       = "status"
	EventRegistration = "registration"
)

// Message ist ein einzelnes benanntes SSE-Ereignis
type Message struct {
	Event string
	Data  []byte
}

// Client repräsentiert einen einzelnen verbundenen SSE-Client
type Client chan Message

// Hub verwaltet die Menge der aktiven Clients und sendet Broadcasts an sie
type Hub struct {
	clients map[Client]bool

	broadcast  chan Message
	register   chan Client
	unregister chan Client
	done       chan struct{}

	mu sync.Mutex

	// letzter gesendeter Status, Zähler-Updates werden auf minInterval gedrosselt
	lastStatus  *recognition.Snapshot
	lastSent    time.Time
	minInterval time.Duration
}

// StatusData ist der Inhalt eines "status"-Ereignisses
type StatusData struct {
	Status           recognition.Status       `json:"status"`
	Authorized       bool                     `json:"authorized"`
	AuthorizedFrames int                      `json:"authorized_frames"`
	RequiredFrames   int                      `json:"required_frames"`
	FacesDetected    int                      `json:"faces_detected"`
	Results          []recognition.FaceResult `json:"results"`
	Timestamp        time.Time                `json:"timestamp"`
}

// NewHub erstellt eine neue Hub-Instanz
func NewHub() *Hub {
	return &Hub{
		broadcast:   make(chan Message, 100),
		register:    make(chan Client),
		unregister:  make(chan Client),
		done:        make(chan struct{}),
		clients:     make(map[Client]bool),
		minInterval: 250 * time.Millisecond,
	}
}

// Run startet die Verarbeitungsschleife des Hubs bis ctx endet
func (h *Hub) Run(ctx context.Context) {
	log.WithFields(logFields).Info("SSE hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
			log.WithFields(logFields).Info("SSE hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.WithFields(logFields).Debugf("SSE client registered. Total clients: %d", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				log.WithFields(logFields).Debugf("SSE client unregistered. Total clients: %d", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client <- message:
				default:
					log.WithFields(logFields).Warn("SSE client channel full, removing client")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register registriert einen neuen Client am Hub
func (h *Hub) Register(client Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister meldet einen Client vom Hub ab
func (h *Hub) Unregister(client Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount gibt die Anzahl verbundener Clients zurück
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sendet ein Ereignis an alle registrierten Clients
func (h *Hub) Broadcast(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithFields(logFields).WithError(err).Errorf("Failed to marshal %s event", event)
		return
	}
	select {
	case h.broadcast <- Message{Event: event, Data: data}:
	default:
		log.WithFields(logFields).Warn("SSE broadcast channel full, message dropped")
	}
}

// BroadcastStatus ist ein recognition.Listener. Statuswechsel gehen sofort
// hinaus, reine Zähler- und Box-Updates höchstens alle minInterval.
func (h *Hub) BroadcastStatus(s recognition.Snapshot) {
	h.mu.Lock()
	now := time.Now()
	if h.lastStatus != nil && h.lastStatus.SameState(s) && now.Sub(h.lastSent) < h.minInterval {
		h.mu.Unlock()
		return
	}
	h.lastStatus = &s
	h.lastSent = now
	h.mu.Unlock()

	h.Broadcast(EventStatus, StatusData{
		Status:           s.Status,
		Authorized:       s.Authorized(),
		AuthorizedFrames: s.AuthorizedFrames,
		RequiredFrames:   s.RequiredFrames,
		FacesDetected:    s.FacesDetected,
		Results:          s.Results,
		Timestamp:        s.UpdatedAt,
	})
}

// BroadcastRegistration ist ein processor.RegistrationListener
func (h *Hub) BroadcastRegistration(job processor.RegistrationJob) {
	h.Broadcast(EventRegistration, job)
}
