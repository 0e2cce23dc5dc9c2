package facerecognition

import (
	"fmt"
	"sort"
	"sync"
)

// ProviderManager verwaltet die registrierten Engines und die aktive Auswahl
type ProviderManager struct {
	mu      sync.RWMutex
	engines map[ProviderType]Engine
	active  ProviderType
}

// NewProviderManager erstellt einen neuen ProviderManager
func NewProviderManager() *ProviderManager {
	return &ProviderManager{
		engines: make(map[ProviderType]Engine),
	}
}

// Register registriert eine Engine unter ihrem Namen
func (m *ProviderManager) Register(engine Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engines[engine.Name()] = engine
}

// SetActive setzt die aktive Engine
func (m *ProviderManager) SetActive(name ProviderType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.engines[name]; !ok {
		return fmt.Errorf("face engine %q is not registered", name)
	}
	m.active = name
	return nil
}

// Active gibt die aktive Engine zurück
func (m *ProviderManager) Active() (Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == "" {
		return nil, false
	}
	engine, ok := m.engines[m.active]
	return engine, ok
}

// ActiveName gibt den Namen der aktiven Engine zurück
func (m *ProviderManager) ActiveName() ProviderType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Names gibt die Namen aller registrierten Engines sortiert zurück
func (m *ProviderManager) Names() []ProviderType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]ProviderType, 0, len(m.engines))
	for name := range m.engines {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Close schließt alle registrierten Engines
func (m *ProviderManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, engine := range m.engines {
		if err := engine.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close engine %s: %w", name, err)
		}
	}
	return firstErr
}
