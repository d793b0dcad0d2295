package studio

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/alefe53/mis-esencias-live/internal/transport"
)

// Manager is the id-keyed registry of live session objects. Sessions are
// explicit instances with injected collaborators; multiple sessions can
// coexist in one process without cross-contamination.
type Manager struct {
	roomID    string
	transport transport.Transport
	tokens    TokenSource
	status    LiveStatusSetter
	capture   CameraCapture
	logger    zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session // keyed by broadcaster identity
	viewers  map[string]*Viewer  // keyed by viewer session id
}

// NewManager creates a session manager for one studio room.
func NewManager(roomID string, tr transport.Transport, tokens TokenSource, status LiveStatusSetter, capture CameraCapture, logger zerolog.Logger) *Manager {
	return &Manager{
		roomID:    roomID,
		transport: tr,
		tokens:    tokens,
		status:    status,
		capture:   capture,
		logger:    logger,
		sessions:  make(map[string]*Session),
		viewers:   make(map[string]*Viewer),
	}
}

// RoomID returns the studio room this manager coordinates.
func (m *Manager) RoomID() string { return m.roomID }

// SessionFor returns the broadcaster session for an identity, creating an
// idle one on first use. Two tabs of the same admin share one session, so
// concurrent start/stop funnel through the same idempotent guards.
func (m *Manager) SessionFor(identity string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[identity]; ok {
		return s
	}
	s := NewSession(SessionConfig{
		RoomID:    m.roomID,
		Identity:  identity,
		Transport: m.transport,
		Tokens:    m.tokens,
		Status:    m.status,
		Capture:   m.capture,
		Logger:    m.logger,
	})
	m.sessions[identity] = s
	return s
}

// NewViewer creates and registers a viewer session.
func (m *Manager) NewViewer(identity string, onLayout func(Layout)) *Viewer {
	v := NewViewer(ViewerConfig{
		RoomID:    m.roomID,
		Identity:  identity,
		Transport: m.transport,
		Tokens:    m.tokens,
		Logger:    m.logger,
		OnLayout:  onLayout,
	})
	m.mu.Lock()
	m.viewers[v.ID()] = v
	m.mu.Unlock()
	return v
}

// RemoveViewer unregisters a viewer session.
func (m *Manager) RemoveViewer(id string) {
	m.mu.Lock()
	delete(m.viewers, id)
	m.mu.Unlock()
}
