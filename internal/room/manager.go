package room

import (
	"sync"

	"go.uber.org/zap"

	"tilerise/internal/config"
)

// Manager tracks the live rooms. Rooms run independently; the manager only
// guards the map.
type Manager struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	cfg    config.Config
	logger *zap.SugaredLogger
}

// NewManager builds a manager that creates rooms from cfg on demand.
func NewManager(cfg config.Config, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		rooms:  make(map[string]*Room),
		cfg:    cfg,
		logger: logger,
	}
}

// GetOrCreate returns the room, starting it first if needed.
func (m *Manager) GetOrCreate(id string) *Room {
	m.mu.RLock()
	r, ok := m.rooms[id]
	m.mu.RUnlock()
	if ok {
		return r
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok {
		return r
	}
	r = New(id, m.cfg, m.logger)
	m.rooms[id] = r
	m.logger.Infow("room created", "room", id)
	return r
}

// Get returns the room if it exists.
func (m *Manager) Get(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// CloseAll stops every room; used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		r.Close()
	}
}
