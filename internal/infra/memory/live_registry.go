package memory

import (
	"sync"

	"kuizu-session-service/internal/app"
)

// LiveRegistry is an in-memory implementation of app.LiveRegistry.
type LiveRegistry struct {
	mu   sync.RWMutex
	hubs map[string]*app.LiveSession
}

func NewLiveRegistry() *LiveRegistry {
	return &LiveRegistry{hubs: make(map[string]*app.LiveSession)}
}

func (r *LiveRegistry) GetOrCreate(sessionID string) *app.LiveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hub, ok := r.hubs[sessionID]; ok {
		return hub
	}
	hub := app.NewLiveSession(sessionID)
	r.hubs[sessionID] = hub
	return hub
}

func (r *LiveRegistry) Get(sessionID string) (*app.LiveSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hub, ok := r.hubs[sessionID]
	return hub, ok
}

func (r *LiveRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hubs, sessionID)
}
