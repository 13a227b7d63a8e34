package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"kuizu-session-service/internal/app"
)

// LiveRegistry is a Redis-aware implementation of app.LiveRegistry.
// Notes:
//   - Hubs stay local so the in-process broadcast path is reused.
//   - Redis marks which sessions have live subscribers somewhere (and could
//     be extended to route cross-instance pub/sub).
type LiveRegistry struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	hubs   map[string]*app.LiveSession
}

func NewLiveRegistry(client *redis.Client, ttl time.Duration) *LiveRegistry {
	return &LiveRegistry{
		client: client,
		ttl:    ttl,
		hubs:   make(map[string]*app.LiveSession),
	}
}

func (r *LiveRegistry) GetOrCreate(sessionID string) *app.LiveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hub, ok := r.hubs[sessionID]; ok {
		return hub
	}
	hub := app.NewLiveSession(sessionID)
	r.hubs[sessionID] = hub
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), r.key(sessionID), "1", r.ttl).Err()
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
	if _, ok := r.hubs[sessionID]; !ok {
		return
	}
	delete(r.hubs, sessionID)
	_ = r.client.Del(context.Background(), r.key(sessionID)).Err()
}

func (r *LiveRegistry) key(sessionID string) string {
	return "kuizu:session:live:" + sessionID
}
