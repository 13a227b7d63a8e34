package app

import (
	"sync"

	"kuizu-session-service/internal/domain"
)

// LiveRegistry tracks the in-process hubs for sessions with connected
// subscribers. The store stays authoritative; hubs only fan out events.
type LiveRegistry interface {
	GetOrCreate(sessionID string) *LiveSession
	Get(sessionID string) (*LiveSession, bool)
	// Remove drops the hub, e.g. once a session finishes.
	Remove(sessionID string)
}

// LiveSession fans out session events to subscribed connections.
type LiveSession struct {
	id          string
	mu          sync.Mutex
	subscribers map[chan domain.SessionEvent]struct{}
}

// NewLiveSession is exported for registry implementations.
func NewLiveSession(sessionID string) *LiveSession {
	return &LiveSession{
		id:          sessionID,
		subscribers: make(map[chan domain.SessionEvent]struct{}),
	}
}

// ID returns the session id this hub serves.
func (l *LiveSession) ID() string { return l.id }

// Subscribe registers a listener. The caller must invoke the returned cancel
// function to avoid leaks.
func (l *LiveSession) Subscribe() (<-chan domain.SessionEvent, func()) {
	ch := make(chan domain.SessionEvent, 8)

	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		if _, ok := l.subscribers[ch]; ok {
			delete(l.subscribers, ch)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber. Slow consumers lose their
// oldest buffered event instead of blocking the broadcast.
func (l *LiveSession) Publish(event domain.SessionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.subscribers {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}

// SubscriberCount reports how many listeners are attached.
func (l *LiveSession) SubscriberCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subscribers)
}
