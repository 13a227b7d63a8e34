package app_test

import (
	"fmt"
	"testing"

	"kuizu-session-service/internal/app"
	"kuizu-session-service/internal/domain"
)

func TestLiveSessionFanOut(t *testing.T) {
	hub := app.NewLiveSession("s1")
	first, cancelFirst := hub.Subscribe()
	second, cancelSecond := hub.Subscribe()
	defer cancelFirst()
	defer cancelSecond()

	if hub.SubscriberCount() != 2 {
		t.Fatalf("subscriber count = %d, want 2", hub.SubscriberCount())
	}

	hub.Publish(domain.SessionEvent{Type: domain.EventStatusChanged, SessionID: "s1"})
	for i, ch := range []<-chan domain.SessionEvent{first, second} {
		event := <-ch
		if event.Type != domain.EventStatusChanged {
			t.Fatalf("subscriber %d got %+v", i, event)
		}
	}
}

func TestSlowSubscriberLosesOldestEvent(t *testing.T) {
	hub := app.NewLiveSession("s1")
	updates, cancel := hub.Subscribe()
	defer cancel()

	// Overflow the buffer without reading; publishes must not block.
	for i := 1; i <= 10; i++ {
		hub.Publish(domain.SessionEvent{
			Type:              domain.EventQuestionChanged,
			CurrentQuestionID: fmt.Sprintf("q%d", i),
		})
	}

	event := <-updates
	if event.CurrentQuestionID == "q1" || event.CurrentQuestionID == "q2" {
		t.Fatalf("oldest events should have been dropped, got %s", event.CurrentQuestionID)
	}

	// Drain: the newest event must have survived.
	last := event
	for len(updates) > 0 {
		last = <-updates
	}
	if last.CurrentQuestionID != "q10" {
		t.Fatalf("newest event lost, last = %s", last.CurrentQuestionID)
	}
}

func TestSubscribeCancelIsIdempotent(t *testing.T) {
	hub := app.NewLiveSession("s1")
	_, cancel := hub.Subscribe()
	cancel()
	cancel()
	if hub.SubscriberCount() != 0 {
		t.Fatalf("subscriber count = %d after cancel", hub.SubscriberCount())
	}
	// Publishing to an empty hub is a no-op.
	hub.Publish(domain.SessionEvent{Type: domain.EventStatusChanged})
}
