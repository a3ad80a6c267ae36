package notify

import (
	"testing"

	"github.com/google/uuid"
)

func TestHubDeliversToAllUserSessions(t *testing.T) {
	hub := NewHub()
	user := uuid.New()
	s1 := hub.Connect(user)
	s2 := hub.Connect(user)
	other := hub.Connect(uuid.New())

	sig := NewSignal(KindEventCaptured, PriorityNormal, "t", "m")
	hub.Deliver(user, sig)

	for _, s := range []*Session{s1, s2} {
		select {
		case got := <-s.Send:
			if got.ID != sig.ID {
				t.Errorf("wrong signal delivered")
			}
		default:
			t.Errorf("session %s got nothing", s.ID)
		}
	}
	select {
	case <-other.Send:
		t.Error("other user's session received the signal")
	default:
	}
}

func TestHubDropsWhenQueueFull(t *testing.T) {
	hub := NewHub()
	user := uuid.New()
	s := hub.Connect(user)

	for i := 0; i < sessionQueueDepth+10; i++ {
		hub.Deliver(user, NewSignal(KindSystemAlert, PriorityLow, "t", "m"))
	}
	// Queue holds exactly its depth; the rest were dropped, not blocked.
	if got := len(s.Send); got != sessionQueueDepth {
		t.Errorf("queued %d, want %d", got, sessionQueueDepth)
	}
}

func TestHubDisconnect(t *testing.T) {
	hub := NewHub()
	user := uuid.New()
	s := hub.Connect(user)
	if hub.SessionCount() != 1 {
		t.Fatalf("SessionCount = %d, want 1", hub.SessionCount())
	}

	hub.Disconnect(s)
	if hub.SessionCount() != 0 {
		t.Errorf("SessionCount = %d, want 0", hub.SessionCount())
	}
	if _, open := <-s.Send; open {
		t.Error("Send channel should be closed after disconnect")
	}

	// Double disconnect must not panic or double-close.
	hub.Disconnect(s)

	// Delivering to a gone user is a no-op.
	hub.Deliver(user, NewSignal(KindSystemAlert, PriorityLow, "t", "m"))
}
