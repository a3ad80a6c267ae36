package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/ts-evcam/internal/data"
)

type stubUserLister struct {
	users []*data.User
	err   error
}

func (s *stubUserLister) ListActive(ctx context.Context) ([]*data.User, error) {
	return s.users, s.err
}

func testUser(events, status bool) *data.User {
	return &data.User{
		ID:                        uuid.New(),
		Email:                     "u@example.com",
		IsActive:                  true,
		EventNotifications:        events,
		CameraStatusNotifications: status,
	}
}

func TestDispatchRespectsEligibility(t *testing.T) {
	wantsEvents := testUser(true, false)
	wantsStatus := testUser(false, true)
	users := &stubUserLister{users: []*data.User{wantsEvents, wantsStatus}}

	hub := NewHub()
	sEvents := hub.Connect(wantsEvents.ID)
	sStatus := hub.Connect(wantsStatus.ID)

	d := NewDispatcher(users, hub, nil, nil, nil, DispatcherConfig{})
	d.Dispatch(context.Background(), NewSignal(KindEventCaptured, PriorityNormal, "t", "m"))

	if len(sEvents.Send) != 1 {
		t.Error("event subscriber should receive event_captured")
	}
	if len(sStatus.Send) != 0 {
		t.Error("status-only subscriber should not receive event_captured")
	}

	d.Dispatch(context.Background(), NewSignal(KindCameraOffline, PriorityHigh, "t", "m"))
	if len(sStatus.Send) != 1 {
		t.Error("status subscriber should receive camera_offline")
	}
	if len(sEvents.Send) != 1 {
		t.Error("event-only subscriber should not receive camera_offline")
	}
}

func TestDispatchDedupsByEventID(t *testing.T) {
	u := testUser(true, true)
	users := &stubUserLister{users: []*data.User{u}}
	hub := NewHub()
	s := hub.Connect(u.ID)

	d := NewDispatcher(users, hub, nil, nil, nil, DispatcherConfig{DedupTTL: time.Minute})

	evtID := uuid.New()
	for i := 0; i < 3; i++ {
		sig := NewSignal(KindEventCaptured, PriorityNormal, "t", "m")
		sig.EventID = &evtID
		d.Dispatch(context.Background(), sig)
	}
	if got := len(s.Send); got != 1 {
		t.Errorf("delivered %d, want 1 (duplicates suppressed)", got)
	}
}

func TestDispatchSurvivesUserListfailure(t *testing.T) {
	users := &stubUserLister{err: errors.New("db down")}
	d := NewDispatcher(users, NewHub(), nil, nil, nil, DispatcherConfig{})
	// Must not panic; the signal is simply lost for this tick.
	d.Dispatch(context.Background(), NewSignal(KindSystemAlert, PriorityHigh, "t", "m"))
}

func TestEventCapturedBuildsSignal(t *testing.T) {
	u := testUser(true, true)
	users := &stubUserLister{users: []*data.User{u}}
	hub := NewHub()
	s := hub.Connect(u.ID)

	d := NewDispatcher(users, hub, nil, nil, nil, DispatcherConfig{})

	camID := uuid.New()
	cam := &data.Camera{ID: camID, Name: "front", Address: "http://front.local"}
	evt := &data.Event{
		ID:          uuid.New(),
		CameraID:    &camID,
		Filename:    "EVT_001.mp4",
		TriggeredAt: time.Now(),
	}
	d.EventCaptured(context.Background(), evt, cam)

	select {
	case sig := <-s.Send:
		if sig.Kind != KindEventCaptured {
			t.Errorf("kind = %s", sig.Kind)
		}
		if sig.Category != "events" {
			t.Errorf("category = %s, want events", sig.Category)
		}
		if sig.EventID == nil || *sig.EventID != evt.ID {
			t.Error("signal missing event reference")
		}
	default:
		t.Fatal("no signal delivered")
	}
}

type fakeSender struct {
	failFor map[string]bool
	sent    []string
}

func (f *fakeSender) Enabled() bool { return true }

func (f *fakeSender) Send(to string, sig *Signal) error {
	f.sent = append(f.sent, to)
	if f.failFor[to] {
		return errors.New("mailbox rejected")
	}
	return nil
}

func TestEventCapturedReachesEmail(t *testing.T) {
	subscribed := testUser(true, false)
	subscribed.Email = "subscribed@example.com"
	subscribed.EmailNotifications = true
	pushOnly := testUser(true, false)
	pushOnly.Email = "pushonly@example.com"

	users := &stubUserLister{users: []*data.User{subscribed, pushOnly}}
	sender := &fakeSender{}
	d := NewDispatcher(users, NewHub(), sender, nil, nil, DispatcherConfig{})

	evt := &data.Event{ID: uuid.New(), Filename: "EVT_001.mp4", TriggeredAt: time.Now()}
	d.EventCaptured(context.Background(), evt, nil)

	if len(sender.sent) != 1 || sender.sent[0] != "subscribed@example.com" {
		t.Errorf("sent = %v, want exactly one mail to the subscribed user", sender.sent)
	}
}

func TestEmailFanOutIsolatesFailure(t *testing.T) {
	var all []*data.User
	emails := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"}
	for _, e := range emails {
		u := testUser(true, true)
		u.Email = e
		u.EmailNotifications = true
		all = append(all, u)
	}
	users := &stubUserLister{users: all}
	sender := &fakeSender{failFor: map[string]bool{"c@example.com": true}}
	d := NewDispatcher(users, NewHub(), sender, nil, nil, DispatcherConfig{})

	evt := &data.Event{ID: uuid.New(), Filename: "EVT_002.mp4", TriggeredAt: time.Now()}
	d.EventCaptured(context.Background(), evt, nil)

	if len(sender.sent) != len(emails) {
		t.Fatalf("attempts = %d, want %d (one per eligible user, no more)", len(sender.sent), len(emails))
	}
	if sender.sent[len(sender.sent)-1] != "d@example.com" {
		t.Error("failure for c@example.com must not stop the fan-out to d@example.com")
	}
}

func TestCameraOfflineIsHighPriority(t *testing.T) {
	u := testUser(true, true)
	users := &stubUserLister{users: []*data.User{u}}
	hub := NewHub()
	s := hub.Connect(u.ID)

	d := NewDispatcher(users, hub, nil, nil, nil, DispatcherConfig{})
	d.CameraOffline(context.Background(), &data.Camera{ID: uuid.New(), Name: "front"})

	sig := <-s.Send
	if sig.Priority != PriorityHigh {
		t.Errorf("priority = %s, want high", sig.Priority)
	}
	if sig.Category != "cameras" {
		t.Errorf("category = %s, want cameras", sig.Category)
	}
}
