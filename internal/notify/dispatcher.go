package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/technosupport/ts-evcam/internal/data"
	"github.com/technosupport/ts-evcam/internal/metrics"
)

type UserLister interface {
	ListActive(ctx context.Context) ([]*data.User, error)
}

// SignalDedup suppresses repeat signals inside a TTL window, so a
// camera flapping every health tick produces one alert, not dozens.
type SignalDedup struct {
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
}

func NewSignalDedup(maxKeys int, ttl time.Duration) *SignalDedup {
	c, _ := lru.New[string, time.Time](maxKeys)
	return &SignalDedup{cache: c, ttl: ttl}
}

func (d *SignalDedup) IsDuplicate(key string) bool {
	if addedAt, ok := d.cache.Get(key); ok {
		if time.Since(addedAt) < d.ttl {
			return true
		}
	}
	d.cache.Add(key, time.Now())
	return false
}

type DispatcherConfig struct {
	DedupMaxKeys int
	DedupTTL     time.Duration
}

// EmailSender delivers one message to one mailbox. Implemented by
// Mailer; faked in tests.
type EmailSender interface {
	Enabled() bool
	Send(to string, sig *Signal) error
}

// Dispatcher fans one signal out to every eligible user across push
// and email. Per-user failure is isolated: one bad mailbox never
// blocks the rest of the fan-out.
type Dispatcher struct {
	users    UserLister
	hub      *Hub
	mailer   EmailSender
	throttle *EmailThrottle
	mirror   *NATSPublisher
	dedup    *SignalDedup
}

func NewDispatcher(users UserLister, hub *Hub, mailer EmailSender, throttle *EmailThrottle, mirror *NATSPublisher, cfg DispatcherConfig) *Dispatcher {
	if cfg.DedupMaxKeys <= 0 {
		cfg.DedupMaxKeys = 4096
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 5 * time.Minute
	}
	return &Dispatcher{
		users:    users,
		hub:      hub,
		mailer:   mailer,
		throttle: throttle,
		mirror:   mirror,
		dedup:    NewSignalDedup(cfg.DedupMaxKeys, cfg.DedupTTL),
	}
}

// Dispatch routes one signal. Dedup first, then mirror, then per-user
// delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, sig *Signal) {
	if d.dedup.IsDuplicate(dedupKey(sig)) {
		return
	}

	if d.mirror != nil {
		if err := d.mirror.Publish(sig); err != nil {
			log.Printf("[WARN] notify: NATS mirror: %v", err)
			metrics.NotificationsTotal.WithLabelValues("nats", "error").Inc()
		} else {
			metrics.NotificationsTotal.WithLabelValues("nats", "ok").Inc()
		}
	}

	users, err := d.users.ListActive(ctx)
	if err != nil {
		log.Printf("[ERROR] notify: listing users for fan-out: %v", err)
		return
	}

	for _, u := range users {
		if !eligible(u, sig) {
			continue
		}
		d.hub.Deliver(u.ID, sig)
		d.email(ctx, u, sig)
	}
}

func (d *Dispatcher) email(ctx context.Context, u *data.User, sig *Signal) {
	if d.mailer == nil || !d.mailer.Enabled() || !u.EmailNotifications {
		return
	}
	// Only high-priority signals reach email; push carries the rest.
	if sig.Priority != PriorityHigh {
		return
	}
	if d.throttle != nil && !d.throttle.Allow(ctx, u.ID) {
		metrics.NotificationsTotal.WithLabelValues("email", "throttled").Inc()
		return
	}
	if err := d.mailer.Send(u.Email, sig); err != nil {
		log.Printf("[WARN] notify: email to %s: %v", u.Email, err)
		metrics.NotificationsTotal.WithLabelValues("email", "error").Inc()
		return
	}
	metrics.NotificationsTotal.WithLabelValues("email", "ok").Inc()
}

func eligible(u *data.User, sig *Signal) bool {
	switch sig.Kind {
	case KindEventCaptured:
		return u.EventNotifications
	case KindCameraOnline, KindCameraOffline:
		return u.CameraStatusNotifications
	default:
		return true
	}
}

func dedupKey(sig *Signal) string {
	switch {
	case sig.EventID != nil:
		return fmt.Sprintf("%s|%s", sig.Kind, sig.EventID)
	case sig.CameraID != nil:
		return fmt.Sprintf("%s|%s", sig.Kind, sig.CameraID)
	default:
		return fmt.Sprintf("%s|%s", sig.Kind, sig.Title)
	}
}

// EventCaptured implements the reconciliation engine's notifier hook.
func (d *Dispatcher) EventCaptured(ctx context.Context, e *data.Event, cam *data.Camera) {
	camName := "unattributed"
	if cam != nil {
		camName = cam.Name
	}
	sig := NewSignal(KindEventCaptured, PriorityHigh,
		fmt.Sprintf("New event on %s", camName),
		fmt.Sprintf("Event %q captured at %s", e.Filename, e.TriggeredAt.Format(time.RFC3339)))
	id := e.ID
	sig.EventID = &id
	sig.CameraID = e.CameraID
	sig.Data = map[string]any{"filename": e.Filename, "event_name": e.EventName}
	d.Dispatch(ctx, sig)
}

func (d *Dispatcher) CameraOnline(ctx context.Context, cam *data.Camera) {
	sig := NewSignal(KindCameraOnline, PriorityNormal,
		fmt.Sprintf("Camera %s online", cam.Name),
		fmt.Sprintf("Camera %s (%s) is reachable again", cam.Name, cam.Address))
	id := cam.ID
	sig.CameraID = &id
	d.Dispatch(ctx, sig)
}

func (d *Dispatcher) CameraOffline(ctx context.Context, cam *data.Camera) {
	sig := NewSignal(KindCameraOffline, PriorityHigh,
		fmt.Sprintf("Camera %s offline", cam.Name),
		fmt.Sprintf("Camera %s (%s) stopped responding", cam.Name, cam.Address))
	id := cam.ID
	sig.CameraID = &id
	d.Dispatch(ctx, sig)
}

func (d *Dispatcher) SystemAlert(ctx context.Context, title, message string) {
	d.Dispatch(ctx, NewSignal(KindSystemAlert, PriorityHigh, title, message))
}
