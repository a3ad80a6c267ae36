package notify

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindEventCaptured Kind = "event_captured"
	KindCameraOnline  Kind = "camera_online"
	KindCameraOffline Kind = "camera_offline"
	KindSystemAlert   Kind = "system_alert"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Signal is the unit of fan-out. One signal goes to every eligible
// user; delivery per user is independent.
type Signal struct {
	ID        uuid.UUID      `json:"id"`
	Kind      Kind           `json:"kind"`
	Priority  Priority       `json:"priority"`
	Category  string         `json:"category"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	CameraID  *uuid.UUID     `json:"camera_id,omitempty"`
	EventID   *uuid.UUID     `json:"event_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewSignal(kind Kind, priority Priority, title, message string) *Signal {
	return &Signal{
		ID:        uuid.New(),
		Kind:      kind,
		Priority:  priority,
		Category:  categoryFor(kind),
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

func categoryFor(kind Kind) string {
	switch kind {
	case KindEventCaptured:
		return "events"
	case KindCameraOnline, KindCameraOffline:
		return "cameras"
	default:
		return "system"
	}
}
