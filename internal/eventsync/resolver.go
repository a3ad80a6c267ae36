package eventsync

import (
	"log"
	"strings"

	"github.com/technosupport/ts-evcam/internal/data"
)

// CameraResolver decides which camera owns a drop-directory file that
// matched no existing event. Injectable so the fallback policy is
// explicit and testable rather than a hidden default.
type CameraResolver interface {
	Resolve(filename string, cameras []*data.Camera) *data.Camera
}

// NameMatchResolver attributes by case-insensitive substring match of a
// camera's name against the filename, falling back to the first active
// camera by creation order. The fallback can mis-attribute; it is
// logged at WARN every time so the ambiguity stays visible.
type NameMatchResolver struct{}

func (NameMatchResolver) Resolve(filename string, cameras []*data.Camera) *data.Camera {
	if len(cameras) == 0 {
		return nil
	}

	lower := strings.ToLower(filename)
	for _, cam := range cameras {
		name := strings.ToLower(strings.TrimSpace(cam.Name))
		if name != "" && strings.Contains(lower, name) {
			return cam
		}
	}

	fallback := cameras[0]
	log.Printf("[WARN] eventsync: no camera name matches %q, attributing to %s", filename, fallback.Name)
	return fallback
}

// NoFallbackResolver matches by name only and otherwise leaves the
// event unattributed (camera_id stays NULL).
type NoFallbackResolver struct{}

func (NoFallbackResolver) Resolve(filename string, cameras []*data.Camera) *data.Camera {
	lower := strings.ToLower(filename)
	for _, cam := range cameras {
		name := strings.ToLower(strings.TrimSpace(cam.Name))
		if name != "" && strings.Contains(lower, name) {
			return cam
		}
	}
	return nil
}
