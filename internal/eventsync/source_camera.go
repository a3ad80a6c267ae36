package eventsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/technosupport/ts-evcam/internal/camera"
	"github.com/technosupport/ts-evcam/internal/data"
)

// ErrCameraUnreachable marks a fetch that failed after the transport
// client's own retries. The engine treats it as "no evidence this
// pass" for that camera only, never as "camera has zero events".
var ErrCameraUnreachable = errors.New("camera unreachable")

// EventLister is the slice of the camera client the sync path needs.
type EventLister interface {
	ListEvents(ctx context.Context) ([]camera.EventRecord, error)
	ListActiveEvents(ctx context.Context) ([]camera.EventRecord, error)
}

// ClientFactory builds a client for one camera's connection descriptor.
type ClientFactory func(cam *data.Camera) EventLister

// DefaultClientFactory wires the real REST client.
func DefaultClientFactory(cam *data.Camera) EventLister {
	return camera.NewClient(cam.Address, cam.Username, cam.Password)
}

// CameraSource adapts one camera's event listing for the engine,
// isolating transport failure behind ErrCameraUnreachable.
type CameraSource struct {
	newClient ClientFactory
}

func NewCameraSource(factory ClientFactory) *CameraSource {
	if factory == nil {
		factory = DefaultClientFactory
	}
	return &CameraSource{newClient: factory}
}

// Fetch returns every event the camera reports. Read-only against the
// device; any transport error comes back wrapped, never a panic.
func (s *CameraSource) Fetch(ctx context.Context, cam *data.Camera) ([]camera.EventRecord, error) {
	events, err := s.newClient(cam).ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: camera %s (%s): %v", ErrCameraUnreachable, cam.Name, cam.Address, err)
	}
	return events, nil
}

// FetchActive returns captures still recording on the camera.
func (s *CameraSource) FetchActive(ctx context.Context, cam *data.Camera) ([]camera.EventRecord, error) {
	events, err := s.newClient(cam).ListActiveEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: camera %s (%s): %v", ErrCameraUnreachable, cam.Name, cam.Address, err)
	}
	return events, nil
}
