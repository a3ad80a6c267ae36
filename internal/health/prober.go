package health

import (
	"context"

	"github.com/technosupport/ts-evcam/internal/camera"
	"github.com/technosupport/ts-evcam/internal/data"
)

// ClientProber probes cameras with a fresh device client per check, so
// stale connection state never masks a recovery.
type ClientProber struct{}

func (ClientProber) TestConnection(ctx context.Context, cam *data.Camera) error {
	return camera.NewClient(cam.Address, cam.Username, cam.Password).TestConnection(ctx)
}
