package fieldclient

import (
	"context"

	"github.com/braianpx/fieldtrack/internal/models"
)

// PositionSource abstracts the device's geolocation watch. Positions is
// expected to emit a point per device sample until ctx is cancelled; the
// client forwards each sample (subject to the MinPingInterval gate) as an
// updateLocation message.
type PositionSource interface {
	Positions(ctx context.Context) (<-chan models.Point, error)
}
