package bus

import (
	"context"

	"github.com/google/uuid"
)

// Bus mirrors broadcast frames to an out-of-process channel so sibling
// services (job executors, analytics) can observe space activity. The
// in-process hub never depends on it; publish failures are logged and
// dropped.
type Bus interface {
	Publish(ctx context.Context, spaceID uuid.UUID, raw []byte) error
	Close() error
}
