package studio

import (
	"context"

	"github.com/google/uuid"

	"github.com/alefe53/mis-esencias-live/internal/transport"
)

// LocalCapture hands out camera preview tracks backed by the transport's
// local capture pipeline. Each Acquire yields a fresh track handle; Release
// is a no-op because the in-process transport owns no device resources.
type LocalCapture struct{}

// NewLocalCapture creates a local capture source.
func NewLocalCapture() *LocalCapture {
	return &LocalCapture{}
}

// Acquire produces a new camera track handle.
func (c *LocalCapture) Acquire(ctx context.Context) (transport.Track, error) {
	return transport.Track{
		ID:     "camera-" + uuid.New().String(),
		Source: transport.SourceCamera,
	}, nil
}

// Release returns the track handle. Nothing to free for in-process tracks.
func (c *LocalCapture) Release(track transport.Track) {}
