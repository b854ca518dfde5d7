package capture

import (
	"context"

	"github.com/skypro1111/voiceloop/internal/audio"
)

// FrameSource is a live PCM input such as a microphone.
// ReadFrame returns interleaved little-endian PCM in Format; chunks may be
// any whole number of frames.
type FrameSource interface {
	Start(ctx context.Context) error
	Stop() error
	ReadFrame(ctx context.Context) ([]byte, error)
	Format() audio.Format
}
