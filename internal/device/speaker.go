package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/skypro1111/voiceloop/internal/audio"
	"github.com/skypro1111/voiceloop/internal/fault"
)

const (
	stageSpeaker = "playback"

	defaultFramesPerBuffer = 1024
)

// Speaker plays decoded replies on the default output device. A new
// stream is opened for each reply using the reply's own format.
type Speaker struct {
	framesPerBuffer int
	logger          *slog.Logger

	mu sync.Mutex // one reply at a time
}

// NewSpeaker creates a speaker
func NewSpeaker(framesPerBuffer int, logger *slog.Logger) *Speaker {
	if framesPerBuffer <= 0 {
		framesPerBuffer = defaultFramesPerBuffer
	}
	return &Speaker{
		framesPerBuffer: framesPerBuffer,
		logger:          logger,
	}
}

// Play writes the whole reply to the output device. Cancelling ctx aborts
// playback and returns a playback fault.
func (s *Speaker) Play(ctx context.Context, playable *audio.PlayableAudio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := newOutputBuffer(playable.Format, s.framesPerBuffer)
	if err != nil {
		return fault.New(fault.KindPlayback, stageSpeaker, err)
	}

	stream, err := portaudio.OpenDefaultStream(0, playable.Format.Channels,
		float64(playable.Format.SampleRate), s.framesPerBuffer, out.buffer)
	if err != nil {
		return fault.New(fault.KindDevice, stageSpeaker, fmt.Errorf("error opening output stream: %w", err))
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fault.New(fault.KindDevice, stageSpeaker, fmt.Errorf("error starting output stream: %w", err))
	}

	chunkBytes := s.framesPerBuffer * playable.Format.FrameSize()
	data := playable.Data

	for offset := 0; offset < len(data); offset += chunkBytes {
		if err := ctx.Err(); err != nil {
			stream.Abort()
			return fault.New(fault.KindPlayback, stageSpeaker,
				fmt.Errorf("playback interrupted after %s: %w", playable.Format.Duration(offset), err))
		}

		out.fill(data[offset:min(offset+chunkBytes, len(data))])

		if err := stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
			stream.Abort()
			return fault.New(fault.KindPlayback, stageSpeaker, fmt.Errorf("error writing output stream: %w", err))
		}
	}

	// Stop drains the buffers already queued on the device
	if err := stream.Stop(); err != nil {
		return fault.New(fault.KindPlayback, stageSpeaker, fmt.Errorf("error stopping output stream: %w", err))
	}

	s.logger.Debug("Reply played",
		slog.String("format", playable.Format.String()),
		slog.Duration("duration", playable.Duration()),
	)

	return nil
}
