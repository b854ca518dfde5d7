package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/skypro1111/voiceloop/internal/audio"
	"github.com/skypro1111/voiceloop/internal/fault"
)

const stageMicrophone = "microphone"

// Microphone captures 16-bit PCM from the default input device. The
// stream is only open between Start and Stop.
type Microphone struct {
	format          audio.Format
	framesPerBuffer int
	logger          *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	frames  chan []byte
	errs    chan error
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewMicrophone creates a microphone delivering buffers of bufferDuration
func NewMicrophone(format audio.Format, bufferDuration time.Duration, logger *slog.Logger) (*Microphone, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture format: %w", err)
	}
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("microphone capture supports 16-bit audio only, got %d", format.BitDepth)
	}

	frames := int(int64(format.SampleRate) * int64(bufferDuration) / int64(time.Second))
	if frames < 1 {
		return nil, fmt.Errorf("buffer duration %v is too short", bufferDuration)
	}

	return &Microphone{
		format:          format,
		framesPerBuffer: frames,
		logger:          logger,
	}, nil
}

// Start opens and starts the input stream
func (m *Microphone) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	buffer := make([]int16, m.framesPerBuffer*m.format.Channels)
	stream, err := portaudio.OpenDefaultStream(m.format.Channels, 0, float64(m.format.SampleRate), m.framesPerBuffer, buffer)
	if err != nil {
		return fault.New(fault.KindDevice, stageMicrophone, fmt.Errorf("error opening input stream: %w", err))
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fault.New(fault.KindDevice, stageMicrophone, fmt.Errorf("error starting input stream: %w", err))
	}

	m.stream = stream
	m.frames = make(chan []byte, 16)
	m.errs = make(chan error, 1)
	m.stop = make(chan struct{})
	m.running = true

	m.wg.Add(1)
	go m.readLoop(stream, buffer, m.frames, m.errs, m.stop)

	m.logger.Debug("Microphone started",
		slog.String("format", m.format.String()),
		slog.Int("frames_per_buffer", m.framesPerBuffer),
	)

	return nil
}

// readLoop copies device buffers into the frame channel until stopped
func (m *Microphone) readLoop(stream *portaudio.Stream, buffer []int16, frames chan<- []byte, errs chan<- error, stop <-chan struct{}) {
	defer m.wg.Done()

	for {
		err := stream.Read()

		select {
		case <-stop:
			return
		default:
		}

		if err != nil {
			// Input overflow only means we were slow, the data is still usable
			if err != portaudio.InputOverflowed {
				errs <- err
				return
			}
			m.logger.Debug("Microphone input overflowed")
		}

		select {
		case frames <- audio.Int16ToBytes(buffer):
		case <-stop:
			return
		}
	}
}

// ReadFrame returns the next captured buffer
func (m *Microphone) ReadFrame(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	frames, errs, running := m.frames, m.errs, m.running
	m.mu.Unlock()

	if !running {
		return nil, fmt.Errorf("microphone is not started")
	}

	select {
	case frame := <-frames:
		return frame, nil
	case err := <-errs:
		return nil, fault.New(fault.KindDevice, stageMicrophone, fmt.Errorf("error reading input stream: %w", err))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop stops and closes the input stream, discarding unread audio
func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	close(m.stop)
	stopErr := m.stream.Stop()
	m.wg.Wait()
	closeErr := m.stream.Close()
	m.stream = nil

	if stopErr != nil {
		return fmt.Errorf("error stopping input stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("error closing input stream: %w", closeErr)
	}

	m.logger.Debug("Microphone stopped")
	return nil
}

// Format returns the capture format
func (m *Microphone) Format() audio.Format {
	return m.format
}
