package netmic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/skypro1111/voiceloop/internal/audio"
	"github.com/skypro1111/voiceloop/internal/protocol"
)

// Config contains network microphone parameters
type Config struct {
	BindAddress string
	Port        int
	BufferSize  int    // socket read buffer
	MaxGap      uint32 // missing packets tolerated before they are declared lost
	QueueSize   int    // decoded chunks waiting for ReadFrame
}

// Source is a capture frame source fed by UDP packets
type Source struct {
	config Config
	format audio.Format
	logger *slog.Logger

	conn   *net.UDPConn
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	listening bool
	locked    bool   // a stream has been accepted
	streamID  uint32 // accepted stream
	rejected  map[uint32]bool
	reorder   *audio.ReorderBuffer
	frames    chan []byte

	// counters
	packetsReceived uint64
	packetsAccepted uint64
	parseErrors     uint64
	dropped         uint64 // audio received while not listening
	ignored         uint64 // audio from other or rejected streams
	overflows       uint64
}

// Statistics represents network microphone statistics
type Statistics struct {
	Listening       bool              `json:"listening"`
	StreamID        uint32            `json:"stream_id"`
	PacketsReceived uint64            `json:"packets_received"`
	PacketsAccepted uint64            `json:"packets_accepted"`
	ParseErrors     uint64            `json:"parse_errors"`
	Dropped         uint64            `json:"dropped"`
	Ignored         uint64            `json:"ignored"`
	Overflows       uint64            `json:"overflows"`
	Buffer          audio.BufferStats `json:"buffer"`
}

// NewSource creates a source expecting audio in format. Decoded samples
// are always 16-bit, so format must be 16-bit.
func NewSource(config Config, format audio.Format, logger *slog.Logger) (*Source, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid format: %w", err)
	}
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("network microphone delivers 16-bit audio, got %d", format.BitDepth)
	}
	if config.BufferSize < protocol.MaxPacketSize {
		config.BufferSize = protocol.MaxPacketSize
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Source{
		config:   config,
		format:   format,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		rejected: make(map[uint32]bool),
		reorder:  audio.NewReorderBuffer(config.MaxGap, format.FrameSize()),
		frames:   make(chan []byte, config.QueueSize),
	}, nil
}

// Open binds the UDP socket and starts receiving
func (s *Source) Open() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Network microphone listening",
		slog.String("address", conn.LocalAddr().String()),
		slog.String("format", s.format.String()),
	)

	s.wg.Add(1)
	go s.receiveLoop()

	return nil
}

// Addr returns the bound socket address
func (s *Source) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Close stops receiving and releases the socket
func (s *Source) Close() error {
	s.cancel()

	var err error
	if s.conn != nil {
		err = s.conn.Close()
	}
	s.wg.Wait()

	stats := s.GetStatistics()
	s.logger.Info("Network microphone closed",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_accepted", stats.PacketsAccepted),
		slog.Uint64("parse_errors", stats.ParseErrors),
	)

	return err
}

// Start begins delivering audio to ReadFrame
func (s *Source) Start(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("network microphone is not open")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.listening = true
	s.reorder.Reset()
	return nil
}

// Stop discards queued audio and ignores new audio until the next Start
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listening = false
	s.reorder.Reset()
	for {
		select {
		case <-s.frames:
		default:
			return nil
		}
	}
}

// ReadFrame returns the next chunk of ordered 16-bit PCM
func (s *Source) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, errors.New("network microphone closed")
	}
}

// Format returns the delivered audio format
func (s *Source) Format() audio.Format {
	return s.format
}

// receiveLoop is the main packet receiving loop
func (s *Source) receiveLoop() {
	defer s.wg.Done()

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		// Read deadline lets the loop observe cancellation
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		s.handlePacket(buffer[:n], remoteAddr)
	}
}

// handlePacket processes a single incoming packet
func (s *Source) handlePacket(data []byte, remoteAddr *net.UDPAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packetsReceived++

	packet, err := protocol.ParsePacket(data)
	if err != nil {
		s.parseErrors++
		s.logger.Debug("Failed to parse packet",
			slog.String("remote_addr", remoteAddr.String()),
			slog.Int("packet_size", len(data)),
			slog.String("error", err.Error()),
		)
		return
	}

	header := packet.Header
	switch header.PacketType {
	case protocol.PacketTypeHello:
		s.processHello(header, packet.Hello, remoteAddr)
	case protocol.PacketTypeAudio:
		s.processAudio(header, packet.Audio)
	case protocol.PacketTypeBye:
		if s.locked && header.StreamID == s.streamID {
			s.locked = false
			s.reorder.Reset()
			s.logger.Info("Network microphone stream ended", slog.Uint64("stream_id", uint64(header.StreamID)))
		}
	}
}

// processHello checks an announced stream against the expected format
func (s *Source) processHello(header *protocol.Header, hello *protocol.HelloPayload, remoteAddr *net.UDPAddr) {
	if int(hello.SampleRate) != s.format.SampleRate || int(hello.Channels) != s.format.Channels {
		s.rejected[header.StreamID] = true
		s.logger.Warn("Rejecting network microphone stream with unexpected format",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.String("device", hello.GetDeviceName()),
			slog.Int("sample_rate", int(hello.SampleRate)),
			slog.Int("channels", int(hello.Channels)),
			slog.String("expected", s.format.String()),
		)
		return
	}

	delete(s.rejected, header.StreamID)
	s.logger.Info("Network microphone stream announced",
		slog.Uint64("stream_id", uint64(header.StreamID)),
		slog.String("device", hello.GetDeviceName()),
		slog.String("encoding", protocol.EncodingString(header.Encoding)),
		slog.String("remote_addr", remoteAddr.String()),
	)
}

// processAudio routes audio of the accepted stream into the reorder buffer
func (s *Source) processAudio(header *protocol.Header, payload *protocol.AudioPayload) {
	if !s.listening {
		s.dropped++
		return
	}

	if s.rejected[header.StreamID] {
		s.ignored++
		return
	}

	if !s.locked {
		s.locked = true
		s.streamID = header.StreamID
		s.reorder.Reset()
		s.logger.Debug("Accepted network microphone stream", slog.Uint64("stream_id", uint64(header.StreamID)))
	}

	if header.StreamID != s.streamID {
		s.ignored++
		return
	}

	pcm, err := protocol.DecodeSamples(header.Encoding, payload.AudioData)
	if err != nil {
		s.parseErrors++
		s.logger.Debug("Failed to decode audio packet",
			slog.Uint64("sequence", uint64(payload.Sequence)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.reorder.Add(payload.Sequence, pcm); err != nil {
		s.logger.Debug("Audio packet rejected",
			slog.Uint64("sequence", uint64(payload.Sequence)),
			slog.String("error", err.Error()),
		)
		return
	}
	s.packetsAccepted++

	ready := s.reorder.Take()
	if len(ready) == 0 {
		return
	}

	select {
	case s.frames <- ready:
	default:
		s.overflows++
		s.logger.Warn("Network microphone queue full, dropping audio", slog.Int("bytes", len(ready)))
	}
}

// GetStatistics returns current source statistics
func (s *Source) GetStatistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Statistics{
		Listening:       s.listening,
		StreamID:        s.streamID,
		PacketsReceived: s.packetsReceived,
		PacketsAccepted: s.packetsAccepted,
		ParseErrors:     s.parseErrors,
		Dropped:         s.dropped,
		Ignored:         s.ignored,
		Overflows:       s.overflows,
		Buffer:          s.reorder.GetStats(),
	}
}
