package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/skypro1111/voiceloop/internal/fault"
)

const (
	stageAssemble = "assemble"

	// DefaultMaxReplyBytes bounds a buffered reply (roughly 10 minutes of 24kHz mono PCM)
	DefaultMaxReplyBytes = 32 << 20
)

// Assembler buffers a streamed reply and decodes it into playable PCM.
// Decoding needs the complete payload, so playback never starts before the
// whole reply has been received.
type Assembler struct {
	maxBytes int64
}

// NewAssembler creates an assembler that rejects replies larger than maxBytes
func NewAssembler(maxBytes int64) *Assembler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxReplyBytes
	}
	return &Assembler{maxBytes: maxBytes}
}

// Assemble drains stream and decodes the buffered bytes. Read failures are
// reported as transport errors, malformed payloads as decode errors.
func (a *Assembler) Assemble(stream io.Reader) (*PlayableAudio, error) {
	var buf bytes.Buffer

	n, err := buf.ReadFrom(io.LimitReader(stream, a.maxBytes+1))
	if err != nil {
		if fault.KindOf(err) != fault.KindUnknown {
			return nil, err
		}
		return nil, fault.New(fault.KindTransport, stageAssemble,
			fmt.Errorf("reply stream failed after %d bytes: %w", n, err))
	}

	if n > a.maxBytes {
		return nil, fault.Newf(fault.KindDecode, stageAssemble,
			"reply exceeds %d bytes", a.maxBytes)
	}

	playable, err := Decode(buf.Bytes())
	if err != nil {
		return nil, fault.New(fault.KindDecode, stageAssemble, err)
	}

	return playable, nil
}

// Decode sniffs the container of a complete payload and decodes it
func Decode(data []byte) (*PlayableAudio, error) {
	var (
		playable *PlayableAudio
		err      error
	)

	switch {
	case len(data) == 0:
		return nil, fmt.Errorf("empty audio payload")
	case IsWAV(data):
		playable, err = DecodeWAV(data)
	case IsMP3(data):
		playable, err = DecodeMP3(data)
	default:
		return nil, fmt.Errorf("unrecognized audio container (first bytes % x)", data[:min(len(data), 4)])
	}
	if err != nil {
		return nil, err
	}

	playable.EncodedSize = len(data)
	return playable, nil
}
