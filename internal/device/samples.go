package device

import (
	"encoding/binary"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/skypro1111/voiceloop/internal/audio"
)

// outputBuffer is a typed PortAudio buffer plus the function that fills it
// from little-endian PCM. Short chunks are padded with silence.
type outputBuffer struct {
	buffer any
	fill   func(chunk []byte)
}

func newOutputBuffer(format audio.Format, framesPerBuffer int) (*outputBuffer, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid playback format: %w", err)
	}

	n := framesPerBuffer * format.Channels

	switch format.BitDepth {
	case 8:
		buf := make([]uint8, n)
		return &outputBuffer{buffer: buf, fill: func(chunk []byte) {
			copied := copy(buf, chunk)
			for i := copied; i < n; i++ {
				buf[i] = 0x80 // unsigned 8-bit silence
			}
		}}, nil

	case 16:
		buf := make([]int16, n)
		return &outputBuffer{buffer: buf, fill: func(chunk []byte) {
			for i := range buf {
				if (i+1)*2 <= len(chunk) {
					buf[i] = int16(binary.LittleEndian.Uint16(chunk[i*2:]))
				} else {
					buf[i] = 0
				}
			}
		}}, nil

	case 24:
		buf := make([]portaudio.Int24, n)
		return &outputBuffer{buffer: buf, fill: func(chunk []byte) {
			for i := range buf {
				if (i+1)*3 <= len(chunk) {
					buf[i].PutInt32(int24High(chunk[i*3:]))
				} else {
					buf[i].PutInt32(0)
				}
			}
		}}, nil

	case 32:
		buf := make([]int32, n)
		return &outputBuffer{buffer: buf, fill: func(chunk []byte) {
			for i := range buf {
				if (i+1)*4 <= len(chunk) {
					buf[i] = int32(binary.LittleEndian.Uint32(chunk[i*4:]))
				} else {
					buf[i] = 0
				}
			}
		}}, nil
	}

	return nil, fmt.Errorf("unsupported bit depth: %d", format.BitDepth)
}

// int24High returns a little-endian 24-bit sample in the high bits of an int32
func int24High(b []byte) int32 {
	return int32(uint32(b[0])<<8 | uint32(b[1])<<16 | uint32(b[2])<<24)
}
