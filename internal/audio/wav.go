package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/zaf/g711"
)

// WAV format tags
const (
	wavFormatPCM        = 0x0001
	wavFormatALaw       = 0x0006
	wavFormatMuLaw      = 0x0007
	wavFormatExtensible = 0xFFFE

	wavHeaderSize = 44
	// streamed WAV replies are written before their length is known
	wavUnknownSize = 0xFFFFFFFF
)

// WAVHeader represents the canonical 44-byte header written by EncodeWAV
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// wavFormat is the parsed "fmt " chunk
type wavFormat struct {
	tag           uint16
	channels      uint16
	sampleRate    uint32
	blockAlign    uint16
	bitsPerSample uint16
}

// EncodeWAV wraps interleaved little-endian PCM into a WAV container
func EncodeWAV(format Format, pcm []byte) ([]byte, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid format: %w", err)
	}

	if len(pcm) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio data")
	}

	if len(pcm)%format.FrameSize() != 0 {
		return nil, fmt.Errorf("audio data length %d is not a multiple of frame size %d",
			len(pcm), format.FrameSize())
	}

	dataSize := uint32(len(pcm))
	padding := int(dataSize & 1) // RIFF chunks are word aligned

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize + uint32(padding),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   wavFormatPCM,
		NumChannels:   uint16(format.Channels),
		SampleRate:    uint32(format.SampleRate),
		ByteRate:      uint32(format.SampleRate * format.FrameSize()),
		BlockAlign:    uint16(format.FrameSize()),
		BitsPerSample: uint16(format.BitDepth),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)+padding))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	buf.Write(pcm)
	if padding > 0 {
		buf.WriteByte(0)
	}

	return buf.Bytes(), nil
}

// EncodeWAVSamples encodes 16-bit samples with the given rate and channel count
func EncodeWAVSamples(samples []int16, sampleRate, channels int) ([]byte, error) {
	return EncodeWAV(Format{SampleRate: sampleRate, Channels: channels, BitDepth: 16}, Int16ToBytes(samples))
}

// IsWAV reports whether data starts with a RIFF/WAVE signature
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV walks the RIFF chunks of data and returns the PCM payload.
// Unknown chunks are skipped. A data chunk whose declared length exceeds
// the bytes present (streamed replies) is clamped to what was received and
// trimmed to whole frames. G.711 payloads are expanded to 16-bit PCM.
func DecodeWAV(data []byte) (*PlayableAudio, error) {
	if !IsWAV(data) {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF/WAVE header")
	}

	var (
		format  *wavFormat
		payload []byte
		found   bool
	)

	offset := 12
	for offset+8 <= len(data) && !found {
		chunkID := string(data[offset : offset+4])
		chunkSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		offset += 8
		remaining := len(data) - offset

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || int(chunkSize) > remaining {
				return nil, fmt.Errorf("invalid WAV file: truncated fmt chunk (%d bytes)", chunkSize)
			}
			parsed, err := parseWAVFormat(data[offset : offset+int(chunkSize)])
			if err != nil {
				return nil, err
			}
			format = parsed

		case "data":
			if format == nil {
				return nil, fmt.Errorf("invalid WAV file: data chunk before fmt chunk")
			}
			size := remaining
			if chunkSize != wavUnknownSize && int(chunkSize) <= remaining {
				size = int(chunkSize)
			}
			payload = data[offset : offset+size]
			found = true
			continue
		}

		if int(chunkSize) > remaining {
			break
		}
		offset += int(chunkSize) + int(chunkSize&1)
	}

	if format == nil {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if !found {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return format.decode(payload)
}

func parseWAVFormat(chunk []byte) (*wavFormat, error) {
	f := &wavFormat{
		tag:           binary.LittleEndian.Uint16(chunk[0:2]),
		channels:      binary.LittleEndian.Uint16(chunk[2:4]),
		sampleRate:    binary.LittleEndian.Uint32(chunk[4:8]),
		blockAlign:    binary.LittleEndian.Uint16(chunk[12:14]),
		bitsPerSample: binary.LittleEndian.Uint16(chunk[14:16]),
	}

	// WAVE_FORMAT_EXTENSIBLE stores the real tag in the first two bytes of the sub-format GUID
	if f.tag == wavFormatExtensible {
		if len(chunk) < 26 {
			return nil, fmt.Errorf("invalid WAV file: extensible fmt chunk too short")
		}
		f.tag = binary.LittleEndian.Uint16(chunk[24:26])
	}

	if f.channels == 0 {
		return nil, fmt.Errorf("invalid WAV file: zero channels")
	}
	if f.sampleRate == 0 {
		return nil, fmt.Errorf("invalid WAV file: zero sample rate")
	}

	return f, nil
}

func (f *wavFormat) decode(payload []byte) (*PlayableAudio, error) {
	switch f.tag {
	case wavFormatPCM:
		format := Format{
			SampleRate: int(f.sampleRate),
			Channels:   int(f.channels),
			BitDepth:   int(f.bitsPerSample),
		}
		if err := format.Validate(); err != nil {
			return nil, fmt.Errorf("unsupported WAV PCM layout: %w", err)
		}
		if int(f.blockAlign) != format.FrameSize() {
			return nil, fmt.Errorf("invalid WAV file: block align %d does not match %s", f.blockAlign, format)
		}
		frames := format.Frames(len(payload))
		if frames == 0 {
			return nil, fmt.Errorf("no audio data found")
		}
		return &PlayableAudio{
			Format:    format,
			Data:      payload[:frames*format.FrameSize()],
			Container: "wav",
		}, nil

	case wavFormatMuLaw, wavFormatALaw:
		if f.bitsPerSample != 8 {
			return nil, fmt.Errorf("unsupported G.711 sample width: %d", f.bitsPerSample)
		}
		frames := len(payload) / int(f.channels)
		if frames == 0 {
			return nil, fmt.Errorf("no audio data found")
		}
		encoded := payload[:frames*int(f.channels)]

		var pcm []byte
		if f.tag == wavFormatMuLaw {
			pcm = g711.DecodeUlaw(encoded)
		} else {
			pcm = g711.DecodeAlaw(encoded)
		}

		return &PlayableAudio{
			Format: Format{
				SampleRate: int(f.sampleRate),
				Channels:   int(f.channels),
				BitDepth:   16,
			},
			Data:      pcm,
			Container: "wav",
		}, nil

	default:
		return nil, fmt.Errorf("unsupported audio format: 0x%04x (only PCM and G.711 are supported)", f.tag)
	}
}
