package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
)

const mp3StreamBatch = 1024

// IsMP3 reports whether data starts with an ID3 tag or an MPEG audio frame sync
func IsMP3(data []byte) bool {
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

// DecodeMP3 decodes a complete MP3 payload into interleaved signed PCM
func DecodeMP3(data []byte) (*PlayableAudio, error) {
	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 stream: %w", err)
	}
	defer streamer.Close()

	if format.Precision < 1 || format.Precision > 4 {
		return nil, fmt.Errorf("unsupported MP3 precision: %d bytes", format.Precision)
	}

	out := playableFromBeep(format)
	frameSize := out.Format.FrameSize()
	if n := streamer.Len(); n > 0 {
		out.Data = make([]byte, 0, n*frameSize)
	}

	samples := make([][2]float64, mp3StreamBatch)
	frame := make([]byte, frameSize)
	for {
		n, ok := streamer.Stream(samples)
		for i := 0; i < n; i++ {
			format.EncodeSigned(frame, samples[i])
			out.Data = append(out.Data, frame...)
		}
		if !ok {
			break
		}
	}

	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}

	if len(out.Data) == 0 {
		return nil, fmt.Errorf("no audio data found")
	}

	return out, nil
}

func playableFromBeep(format beep.Format) *PlayableAudio {
	return &PlayableAudio{
		Format: Format{
			SampleRate: int(format.SampleRate),
			Channels:   format.NumChannels,
			BitDepth:   format.Precision * 8,
		},
		Container: "mp3",
	}
}
