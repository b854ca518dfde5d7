package audio

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/skypro1111/voiceloop/internal/fault"
)

func TestAssembleSilentSecond(t *testing.T) {
	sampleRate := 16000
	wavData, err := EncodeWAVSamples(make([]int16, sampleRate), sampleRate, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	// Deliver the reply in small reads like a chunked HTTP body
	stream := iotest.HalfReader(bytes.NewReader(wavData))

	playable, err := NewAssembler(0).Assemble(stream)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if playable.Format.SampleRate != sampleRate {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, playable.Format.SampleRate)
	}
	if playable.Format.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", playable.Format.Channels)
	}
	if playable.Format.BitDepth != 16 {
		t.Errorf("Expected 16-bit width, got %d", playable.Format.BitDepth)
	}
	if playable.Frames() != sampleRate {
		t.Errorf("Expected %d frames (1s x rate), got %d", sampleRate, playable.Frames())
	}
	if playable.Container != "wav" {
		t.Errorf("Expected wav container, got %q", playable.Container)
	}
	if playable.EncodedSize != len(wavData) {
		t.Errorf("Expected encoded size %d, got %d", len(wavData), playable.EncodedSize)
	}
}

func TestAssembleRoundTrip(t *testing.T) {
	formats := []Format{
		{SampleRate: 16000, Channels: 1, BitDepth: 16},
		{SampleRate: 24000, Channels: 2, BitDepth: 16},
		{SampleRate: 22050, Channels: 1, BitDepth: 8},
	}

	for _, format := range formats {
		t.Run(format.String(), func(t *testing.T) {
			original := make([]byte, format.FrameSize()*333)
			for i := range original {
				original[i] = byte((i * 31) ^ (i >> 3))
			}

			wavData, err := EncodeWAV(format, original)
			if err != nil {
				t.Fatalf("EncodeWAV failed: %v", err)
			}

			playable, err := NewAssembler(0).Assemble(bytes.NewReader(wavData))
			if err != nil {
				t.Fatalf("Assemble failed: %v", err)
			}

			if !bytes.Equal(playable.Data, original) {
				t.Error("Assembled PCM is not bit-identical to the encoded PCM")
			}
			if playable.Format != format {
				t.Errorf("Expected format %s, got %s", format, playable.Format)
			}
		})
	}
}

func TestAssembleDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text body", []byte("internal server error")},
		{"truncated wav", []byte("RIFF\x00\x00\x00\x00WAVEfmt ")},
		{"garbage with mpeg sync", []byte{0xFF, 0xFB, 0x00, 0x00, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAssembler(0).Assemble(bytes.NewReader(tt.data))
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !fault.Is(err, fault.KindDecode) {
				t.Errorf("Expected decode error, got %v", err)
			}
		})
	}
}

func TestAssembleReplyLimit(t *testing.T) {
	wavData, _ := EncodeWAVSamples(make([]int16, 1000), 8000, 1)

	_, err := NewAssembler(100).Assemble(bytes.NewReader(wavData))
	if !fault.Is(err, fault.KindDecode) {
		t.Errorf("Expected oversized reply to be a decode error, got %v", err)
	}
}

func TestAssembleStreamFailure(t *testing.T) {
	wavData, _ := EncodeWAVSamples(make([]int16, 1000), 8000, 1)
	stream := io.MultiReader(bytes.NewReader(wavData[:100]), iotest.ErrReader(io.ErrUnexpectedEOF))

	_, err := NewAssembler(0).Assemble(stream)
	if !fault.Is(err, fault.KindTransport) {
		t.Fatalf("Expected transport error, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("Expected underlying cause to be preserved")
	}
}

func TestAssemblePreservesClassifiedStreamErrors(t *testing.T) {
	classified := fault.Newf(fault.KindTransport, "turn", "connection reset")
	stream := iotest.ErrReader(classified)

	_, err := NewAssembler(0).Assemble(stream)
	if fault.StageOf(err) != "turn" {
		t.Errorf("Expected stage of the stream error to be kept, got %q", fault.StageOf(err))
	}
}

func TestIsMP3(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"id3 tag", []byte("ID3\x04\x00"), true},
		{"frame sync", []byte{0xFF, 0xFB, 0x90}, true},
		{"wav", []byte("RIFF"), false},
		{"short", []byte{0xFF}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMP3(tt.data); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
