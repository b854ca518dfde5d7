package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Format describes interleaved little-endian PCM
type Format struct {
	SampleRate int `json:"sample_rate" yaml:"sample_rate"`
	Channels   int `json:"channels" yaml:"channels"`
	BitDepth   int `json:"bit_depth" yaml:"bit_depth"`
}

// DefaultCaptureFormat is the microphone format used for speech recognition
func DefaultCaptureFormat() Format {
	return Format{
		SampleRate: 16000,
		Channels:   1,
		BitDepth:   16,
	}
}

// Validate checks that the format describes playable PCM
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", f.Channels)
	}
	switch f.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth: %d", f.BitDepth)
	}
	return nil
}

// BytesPerSample returns the width of one sample of one channel
func (f Format) BytesPerSample() int {
	return f.BitDepth / 8
}

// FrameSize returns the size in bytes of one frame (one sample per channel)
func (f Format) FrameSize() int {
	return f.BytesPerSample() * f.Channels
}

// Frames returns the number of whole frames in n bytes
func (f Format) Frames(n int) int {
	size := f.FrameSize()
	if size == 0 {
		return 0
	}
	return n / size
}

// Duration returns the playback time of n bytes
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Frames(n)) * time.Second / time.Duration(f.SampleRate)
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

// PlayableAudio is a fully decoded reply ready for the output device
type PlayableAudio struct {
	Format    Format
	Data      []byte // interleaved little-endian PCM
	Container string // "wav" or "mp3"

	// EncodedSize is the size of the container the audio was decoded from
	EncodedSize int
}

// Frames returns the frame count of the decoded audio
func (p *PlayableAudio) Frames() int {
	return p.Format.Frames(len(p.Data))
}

// Duration returns the playback duration of the decoded audio
func (p *PlayableAudio) Duration() time.Duration {
	return p.Format.Duration(len(p.Data))
}

// Utterance is one captured segment of speech
type Utterance struct {
	Format     Format
	PCM        []byte
	CapturedAt time.Time
	Speech     time.Duration // speech time excluding pre-roll and silence tail
}

// Duration returns the total captured audio time
func (u *Utterance) Duration() time.Duration {
	return u.Format.Duration(len(u.PCM))
}

// WAV encodes the utterance for upload to a recognizer
func (u *Utterance) WAV() ([]byte, error) {
	return EncodeWAV(u.Format, u.PCM)
}

// Int16ToBytes converts samples to little-endian PCM bytes
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToInt16 converts little-endian 16-bit PCM to samples, ignoring a trailing odd byte
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
