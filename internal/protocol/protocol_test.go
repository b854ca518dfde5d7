package protocol

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/zaf/g711"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expected    *Header
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid hello header",
			data: []byte{
				0x01,       // PacketType: Hello
				0x00, 0x34, // PacketLen: 52 (8 + 44)
				0x00, 0x00, 0x30, 0x39, // StreamID: 12345
				0x01, // Encoding: PCM16
			},
			expected: &Header{
				PacketType: PacketTypeHello,
				PacketLen:  52,
				StreamID:   12345,
				Encoding:   EncodingPCM16,
			},
		},
		{
			name: "valid audio header",
			data: []byte{
				0x02,       // PacketType: Audio
				0x01, 0x00, // PacketLen: 256
				0x12, 0x34, 0x56, 0x78, // StreamID: 305419896
				0x02, // Encoding: MuLaw
			},
			expected: &Header{
				PacketType: PacketTypeAudio,
				PacketLen:  256,
				StreamID:   305419896,
				Encoding:   EncodingMuLaw,
			},
		},
		{
			name:        "header too short",
			data:        []byte{0x01, 0x00},
			expectError: true,
			errorMsg:    "header too short",
		},
		{
			name:        "empty data",
			data:        []byte{},
			expectError: true,
			errorMsg:    "header too short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseHeader(tt.data)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if *result != *tt.expected {
				t.Errorf("Expected header %+v, got %+v", tt.expected, result)
			}
		})
	}
}

func TestHelloRoundTrip(t *testing.T) {
	hello := &HelloPayload{
		SampleRate: 16000,
		Channels:   1,
		BitDepth:   16,
		Timestamp:  1701234567,
	}
	hello.SetDeviceName("kitchen-esp32")

	packet := BuildHello(42, EncodingPCM16, hello)
	if len(packet) != HeaderSize+HelloPayloadSize {
		t.Fatalf("Expected %d byte packet, got %d", HeaderSize+HelloPayloadSize, len(packet))
	}

	parsed, err := ParsePacket(packet)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}

	if parsed.Hello == nil || parsed.Audio != nil {
		t.Fatalf("Expected only a hello payload, got %+v", parsed)
	}
	if parsed.Header.StreamID != 42 {
		t.Errorf("Expected stream 42, got %d", parsed.Header.StreamID)
	}
	if *parsed.Hello != *hello {
		t.Errorf("Expected %s, got %s", hello, parsed.Hello)
	}
	if parsed.Hello.GetDeviceName() != "kitchen-esp32" {
		t.Errorf("Unexpected device name %q", parsed.Hello.GetDeviceName())
	}
}

func TestSetDeviceNameTruncates(t *testing.T) {
	var hello HelloPayload
	hello.SetDeviceName(strings.Repeat("x", 40))
	if got := hello.GetDeviceName(); len(got) != DeviceNameSize {
		t.Errorf("Expected name truncated to %d bytes, got %d", DeviceNameSize, len(got))
	}

	hello.SetDeviceName("short")
	if got := hello.GetDeviceName(); got != "short" {
		t.Errorf("Expected previous name cleared, got %q", got)
	}
}

func TestParseAudioPayload(t *testing.T) {
	audioData := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	data := make([]byte, 4+len(audioData))
	binary.BigEndian.PutUint32(data[0:], 12345)
	copy(data[4:], audioData)

	tests := []struct {
		name        string
		data        []byte
		expectError bool
		validate    func(*AudioPayload) bool
	}{
		{
			name: "valid audio payload with data",
			data: data,
			validate: func(p *AudioPayload) bool {
				return p.Sequence == 12345 && bytes.Equal(p.AudioData, audioData)
			},
		},
		{
			name: "audio payload with sequence only",
			data: []byte{0x00, 0x00, 0x00, 0x01},
			validate: func(p *AudioPayload) bool {
				return p.Sequence == 1 && len(p.AudioData) == 0
			},
		},
		{
			name:        "payload too short",
			data:        []byte{0x00, 0x00},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseAudioPayload(tt.data)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if !tt.validate(result) {
				t.Errorf("Validation failed for result: %+v", result)
			}
		})
	}
}

func TestParsePacket(t *testing.T) {
	audioPacket, err := BuildAudio(67890, EncodingPCM16, 7, []byte{0x01, 0x02, 0x03, 0x04})
	if err != nil {
		t.Fatalf("BuildAudio failed: %v", err)
	}

	badEncoding := append([]byte(nil), audioPacket...)
	badEncoding[7] = 0x99

	badType := append([]byte(nil), audioPacket...)
	badType[0] = 0x99

	lengthMismatch := append([]byte(nil), audioPacket...)
	binary.BigEndian.PutUint16(lengthMismatch[1:], 999)

	byeWithPayload := append(BuildBye(1, EncodingPCM16), 0x00)
	binary.BigEndian.PutUint16(byeWithPayload[1:], uint16(len(byeWithPayload)))

	tests := []struct {
		name        string
		data        []byte
		expectError bool
		errorMsg    string
		validate    func(*ParsedPacket) bool
	}{
		{
			name: "valid audio packet",
			data: audioPacket,
			validate: func(p *ParsedPacket) bool {
				return p.Header.PacketType == PacketTypeAudio &&
					p.Audio != nil && p.Audio.Sequence == 7 &&
					p.Hello == nil
			},
		},
		{
			name: "valid bye packet",
			data: BuildBye(1, EncodingMuLaw),
			validate: func(p *ParsedPacket) bool {
				return p.Header.PacketType == PacketTypeBye && p.Audio == nil && p.Hello == nil
			},
		},
		{
			name:        "packet too short",
			data:        []byte{0x01, 0x00},
			expectError: true,
			errorMsg:    "packet too short",
		},
		{
			name:        "invalid packet type",
			data:        badType,
			expectError: true,
			errorMsg:    "invalid packet type",
		},
		{
			name:        "invalid encoding",
			data:        badEncoding,
			expectError: true,
			errorMsg:    "invalid encoding",
		},
		{
			name:        "packet length mismatch",
			data:        lengthMismatch,
			expectError: true,
			errorMsg:    "packet length mismatch",
		},
		{
			name:        "bye with payload",
			data:        byeWithPayload,
			expectError: true,
			errorMsg:    "bye packet must not carry a payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParsePacket(tt.data)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if !tt.validate(result) {
				t.Errorf("Validation failed for result: %+v", result)
			}
		})
	}
}

func TestValidateHeader(t *testing.T) {
	tests := []struct {
		name     string
		header   *Header
		errorMsg string
	}{
		{
			name:   "valid hello header",
			header: &Header{PacketType: PacketTypeHello, PacketLen: 52, Encoding: EncodingPCM16},
		},
		{
			name:   "valid audio header",
			header: &Header{PacketType: PacketTypeAudio, PacketLen: 100, Encoding: EncodingALaw},
		},
		{
			name:     "packet length too small",
			header:   &Header{PacketType: PacketTypeAudio, PacketLen: 5, Encoding: EncodingPCM16},
			errorMsg: "packet length too small",
		},
		{
			name:     "hello packet wrong payload size",
			header:   &Header{PacketType: PacketTypeHello, PacketLen: 100, Encoding: EncodingPCM16},
			errorMsg: "hello packet payload size mismatch",
		},
		{
			name:     "audio packet payload too small",
			header:   &Header{PacketType: PacketTypeAudio, PacketLen: 10, Encoding: EncodingPCM16},
			errorMsg: "audio packet payload too small",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHeader(tt.header)

			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error containing '%s', got %v", tt.errorMsg, err)
			}
		})
	}
}

func TestBuildAudioTooLarge(t *testing.T) {
	if _, err := BuildAudio(1, EncodingPCM16, 0, make([]byte, MaxPacketSize)); err == nil {
		t.Error("Expected error for oversized packet")
	}
}

func TestDecodeSamples(t *testing.T) {
	pcm := []byte{0x10, 0x00, 0xF0, 0xFF, 0x00, 0x40}

	t.Run("pcm16 passthrough", func(t *testing.T) {
		out, err := DecodeSamples(EncodingPCM16, pcm)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !bytes.Equal(out, pcm) {
			t.Errorf("Expected passthrough, got % x", out)
		}
	})

	t.Run("odd pcm16", func(t *testing.T) {
		if _, err := DecodeSamples(EncodingPCM16, pcm[:3]); err == nil {
			t.Error("Expected error for odd PCM16 payload")
		}
	})

	t.Run("mu-law expands to 16-bit", func(t *testing.T) {
		encoded := g711.EncodeUlaw(pcm)
		out, err := DecodeSamples(EncodingMuLaw, encoded)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(out) != 2*len(encoded) {
			t.Errorf("Expected %d bytes, got %d", 2*len(encoded), len(out))
		}
	})

	t.Run("a-law expands to 16-bit", func(t *testing.T) {
		encoded := g711.EncodeAlaw(pcm)
		out, err := DecodeSamples(EncodingALaw, encoded)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(out) != 2*len(encoded) {
			t.Errorf("Expected %d bytes, got %d", 2*len(encoded), len(out))
		}
	})

	t.Run("unknown encoding", func(t *testing.T) {
		if _, err := DecodeSamples(0x42, pcm); err == nil {
			t.Error("Expected error for unknown encoding")
		}
	})
}

func TestExtractString(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"normal string with null terminator", []byte("hello\x00world\x00\x00\x00"), "hello"},
		{"string without null terminator", []byte("hello"), "hello"},
		{"empty string", []byte("\x00\x00\x00\x00"), ""},
		{"string with unicode", []byte("héllo\x00test"), "héllo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := ExtractString(tt.input); result != tt.expected {
				t.Errorf("ExtractString(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestStringMethods(t *testing.T) {
	header := &Header{PacketType: PacketTypeAudio, PacketLen: 172, StreamID: 12345, Encoding: EncodingALaw}
	headerStr := header.String()
	if !strings.Contains(headerStr, "Audio") || !strings.Contains(headerStr, "12345") || !strings.Contains(headerStr, "ALaw") {
		t.Errorf("Header.String() missing expected content: %s", headerStr)
	}

	audio := &AudioPayload{Sequence: 12345, AudioData: make([]byte, 160)}
	audioStr := audio.String()
	if !strings.Contains(audioStr, "12345") || !strings.Contains(audioStr, "160") {
		t.Errorf("AudioPayload.String() missing expected content: %s", audioStr)
	}

	if EncodingString(0x42) != "Unknown(0x42)" {
		t.Errorf("Unexpected unknown encoding string: %s", EncodingString(0x42))
	}
}
