package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/zaf/g711"
)

// Protocol constants
const (
	// Packet types
	PacketTypeHello = 0x01 // stream announcement carrying the audio format
	PacketTypeAudio = 0x02
	PacketTypeBye   = 0x03 // sender stopped streaming

	// Sample encodings
	EncodingPCM16 = 0x01 // signed 16-bit little-endian
	EncodingMuLaw = 0x02 // G.711 mu-law
	EncodingALaw  = 0x03 // G.711 A-law

	// Packet structure sizes
	HeaderSize             = 8  // 1 + 2 + 4 + 1 bytes
	HelloPayloadSize       = 44 // 4 + 1 + 1 + 2 + 32 + 4 bytes
	AudioPayloadHeaderSize = 4  // Sequence number (4 bytes)

	DeviceNameSize = 32

	// MaxPacketSize is the largest packet the length field can describe
	MaxPacketSize = 0xFFFF
)

// Header represents the 8-byte packet header
// Layout: [PacketType:1][PacketLen:2][StreamID:4][Encoding:1]
type Header struct {
	PacketType uint8
	PacketLen  uint16 // Total packet size (header + payload)
	StreamID   uint32 // Chosen by the sender, constant for one stream
	Encoding   uint8
}

// HelloPayload announces a stream
// Layout: [SampleRate:4][Channels:1][BitDepth:1][Reserved:2][DeviceName:32][Timestamp:4]
type HelloPayload struct {
	SampleRate uint32
	Channels   uint8
	BitDepth   uint8 // decoded sample width, 16 for every supported encoding
	DeviceName [DeviceNameSize]byte
	Timestamp  uint32 // Unix timestamp
}

// AudioPayload represents the audio packet payload
// Layout: [Sequence:4][AudioData:N]
type AudioPayload struct {
	Sequence  uint32
	AudioData []byte // encoded samples
}

// ParsedPacket represents a fully parsed packet
type ParsedPacket struct {
	Header *Header
	Hello  *HelloPayload // Only set for hello packets
	Audio  *AudioPayload // Only set for audio packets
}

// ParseHeader parses the 8-byte packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	return &Header{
		PacketType: data[0],
		PacketLen:  binary.BigEndian.Uint16(data[1:3]),
		StreamID:   binary.BigEndian.Uint32(data[3:7]),
		Encoding:   data[7],
	}, nil
}

// ParseHelloPayload parses the 44-byte hello payload
func ParseHelloPayload(data []byte) (*HelloPayload, error) {
	if len(data) < HelloPayloadSize {
		return nil, fmt.Errorf("hello payload too short: expected %d bytes, got %d",
			HelloPayloadSize, len(data))
	}

	payload := &HelloPayload{
		SampleRate: binary.BigEndian.Uint32(data[0:4]),
		Channels:   data[4],
		BitDepth:   data[5],
		Timestamp:  binary.BigEndian.Uint32(data[40:44]),
	}
	copy(payload.DeviceName[:], data[8:8+DeviceNameSize])

	return payload, nil
}

// ParseAudioPayload parses the audio packet payload (4-byte sequence + audio data)
func ParseAudioPayload(data []byte) (*AudioPayload, error) {
	if len(data) < AudioPayloadHeaderSize {
		return nil, fmt.Errorf("audio payload too short: expected at least %d bytes, got %d",
			AudioPayloadHeaderSize, len(data))
	}

	payload := &AudioPayload{
		Sequence: binary.BigEndian.Uint32(data[0:4]),
	}

	if len(data) > AudioPayloadHeaderSize {
		payload.AudioData = make([]byte, len(data)-AudioPayloadHeaderSize)
		copy(payload.AudioData, data[AudioPayloadHeaderSize:])
	}

	return payload, nil
}

// ParsePacket parses a complete packet (header + payload)
func ParsePacket(data []byte) (*ParsedPacket, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("packet too short: expected at least %d bytes, got %d", HeaderSize, len(data))
	}

	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	if int(header.PacketLen) != len(data) {
		return nil, fmt.Errorf("packet length mismatch: header says %d bytes, got %d bytes",
			header.PacketLen, len(data))
	}

	if err := ValidateHeader(header); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	packet := &ParsedPacket{Header: header}
	payloadData := data[HeaderSize:]

	switch header.PacketType {
	case PacketTypeHello:
		payload, err := ParseHelloPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse hello payload: %w", err)
		}
		packet.Hello = payload

	case PacketTypeAudio:
		payload, err := ParseAudioPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audio payload: %w", err)
		}
		packet.Audio = payload

	case PacketTypeBye:
		// no payload
	}

	return packet, nil
}

// ValidateHeader validates the packet header fields
func ValidateHeader(header *Header) error {
	if !IsValidPacketType(header.PacketType) {
		return fmt.Errorf("invalid packet type: 0x%02x", header.PacketType)
	}

	if !IsValidEncoding(header.Encoding) {
		return fmt.Errorf("invalid encoding: 0x%02x", header.Encoding)
	}

	if header.PacketLen < HeaderSize {
		return fmt.Errorf("packet length too small: %d (minimum %d)", header.PacketLen, HeaderSize)
	}

	payloadSize := int(header.PacketLen) - HeaderSize
	switch header.PacketType {
	case PacketTypeHello:
		if payloadSize != HelloPayloadSize {
			return fmt.Errorf("hello packet payload size mismatch: expected %d, got %d",
				HelloPayloadSize, payloadSize)
		}
	case PacketTypeAudio:
		if payloadSize < AudioPayloadHeaderSize {
			return fmt.Errorf("audio packet payload too small: expected at least %d, got %d",
				AudioPayloadHeaderSize, payloadSize)
		}
	case PacketTypeBye:
		if payloadSize != 0 {
			return fmt.Errorf("bye packet must not carry a payload, got %d bytes", payloadSize)
		}
	}

	return nil
}

// IsValidPacketType checks if the packet type is valid
func IsValidPacketType(ptype uint8) bool {
	return ptype == PacketTypeHello || ptype == PacketTypeAudio || ptype == PacketTypeBye
}

// IsValidEncoding checks if the sample encoding is valid
func IsValidEncoding(encoding uint8) bool {
	return encoding == EncodingPCM16 || encoding == EncodingMuLaw || encoding == EncodingALaw
}

// DecodeSamples converts encoded audio data to 16-bit little-endian PCM
func DecodeSamples(encoding uint8, data []byte) ([]byte, error) {
	switch encoding {
	case EncodingPCM16:
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("odd PCM16 payload length %d", len(data))
		}
		return data, nil
	case EncodingMuLaw:
		return g711.DecodeUlaw(data), nil
	case EncodingALaw:
		return g711.DecodeAlaw(data), nil
	default:
		return nil, fmt.Errorf("invalid encoding: 0x%02x", encoding)
	}
}

// BuildHello serializes a hello packet
func BuildHello(streamID uint32, encoding uint8, hello *HelloPayload) []byte {
	packet := make([]byte, HeaderSize+HelloPayloadSize)
	putHeader(packet, PacketTypeHello, streamID, encoding)

	payload := packet[HeaderSize:]
	binary.BigEndian.PutUint32(payload[0:4], hello.SampleRate)
	payload[4] = hello.Channels
	payload[5] = hello.BitDepth
	copy(payload[8:8+DeviceNameSize], hello.DeviceName[:])
	binary.BigEndian.PutUint32(payload[40:44], hello.Timestamp)

	return packet
}

// BuildAudio serializes an audio packet
func BuildAudio(streamID uint32, encoding uint8, sequence uint32, data []byte) ([]byte, error) {
	size := HeaderSize + AudioPayloadHeaderSize + len(data)
	if size > MaxPacketSize {
		return nil, fmt.Errorf("audio packet too large: %d bytes", size)
	}

	packet := make([]byte, size)
	putHeader(packet, PacketTypeAudio, streamID, encoding)
	binary.BigEndian.PutUint32(packet[HeaderSize:], sequence)
	copy(packet[HeaderSize+AudioPayloadHeaderSize:], data)

	return packet, nil
}

// BuildBye serializes a bye packet
func BuildBye(streamID uint32, encoding uint8) []byte {
	packet := make([]byte, HeaderSize)
	putHeader(packet, PacketTypeBye, streamID, encoding)
	return packet
}

func putHeader(packet []byte, packetType uint8, streamID uint32, encoding uint8) {
	packet[0] = packetType
	binary.BigEndian.PutUint16(packet[1:3], uint16(len(packet)))
	binary.BigEndian.PutUint32(packet[3:7], streamID)
	packet[7] = encoding
}

// ExtractString extracts a null-terminated string from a fixed-size byte array
func ExtractString(buf []byte) string {
	nullPos := len(buf)
	for i, b := range buf {
		if b == 0 {
			nullPos = i
			break
		}
	}
	return string(buf[:nullPos])
}

// GetDeviceName extracts the device name as a string
func (h *HelloPayload) GetDeviceName() string {
	return ExtractString(h.DeviceName[:])
}

// SetDeviceName stores name, truncated to the field size
func (h *HelloPayload) SetDeviceName(name string) {
	h.DeviceName = [DeviceNameSize]byte{}
	copy(h.DeviceName[:], name)
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	var packetType string
	switch h.PacketType {
	case PacketTypeHello:
		packetType = "Hello"
	case PacketTypeAudio:
		packetType = "Audio"
	case PacketTypeBye:
		packetType = "Bye"
	default:
		packetType = fmt.Sprintf("Unknown(0x%02x)", h.PacketType)
	}

	return fmt.Sprintf("Header{Type:%s, Len:%d, StreamID:%d, Encoding:%s}",
		packetType, h.PacketLen, h.StreamID, EncodingString(h.Encoding))
}

// String returns a human-readable representation of the hello payload
func (h *HelloPayload) String() string {
	return fmt.Sprintf("HelloPayload{Device:%q, SampleRate:%d, Channels:%d, BitDepth:%d, Timestamp:%d}",
		h.GetDeviceName(), h.SampleRate, h.Channels, h.BitDepth, h.Timestamp)
}

// String returns a human-readable representation of the audio payload
func (a *AudioPayload) String() string {
	return fmt.Sprintf("AudioPayload{Sequence:%d, AudioDataLen:%d}", a.Sequence, len(a.AudioData))
}

// EncodingString converts an encoding code to a human-readable string
func EncodingString(encoding uint8) string {
	switch encoding {
	case EncodingPCM16:
		return "PCM16"
	case EncodingMuLaw:
		return "MuLaw"
	case EncodingALaw:
		return "ALaw"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", encoding)
	}
}
