package audio

import (
	"bytes"
	"testing"
)

func packet(seq byte) []byte {
	return []byte{seq, 0, seq, 0}
}

func TestReorderBufferInOrder(t *testing.T) {
	buffer := NewReorderBuffer(10, 2)

	for seq := uint32(100); seq < 105; seq++ {
		if err := buffer.Add(seq, packet(byte(seq))); err != nil {
			t.Fatalf("Add(%d) failed: %v", seq, err)
		}
	}

	out := buffer.Take()
	if len(out) != 5*4 {
		t.Fatalf("Expected 20 bytes, got %d", len(out))
	}
	if out[0] != 100 || out[16] != 104 {
		t.Errorf("Unexpected ordering: %v", out)
	}

	if more := buffer.Take(); len(more) != 0 {
		t.Errorf("Expected Take to drain the buffer, got %d bytes", len(more))
	}
}

func TestReorderBufferSequenceOrdering(t *testing.T) {
	buffer := NewReorderBuffer(10, 2)

	order := []uint32{1, 3, 2, 5, 4}
	for _, seq := range order {
		if err := buffer.Add(seq, packet(byte(seq))); err != nil {
			t.Fatalf("Add(%d) failed: %v", seq, err)
		}
	}

	var expected []byte
	for seq := byte(1); seq <= 5; seq++ {
		expected = append(expected, packet(seq)...)
	}

	if out := buffer.Take(); !bytes.Equal(out, expected) {
		t.Errorf("Expected %v, got %v", expected, out)
	}

	stats := buffer.GetStats()
	if stats.PendingSeqs != 0 {
		t.Errorf("Expected no pending packets, got %d", stats.PendingSeqs)
	}
}

func TestReorderBufferPacketLoss(t *testing.T) {
	buffer := NewReorderBuffer(3, 2)

	buffer.Add(1, packet(1))
	// 2..5 never arrive
	buffer.Add(6, packet(6))
	buffer.Add(7, packet(7))

	stats := buffer.GetStats()
	if stats.LostPackets != 4 {
		t.Errorf("Expected 4 lost packets, got %d", stats.LostPackets)
	}

	expected := append(append(packet(1), packet(6)...), packet(7)...)
	if out := buffer.Take(); !bytes.Equal(out, expected) {
		t.Errorf("Expected %v, got %v", expected, out)
	}
}

func TestReorderBufferLatePackets(t *testing.T) {
	buffer := NewReorderBuffer(10, 2)

	buffer.Add(10, packet(10))
	buffer.Add(11, packet(11))

	if err := buffer.Add(10, packet(10)); err == nil {
		t.Error("Expected error for duplicate packet")
	}
	if err := buffer.Add(5, packet(5)); err == nil {
		t.Error("Expected error for old packet")
	}

	if stats := buffer.GetStats(); stats.LatePackets != 2 {
		t.Errorf("Expected 2 late packets, got %d", stats.LatePackets)
	}
}

func TestReorderBufferWraparound(t *testing.T) {
	buffer := NewReorderBuffer(10, 2)

	buffer.Add(0xFFFFFFFE, packet(1))
	buffer.Add(0, packet(3))
	buffer.Add(0xFFFFFFFF, packet(2))

	expected := append(append(packet(1), packet(2)...), packet(3)...)
	if out := buffer.Take(); !bytes.Equal(out, expected) {
		t.Errorf("Expected %v, got %v", expected, out)
	}
}

func TestReorderBufferInvalidData(t *testing.T) {
	buffer := NewReorderBuffer(10, 2)

	if err := buffer.Add(1, []byte{1, 2, 3}); err == nil {
		t.Error("Expected error for odd-length PCM")
	}
}

func TestReorderBufferReset(t *testing.T) {
	buffer := NewReorderBuffer(10, 2)
	buffer.Add(1, packet(1))
	buffer.Add(3, packet(3))

	buffer.Reset()

	if out := buffer.Take(); len(out) != 0 {
		t.Errorf("Expected empty buffer after reset, got %d bytes", len(out))
	}

	// Sequence tracking restarts from the next packet
	if err := buffer.Add(50, packet(50)); err != nil {
		t.Errorf("Expected packet after reset to be accepted: %v", err)
	}
	if out := buffer.Take(); !bytes.Equal(out, packet(50)) {
		t.Errorf("Expected %v, got %v", packet(50), out)
	}
}
