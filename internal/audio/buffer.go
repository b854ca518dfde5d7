package audio

import (
	"fmt"
	"sync"
	"time"
)

// ReorderBuffer restores packet order for sequenced PCM frames received
// over an unreliable transport. Frames are released in sequence order; a
// gap larger than maxGap is declared lost and skipped.
type ReorderBuffer struct {
	frameSize int // PCM frame alignment in bytes

	ready   []byte            // ordered audio waiting for Take
	pending map[uint32][]byte // out-of-order packets

	started     bool
	expectedSeq uint32
	maxGap      uint32

	lastUpdate   time.Time
	totalPackets uint32
	lostCount    uint32
	lateCount    uint32

	mu sync.Mutex
}

// BufferStats represents reorder buffer statistics for monitoring
type BufferStats struct {
	TotalPackets uint32  `json:"total_packets"`
	LostPackets  uint32  `json:"lost_packets"`
	LatePackets  uint32  `json:"late_packets"`
	LossRate     float64 `json:"loss_rate"`
	ReadyBytes   int     `json:"ready_bytes"`
	PendingSeqs  int     `json:"pending_sequences"`
	ExpectedSeq  uint32  `json:"expected_sequence"`
}

// NewReorderBuffer creates a buffer for frames of frameSize bytes
func NewReorderBuffer(maxGap uint32, frameSize int) *ReorderBuffer {
	if maxGap == 0 {
		maxGap = 20
	}
	if frameSize <= 0 {
		frameSize = 2
	}
	return &ReorderBuffer{
		frameSize: frameSize,
		pending:   make(map[uint32][]byte),
		maxGap:    maxGap,
	}
}

// Add inserts one sequenced packet
func (b *ReorderBuffer) Add(sequence uint32, data []byte) error {
	if len(data)%b.frameSize != 0 {
		return fmt.Errorf("audio data length %d is not a multiple of frame size %d", len(data), b.frameSize)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastUpdate = time.Now()
	b.totalPackets++

	if !b.started {
		b.started = true
		b.expectedSeq = sequence
	}

	switch {
	case sequence == b.expectedSeq:
		b.ready = append(b.ready, data...)
		b.expectedSeq++
		b.releasePending()

	case seqAfter(sequence, b.expectedSeq):
		if _, dup := b.pending[sequence]; !dup {
			b.pending[sequence] = append([]byte(nil), data...)
		}
		if sequence-b.expectedSeq > b.maxGap {
			b.skipGap()
		}

	default:
		b.lateCount++
		return fmt.Errorf("ignoring old/duplicate packet: seq=%d, expected=%d", sequence, b.expectedSeq)
	}

	return nil
}

// releasePending moves consecutive buffered packets into the ready queue
func (b *ReorderBuffer) releasePending() {
	for {
		data, ok := b.pending[b.expectedSeq]
		if !ok {
			return
		}
		b.ready = append(b.ready, data...)
		delete(b.pending, b.expectedSeq)
		b.expectedSeq++
	}
}

// skipGap declares the packets before the oldest pending one lost
func (b *ReorderBuffer) skipGap() {
	oldest := b.expectedSeq
	first := true
	for seq := range b.pending {
		if first || seqAfter(oldest, seq) {
			oldest = seq
			first = false
		}
	}
	b.lostCount += oldest - b.expectedSeq
	b.expectedSeq = oldest
	b.releasePending()
}

// Take returns and clears the ordered audio accumulated so far
func (b *ReorderBuffer) Take() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.ready
	b.ready = nil
	return out
}

// Reset drops all buffered audio and restarts sequence tracking
func (b *ReorderBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ready = nil
	b.pending = make(map[uint32][]byte)
	b.started = false
}

// GetStats returns current buffer statistics
func (b *ReorderBuffer) GetStats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	lossRate := float64(0)
	if b.totalPackets > 0 {
		lossRate = float64(b.lostCount) / float64(b.totalPackets+b.lostCount) * 100
	}

	return BufferStats{
		TotalPackets: b.totalPackets,
		LostPackets:  b.lostCount,
		LatePackets:  b.lateCount,
		LossRate:     lossRate,
		ReadyBytes:   len(b.ready),
		PendingSeqs:  len(b.pending),
		ExpectedSeq:  b.expectedSeq,
	}
}

// GetLastUpdate returns the time of the last accepted packet
func (b *ReorderBuffer) GetLastUpdate() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUpdate
}

// seqAfter reports whether a comes after b, tolerating wraparound
func seqAfter(a, b uint32) bool {
	return a != b && a-b < 1<<31
}
