package vad

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testFrame = 10 * time.Millisecond

func testSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		FrameDuration: testFrame,
		ListenTimeout: 100 * time.Millisecond,
		PhraseLimit:   time.Second,
		MinSpeech:     30 * time.Millisecond,
		Silence:       50 * time.Millisecond,
		PreRoll:       20 * time.Millisecond,
	}
}

// feed pushes a voice pattern ('v' voiced, '.' silent) and reports the
// index at which the segmenter finished
func feed(t *testing.T, s *Segmenter, pattern string) (int, error) {
	t.Helper()
	for i, c := range pattern {
		done, err := s.Push([]byte{byte(i), 0}, c == 'v')
		if err != nil {
			return i, err
		}
		if done {
			return i, nil
		}
	}
	return -1, nil
}

func TestSegmenterConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SegmenterConfig)
	}{
		{"zero frame", func(c *SegmenterConfig) { c.FrameDuration = 0 }},
		{"negative timeout", func(c *SegmenterConfig) { c.ListenTimeout = -time.Second }},
		{"silence below frame", func(c *SegmenterConfig) { c.Silence = time.Millisecond }},
		{"phrase limit below min speech", func(c *SegmenterConfig) { c.PhraseLimit = 20 * time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testSegmenterConfig()
			tt.mutate(&cfg)
			if _, err := NewSegmenter(cfg); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestSegmenterUtterance(t *testing.T) {
	s, err := NewSegmenter(testSegmenterConfig())
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}

	// 3 idle frames, 5 voiced, 5 silent
	idx, err := feed(t, s, "...vvvvv.....")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if idx != 12 {
		t.Fatalf("Expected utterance to finish on frame 12, got %d", idx)
	}

	// 2 pre-roll frames + 5 voiced + 5 silent, 2 bytes each
	if got := len(s.Utterance()); got != 12*2 {
		t.Errorf("Expected 24 bytes of audio, got %d", got)
	}
	if s.Utterance()[0] != 1 {
		t.Errorf("Expected pre-roll to start at frame 1, got frame %d", s.Utterance()[0])
	}
	if s.Speech() != 5*testFrame {
		t.Errorf("Expected 50ms of speech, got %v", s.Speech())
	}
}

func TestSegmenterSpeechResumes(t *testing.T) {
	s, _ := NewSegmenter(testSegmenterConfig())

	// A pause shorter than the silence tail does not end the utterance
	idx, err := feed(t, s, "vvvv..vvv.....")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if idx != 13 {
		t.Errorf("Expected utterance to finish on frame 13, got %d", idx)
	}
	if s.Speech() != 7*testFrame {
		t.Errorf("Expected 70ms of speech, got %v", s.Speech())
	}
}

func TestSegmenterDiscardsNoiseBursts(t *testing.T) {
	s, _ := NewSegmenter(testSegmenterConfig())

	// A 2-frame click is shorter than MinSpeech and is discarded
	idx, err := feed(t, s, "vv.....vvvv.....")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if idx != 15 {
		t.Errorf("Expected utterance to finish on frame 15, got %d", idx)
	}
	if s.FalseStarts() != 1 {
		t.Errorf("Expected 1 false start, got %d", s.FalseStarts())
	}
}

func TestSegmenterListenTimeout(t *testing.T) {
	s, _ := NewSegmenter(testSegmenterConfig())

	idx, err := feed(t, s, "....................")
	if !errors.Is(err, ErrListenTimeout) {
		t.Fatalf("Expected ErrListenTimeout, got %v", err)
	}
	if idx != 9 {
		t.Errorf("Expected timeout on frame 9, got %d", idx)
	}
}

func TestSegmenterListenTimeoutDuringNoiseBursts(t *testing.T) {
	tests := []struct {
		name        string
		burst       string
		preRoll     time.Duration
		wantIdx     int
		falseStarts uint64
	}{
		// each burst spends 90ms, the fourth crosses 300ms
		{"back to back bursts", "v..", 0, 11, 4},
		// the idle frame doubles as pre-roll and is counted once
		{"bursts after a pause", ".v..", 30 * time.Millisecond, 11, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSegmenter(SegmenterConfig{
				FrameDuration: 30 * time.Millisecond,
				ListenTimeout: 300 * time.Millisecond,
				PhraseLimit:   time.Second,
				MinSpeech:     250 * time.Millisecond,
				Silence:       60 * time.Millisecond,
				PreRoll:       tt.preRoll,
			})
			if err != nil {
				t.Fatalf("NewSegmenter failed: %v", err)
			}

			idx, err := feed(t, s, strings.Repeat(tt.burst, 100))
			if !errors.Is(err, ErrListenTimeout) {
				t.Fatalf("Expected ErrListenTimeout, got %v (false starts %d)", err, s.FalseStarts())
			}
			if idx != tt.wantIdx {
				t.Errorf("Expected timeout on frame %d, got %d", tt.wantIdx, idx)
			}
			if s.FalseStarts() != tt.falseStarts {
				t.Errorf("Expected %d false starts, got %d", tt.falseStarts, s.FalseStarts())
			}
		})
	}
}

func TestSegmenterNoTimeoutOnceSpeaking(t *testing.T) {
	cfg := testSegmenterConfig()
	cfg.ListenTimeout = 30 * time.Millisecond
	s, _ := NewSegmenter(cfg)

	_, err := feed(t, s, "..vvvvvvvvvvv.....")
	if err != nil {
		t.Errorf("Expected no timeout after speech onset, got %v", err)
	}
}

func TestSegmenterPhraseLimit(t *testing.T) {
	cfg := testSegmenterConfig()
	cfg.PhraseLimit = 80 * time.Millisecond
	cfg.PreRoll = 0
	s, _ := NewSegmenter(cfg)

	idx, err := feed(t, s, "vvvvvvvvvvvvvvvvvvvv")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if idx != 7 {
		t.Errorf("Expected phrase limit on frame 7, got %d", idx)
	}
}

func TestSegmenterReset(t *testing.T) {
	s, _ := NewSegmenter(testSegmenterConfig())
	feed(t, s, "..vvvv.....")

	s.Reset()

	if s.State() != StateIdle {
		t.Errorf("Expected idle state, got %s", s.State())
	}
	if len(s.Utterance()) != 0 {
		t.Error("Expected no audio after reset")
	}

	// Timeout accounting restarts too
	_, err := feed(t, s, ".........")
	if err != nil {
		t.Errorf("Expected listen window to restart after reset, got %v", err)
	}
}
