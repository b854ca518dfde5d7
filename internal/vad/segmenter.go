package vad

import (
	"errors"
	"fmt"
	"time"
)

// ErrListenTimeout is returned when no speech starts within the listen window
var ErrListenTimeout = errors.New("no speech detected within listen timeout")

// SegmentState represents the current state of utterance segmentation
type SegmentState int

const (
	StateIdle SegmentState = iota
	StateCollecting
	StateWaitingSilence
)

func (s SegmentState) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateWaitingSilence:
		return "waiting_silence"
	default:
		return "idle"
	}
}

// SegmenterConfig contains utterance segmentation parameters. All
// durations are measured in audio time, not wall-clock time.
type SegmenterConfig struct {
	FrameDuration time.Duration // duration of one pushed frame
	ListenTimeout time.Duration // max wait for speech onset, 0 waits forever
	PhraseLimit   time.Duration // max utterance length, 0 is unbounded
	MinSpeech     time.Duration // speech shorter than this is discarded as noise
	Silence       time.Duration // trailing silence that ends an utterance
	PreRoll       time.Duration // audio kept from before speech onset
}

// Validate checks the segmentation parameters
func (c SegmenterConfig) Validate() error {
	if c.FrameDuration <= 0 {
		return fmt.Errorf("frame duration must be positive, got %v", c.FrameDuration)
	}
	if c.ListenTimeout < 0 || c.PhraseLimit < 0 || c.MinSpeech < 0 || c.PreRoll < 0 {
		return fmt.Errorf("durations cannot be negative")
	}
	if c.Silence < c.FrameDuration {
		return fmt.Errorf("silence (%v) must be at least one frame (%v)", c.Silence, c.FrameDuration)
	}
	if c.PhraseLimit > 0 && c.PhraseLimit <= c.MinSpeech {
		return fmt.Errorf("phrase limit (%v) must exceed min speech (%v)", c.PhraseLimit, c.MinSpeech)
	}
	return nil
}

// Segmenter accumulates classified frames until one utterance is complete.
// A Segmenter is not safe for concurrent use; one listen call owns it.
type Segmenter struct {
	config SegmenterConfig
	state  SegmentState

	preRoll    [][]byte
	preRollMax int
	collected  []byte

	waited  time.Duration // time spent without a kept utterance, discarded bursts included
	rolled  time.Duration // pre-roll already counted in waited
	length  time.Duration // collected utterance length
	speech  time.Duration // voiced time inside the utterance
	silence time.Duration // current run of trailing silence

	falseStarts uint64
}

// NewSegmenter creates a segmenter
func NewSegmenter(config SegmenterConfig) (*Segmenter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Segmenter{
		config:     config,
		state:      StateIdle,
		preRollMax: int(config.PreRoll / config.FrameDuration),
	}, nil
}

// Push feeds one frame and its classification. It returns true once an
// utterance is complete, or ErrListenTimeout if speech never started.
func (s *Segmenter) Push(frame []byte, hasVoice bool) (bool, error) {
	dur := s.config.FrameDuration

	switch s.state {
	case StateIdle:
		if hasVoice {
			s.startUtterance(frame)
			return s.phraseLimitReached(), nil
		}

		s.rememberPreRoll(frame)
		s.waited += dur
		if s.config.ListenTimeout > 0 && s.waited >= s.config.ListenTimeout {
			return false, ErrListenTimeout
		}

	case StateCollecting:
		s.collected = append(s.collected, frame...)
		s.length += dur
		if hasVoice {
			s.speech += dur
		} else {
			s.silence = dur
			s.state = StateWaitingSilence
		}

	case StateWaitingSilence:
		s.collected = append(s.collected, frame...)
		s.length += dur
		if hasVoice {
			// Speech resumed, go back to collecting
			s.speech += dur
			s.silence = 0
			s.state = StateCollecting
			break
		}

		s.silence += dur
		if s.silence >= s.config.Silence {
			if s.speech >= s.config.MinSpeech {
				return true, nil
			}
			s.discard()
			if s.config.ListenTimeout > 0 && s.waited >= s.config.ListenTimeout {
				return false, ErrListenTimeout
			}
		}
	}

	return s.phraseLimitReached(), nil
}

func (s *Segmenter) startUtterance(frame []byte) {
	s.collected = s.collected[:0]
	for _, f := range s.preRoll {
		s.collected = append(s.collected, f...)
		s.length += s.config.FrameDuration
	}
	s.rolled = s.length
	s.preRoll = s.preRoll[:0]

	s.collected = append(s.collected, frame...)
	s.length += s.config.FrameDuration
	s.speech = s.config.FrameDuration
	s.silence = 0
	s.state = StateCollecting
}

func (s *Segmenter) rememberPreRoll(frame []byte) {
	if s.preRollMax == 0 {
		return
	}
	if len(s.preRoll) == s.preRollMax {
		copy(s.preRoll, s.preRoll[1:])
		s.preRoll = s.preRoll[:len(s.preRoll)-1]
	}
	s.preRoll = append(s.preRoll, append([]byte(nil), frame...))
}

// discard drops a noise burst that was too short to be speech. The burst
// still counts against the listen window.
func (s *Segmenter) discard() {
	s.falseStarts++
	s.waited += s.length - s.rolled
	s.rolled = 0
	s.state = StateIdle
	s.collected = s.collected[:0]
	s.length = 0
	s.speech = 0
	s.silence = 0
}

func (s *Segmenter) phraseLimitReached() bool {
	return s.state != StateIdle && s.config.PhraseLimit > 0 && s.length >= s.config.PhraseLimit
}

// Utterance returns the collected audio
func (s *Segmenter) Utterance() []byte {
	return s.collected
}

// Speech returns the voiced time inside the collected utterance
func (s *Segmenter) Speech() time.Duration {
	return s.speech
}

// State returns the current segmentation state
func (s *Segmenter) State() SegmentState {
	return s.state
}

// FalseStarts returns how many noise bursts were discarded
func (s *Segmenter) FalseStarts() uint64 {
	return s.falseStarts
}

// Reset prepares the segmenter for the next utterance
func (s *Segmenter) Reset() {
	s.state = StateIdle
	s.preRoll = s.preRoll[:0]
	s.collected = nil
	s.waited = 0
	s.rolled = 0
	s.length = 0
	s.speech = 0
	s.silence = 0
}
