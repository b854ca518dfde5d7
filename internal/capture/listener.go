package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/skypro1111/voiceloop/internal/audio"
	"github.com/skypro1111/voiceloop/internal/fault"
	"github.com/skypro1111/voiceloop/internal/vad"
)

const (
	stageCapture   = "capture"
	stageCalibrate = "calibrate"
	stageStartup   = "startup"

	// defaultStallTimeout bounds a single read when no listen timeout is configured
	defaultStallTimeout = 5 * time.Second
)

// Config contains listener parameters
type Config struct {
	FrameDuration time.Duration
	Detector      vad.DetectorConfig
	Segmenter     vad.SegmenterConfig
}

// Listener segments audio from a FrameSource into utterances
type Listener struct {
	source    FrameSource
	format    audio.Format
	frameSize int // bytes per segmentation frame
	config    Config
	logger    *slog.Logger

	detector  *vad.Detector
	segmenter *vad.Segmenter

	pending []byte // source bytes not yet cut into frames
}

// NewListener creates a listener over source. The source must deliver
// 16-bit PCM because the detector measures 16-bit energy.
func NewListener(source FrameSource, config Config, logger *slog.Logger) (*Listener, error) {
	format := source.Format()
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source format: %w", err)
	}
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("capture requires 16-bit audio, source delivers %s", format)
	}

	if config.FrameDuration <= 0 {
		return nil, fmt.Errorf("frame duration must be positive, got %v", config.FrameDuration)
	}
	samples := int(int64(format.SampleRate) * int64(config.FrameDuration) / int64(time.Second))
	if samples == 0 {
		return nil, fmt.Errorf("frame duration %v is shorter than one sample at %d Hz",
			config.FrameDuration, format.SampleRate)
	}

	config.Segmenter.FrameDuration = config.FrameDuration

	detector, err := vad.NewDetector(config.Detector)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}

	segmenter, err := vad.NewSegmenter(config.Segmenter)
	if err != nil {
		return nil, fmt.Errorf("failed to create segmenter: %w", err)
	}

	return &Listener{
		source:    source,
		format:    format,
		frameSize: samples * format.FrameSize(),
		config:    config,
		logger:    logger,
		detector:  detector,
		segmenter: segmenter,
	}, nil
}

// CheckSource opens and closes the source once so a missing input device
// is reported before the loop starts
func (l *Listener) CheckSource(ctx context.Context) error {
	if err := l.source.Start(ctx); err != nil {
		return fault.New(fault.KindDevice, stageStartup, fmt.Errorf("failed to start audio source: %w", err))
	}
	if err := l.source.Stop(); err != nil {
		return fault.New(fault.KindDevice, stageStartup, fmt.Errorf("failed to stop audio source: %w", err))
	}
	return nil
}

// Calibrate measures ambient noise for duration and sets the speech
// threshold from it. It returns the measured ambient energy.
func (l *Listener) Calibrate(ctx context.Context, duration time.Duration) (float64, error) {
	if err := l.source.Start(ctx); err != nil {
		return 0, fault.New(fault.KindDevice, stageCalibrate, fmt.Errorf("failed to start audio source: %w", err))
	}
	defer l.stopSource(stageCalibrate)

	want := int(duration / l.config.FrameDuration)
	if want < 1 {
		want = 1
	}

	frames := make([][]int16, 0, want)
	for len(frames) < want {
		frame, err := l.nextFrame(ctx, l.stallTimeout())
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, fault.New(fault.KindDevice, stageCalibrate, err)
		}
		frames = append(frames, audio.BytesToInt16(frame))
	}

	ambient, err := l.detector.Calibrate(frames)
	if err != nil {
		return 0, fault.New(fault.KindDevice, stageCalibrate, err)
	}

	l.logger.Info("Ambient noise calibrated",
		slog.Float64("ambient_energy", ambient),
		slog.Float64("threshold", l.detector.GetThreshold()),
		slog.Int("frames", len(frames)),
	)

	return ambient, nil
}

// Listen blocks until one utterance has been captured. It returns a
// capture_timeout fault when nobody speaks within the listen timeout and a
// device fault when the source fails or stalls.
func (l *Listener) Listen(ctx context.Context) (*audio.Utterance, error) {
	if err := l.source.Start(ctx); err != nil {
		return nil, fault.New(fault.KindDevice, stageCapture, fmt.Errorf("failed to start audio source: %w", err))
	}
	defer l.stopSource(stageCapture)

	l.segmenter.Reset()
	l.detector.Reset()
	l.pending = l.pending[:0]

	for {
		state := l.segmenter.State()

		frame, err := l.nextFrame(ctx, l.stallTimeout())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) && state == vad.StateIdle {
				return nil, fault.New(fault.KindCaptureTimeout, stageCapture,
					fmt.Errorf("no audio received: %w", vad.ErrListenTimeout))
			}
			return nil, fault.New(fault.KindDevice, stageCapture, err)
		}

		result := l.detector.Process(audio.BytesToInt16(frame))

		done, err := l.segmenter.Push(frame, result.HasVoice)
		if err != nil {
			if errors.Is(err, vad.ErrListenTimeout) {
				return nil, fault.New(fault.KindCaptureTimeout, stageCapture, err)
			}
			return nil, fault.New(fault.KindDevice, stageCapture, err)
		}

		if state == vad.StateIdle && l.segmenter.State() != vad.StateIdle {
			l.logger.Debug("Speech started", slog.Float64("energy", result.Energy))
		}

		if done {
			utterance := &audio.Utterance{
				Format:     l.format,
				PCM:        l.segmenter.Utterance(),
				CapturedAt: time.Now(),
				Speech:     l.segmenter.Speech(),
			}

			l.logger.Debug("Utterance captured",
				slog.Duration("duration", utterance.Duration()),
				slog.Duration("speech", utterance.Speech),
				slog.Uint64("false_starts", l.segmenter.FalseStarts()),
			)

			return utterance, nil
		}
	}
}

// nextFrame returns exactly one segmentation frame, reading from the source
// as often as needed. Each source read is bounded by timeout.
func (l *Listener) nextFrame(ctx context.Context, timeout time.Duration) ([]byte, error) {
	for len(l.pending) < l.frameSize {
		readCtx, cancel := context.WithTimeout(ctx, timeout)
		chunk, err := l.source.ReadFrame(readCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to read audio: %w", err)
		}
		l.pending = append(l.pending, chunk...)
	}

	frame := make([]byte, l.frameSize)
	copy(frame, l.pending)
	l.pending = append(l.pending[:0], l.pending[l.frameSize:]...)

	return frame, nil
}

func (l *Listener) stallTimeout() time.Duration {
	if l.config.Segmenter.ListenTimeout > 0 {
		return l.config.Segmenter.ListenTimeout
	}
	return defaultStallTimeout
}

func (l *Listener) stopSource(stage string) {
	if err := l.source.Stop(); err != nil {
		l.logger.Warn("Failed to stop audio source",
			slog.String("stage", stage),
			slog.String("error", err.Error()),
		)
	}
}

// Threshold returns the current speech energy threshold
func (l *Listener) Threshold() float64 {
	return l.detector.GetThreshold()
}

// DetectorStats returns detector statistics for the last listen call
func (l *Listener) DetectorStats() vad.DetectorStats {
	return l.detector.GetStats()
}

// Format returns the captured audio format
func (l *Listener) Format() audio.Format {
	return l.format
}
