package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypro1111/voiceloop/internal/audio"
	"github.com/skypro1111/voiceloop/internal/events"
	"github.com/skypro1111/voiceloop/internal/fault"
	"github.com/skypro1111/voiceloop/internal/metrics"
)

const (
	outcomeCompleted = "completed"

	stageCapture    = "capture"
	stageTranscribe = "transcribe"
	stagePlayback   = "playback"
)

// Config contains loop parameters
type Config struct {
	// PlaybackGrace is added to the reply duration to bound playback
	PlaybackGrace time.Duration
	// DeviceBackoff is the pause after a capture device failure
	DeviceBackoff time.Duration
}

// Loop drives one utterance at a time through the conversation stages
type Loop struct {
	stages  Stages
	config  Config
	session Session
	logger  *slog.Logger
	metrics *metrics.Metrics
	bus     *events.Bus

	state atomic.Int32
	turn  atomic.Uint64

	mu     sync.RWMutex
	status Status
}

// NewLoop creates a loop in the Listening state. bus may be nil.
func NewLoop(stages Stages, config Config, session Session, logger *slog.Logger, m *metrics.Metrics, bus *events.Bus) (*Loop, error) {
	if stages.Capturer == nil || stages.Transcriber == nil || stages.Turns == nil ||
		stages.Assembler == nil || stages.Player == nil {
		return nil, fmt.Errorf("capturer, transcriber, turn sender, assembler and player are required")
	}
	if session.ID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}
	if config.PlaybackGrace < 0 {
		return nil, fmt.Errorf("playback grace cannot be negative, got %v", config.PlaybackGrace)
	}
	if config.DeviceBackoff <= 0 {
		config.DeviceBackoff = time.Second
	}

	l := &Loop{
		stages:  stages,
		config:  config,
		session: session,
		logger:  logger.With(slog.String("session", session.ID)),
		metrics: m,
		bus:     bus,
	}
	l.status.Session = session
	m.SetChatting(false)

	return l, nil
}

// Run captures and answers utterances until ctx is cancelled
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Conversation loop started")

	for {
		if err := ctx.Err(); err != nil {
			l.logger.Info("Conversation loop stopped", slog.Uint64("turns", l.turn.Load()))
			return err
		}

		err := l.Step(ctx)
		if err == nil || ctx.Err() != nil {
			continue
		}

		// A failing microphone would otherwise spin
		if fault.Is(err, fault.KindDevice) && fault.StageOf(err) != stagePlayback {
			select {
			case <-time.After(l.config.DeviceBackoff):
			case <-ctx.Done():
			}
		}
	}
}

// Step performs one listen cycle: capture, transcribe and, when speech was
// recognized, a full turn. Failures are logged and returned; the loop is
// always Listening again when Step returns.
func (l *Loop) Step(ctx context.Context) error {
	if s := l.State(); s != Listening {
		return fmt.Errorf("cannot capture while %s", s)
	}

	utterance, err := l.stages.Capturer.Listen(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.captureFailed(err)
		return err
	}

	l.metrics.RecordCapture("utterance", utterance.Duration().Seconds())
	l.updateStatus(func(s *Status) { s.Utterances++ })
	l.publish(events.Event{Type: events.TypeUtterance, Duration: utterance.Duration().Seconds()})

	start := time.Now()
	text, err := l.stages.Transcriber.Transcribe(ctx, utterance)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.transcriptionFailed(err, time.Since(start))
		return err
	}
	l.metrics.RecordTranscriptionSuccess(time.Since(start).Seconds())

	l.logger.Info("Heard", slog.String("transcript", text))
	l.updateStatus(func(s *Status) { s.LastTranscript = text })
	l.publish(events.Event{Type: events.TypeTranscript, Text: text})

	return l.RunTurn(ctx, text)
}

// RunTurn sends message to the turn service and plays the reply. The loop
// is Chatting for the duration of the call.
func (l *Loop) RunTurn(ctx context.Context, message string) (err error) {
	if !l.state.CompareAndSwap(int32(Listening), int32(Chatting)) {
		return fmt.Errorf("turn already in progress")
	}
	turn := l.turn.Add(1)
	l.stateChanged(Chatting, turn)

	start := time.Now()
	defer func() {
		l.finishTurn(turn, start, err)
		l.state.Store(int32(Listening))
		l.stateChanged(Listening, turn)
	}()

	stream, err := l.stages.Turns.SendTurn(ctx, message, l.session.ID)
	if err != nil {
		return err
	}

	playable, err := l.stages.Assembler.Assemble(stream)
	stream.Close()
	if err != nil {
		if fault.Is(err, fault.KindDecode) {
			l.metrics.RecordDecodeFailure()
		}
		return err
	}

	l.metrics.RecordReply(time.Since(start).Seconds(), playable.EncodedSize, playable.Duration().Seconds())
	l.publish(events.Event{Type: events.TypeReply, Turn: turn, Duration: playable.Duration().Seconds()})
	l.logger.Debug("Reply assembled",
		slog.Uint64("turn", turn),
		slog.String("container", playable.Container),
		slog.String("format", playable.Format.String()),
		slog.Duration("duration", playable.Duration()),
	)

	l.archive(turn, playable)

	return l.play(ctx, playable)
}

// play writes the reply to the speaker, bounded by its duration plus grace
func (l *Loop) play(ctx context.Context, playable *audio.PlayableAudio) error {
	limit := playable.Duration() + l.config.PlaybackGrace
	playCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	start := time.Now()
	err := l.stages.Player.Play(playCtx, playable)
	l.metrics.RecordPlayback(err == nil, time.Since(start).Seconds())

	if err != nil {
		if fault.KindOf(err) == fault.KindUnknown {
			err = fault.New(fault.KindPlayback, stagePlayback, err)
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fault.New(fault.KindPlayback, stagePlayback,
				fmt.Errorf("playback exceeded %v: %w", limit, err))
		}
		return err
	}
	return nil
}

func (l *Loop) archive(turn uint64, playable *audio.PlayableAudio) {
	if l.stages.Archive == nil {
		return
	}
	path, err := l.stages.Archive.Save(l.session.ID, turn, playable)
	if err != nil {
		l.logger.Warn("Failed to archive reply",
			slog.Uint64("turn", turn),
			slog.String("error", err.Error()),
		)
		return
	}
	l.logger.Debug("Reply archived", slog.Uint64("turn", turn), slog.String("path", path))
}

// finishTurn logs and records the outcome of a turn
func (l *Loop) finishTurn(turn uint64, start time.Time, err error) {
	elapsed := time.Since(start)

	if err == nil {
		l.metrics.RecordTurn(outcomeCompleted, elapsed.Seconds())
		l.updateStatus(func(s *Status) {
			s.CompletedTurns++
			s.LastTurnAt = time.Now()
		})
		l.publish(events.Event{Type: events.TypeTurnEnd, Turn: turn, Duration: elapsed.Seconds()})
		l.logger.Info("Turn completed", slog.Uint64("turn", turn), slog.Duration("elapsed", elapsed))
		return
	}

	kind := fault.KindOf(err)
	l.metrics.RecordTurn(kind.String(), elapsed.Seconds())
	l.updateStatus(func(s *Status) {
		s.FailedTurns++
		s.LastError = err.Error()
		s.LastTurnAt = time.Now()
	})
	l.publishFailure(turn, err)

	attrs := []any{
		slog.Uint64("turn", turn),
		slog.String("stage", stageOf(err, "turn")),
		slog.String("kind", kind.String()),
		slog.String("error", err.Error()),
	}

	if errors.Is(err, context.Canceled) {
		l.logger.Info("Turn interrupted by shutdown", attrs...)
		return
	}

	switch kind {
	case fault.KindTransport:
		l.logger.Error("Turn request failed", attrs...)
	case fault.KindDecode:
		l.logger.Error("Reply could not be decoded", attrs...)
	case fault.KindPlayback, fault.KindDevice:
		l.logger.Error("Reply playback failed", attrs...)
	default:
		l.logger.Error("Turn failed", attrs...)
	}
}

func (l *Loop) captureFailed(err error) {
	kind := fault.KindOf(err)
	if kind == fault.KindCaptureTimeout {
		l.metrics.RecordCapture("timeout", 0)
		l.updateStatus(func(s *Status) { s.CaptureTimeouts++ })
		l.logger.Debug("No speech detected, listening again")
		return
	}

	l.metrics.RecordCapture("error", 0)
	l.updateStatus(func(s *Status) { s.LastError = err.Error() })
	l.publishFailure(0, err)
	l.logger.Error("Audio capture failed",
		slog.String("stage", stageOf(err, stageCapture)),
		slog.String("kind", kind.String()),
		slog.String("error", err.Error()),
	)
}

func (l *Loop) transcriptionFailed(err error, elapsed time.Duration) {
	kind := fault.KindOf(err)
	l.metrics.RecordTranscriptionFailure(kind.String(), elapsed.Seconds())
	l.updateStatus(func(s *Status) {
		s.TranscriptionFailures++
		s.LastError = err.Error()
	})
	l.publishFailure(0, err)

	attrs := []any{
		slog.String("stage", stageOf(err, stageTranscribe)),
		slog.String("kind", kind.String()),
		slog.String("error", err.Error()),
	}

	if kind == fault.KindUnintelligible {
		l.logger.Info("Could not understand audio", attrs...)
		return
	}
	l.logger.Warn("Speech recognition failed", attrs...)
}

func (l *Loop) stateChanged(state State, turn uint64) {
	l.metrics.SetChatting(state == Chatting)
	l.publish(events.Event{Type: events.TypeState, Turn: turn, State: state.String()})
	l.logger.Debug("State changed", slog.String("state", state.String()), slog.Uint64("turn", turn))
}

func (l *Loop) publishFailure(turn uint64, err error) {
	l.publish(events.Event{
		Type:  events.TypeFailure,
		Turn:  turn,
		Stage: fault.StageOf(err),
		Kind:  fault.KindOf(err).String(),
		Error: err.Error(),
	})
}

func (l *Loop) publish(e events.Event) {
	if l.bus == nil {
		return
	}
	e.Session = l.session.ID
	l.bus.Publish(e)
}

func (l *Loop) updateStatus(update func(*Status)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	update(&l.status)
}

// State returns the current conversation state
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Session returns the loop's session
func (l *Loop) Session() Session {
	return l.session
}

// Status returns a snapshot of the loop
func (l *Loop) Status() Status {
	l.mu.RLock()
	status := l.status
	l.mu.RUnlock()

	status.State = l.State().String()
	status.Turns = l.turn.Load()
	status.Uptime = time.Since(l.session.StartedAt).Seconds()
	return status
}

func stageOf(err error, fallback string) string {
	if stage := fault.StageOf(err); stage != "" {
		return stage
	}
	return fallback
}
