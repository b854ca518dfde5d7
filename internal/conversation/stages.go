package conversation

import (
	"context"
	"io"

	"github.com/skypro1111/voiceloop/internal/audio"
	"github.com/skypro1111/voiceloop/internal/transcription"
)

// Capturer blocks until one utterance has been captured
type Capturer interface {
	Listen(ctx context.Context) (*audio.Utterance, error)
}

// TurnSender posts a transcript and returns the streamed reply
type TurnSender interface {
	SendTurn(ctx context.Context, message, sessionID string) (io.ReadCloser, error)
}

// Assembler buffers and decodes a streamed reply
type Assembler interface {
	Assemble(stream io.Reader) (*audio.PlayableAudio, error)
}

// Player writes a decoded reply to the output device
type Player interface {
	Play(ctx context.Context, playable *audio.PlayableAudio) error
}

// Archiver stores replies; failures never fail a turn
type Archiver interface {
	Save(sessionID string, turn uint64, playable *audio.PlayableAudio) (string, error)
}

// Stages are the collaborators driven by the loop. Archive may be nil.
type Stages struct {
	Capturer    Capturer
	Transcriber transcription.Provider
	Turns       TurnSender
	Assembler   Assembler
	Player      Player
	Archive     Archiver
}
