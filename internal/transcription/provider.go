package transcription

import (
	"context"

	"github.com/skypro1111/voiceloop/internal/audio"
)

// Provider transcribes one utterance. Failures are *fault.Error values of
// kind unintelligible or recognition_service.
type Provider interface {
	Transcribe(ctx context.Context, utterance *audio.Utterance) (string, error)
}
