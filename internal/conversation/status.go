package conversation

import "time"

// Status is a point-in-time view of the loop for observers
type Status struct {
	State                 string    `json:"state"`
	Session               Session   `json:"session"`
	Turns                 uint64    `json:"turns"`
	CompletedTurns        uint64    `json:"completed_turns"`
	FailedTurns           uint64    `json:"failed_turns"`
	Utterances            uint64    `json:"utterances"`
	CaptureTimeouts       uint64    `json:"capture_timeouts"`
	TranscriptionFailures uint64    `json:"transcription_failures"`
	LastTranscript        string    `json:"last_transcript,omitempty"`
	LastError             string    `json:"last_error,omitempty"`
	LastTurnAt            time.Time `json:"last_turn_at,omitempty"`
	Uptime                float64   `json:"uptime_seconds"`
}
