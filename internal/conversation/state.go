package conversation

import (
	"time"

	"github.com/google/uuid"
)

// State is the conversation state
type State int32

const (
	// Listening is the initial state; the microphone may be used
	Listening State = iota
	// Chatting lasts from turn dispatch until playback ends or the turn fails
	Chatting
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Chatting:
		return "chatting"
	default:
		return "unknown"
	}
}

// Session correlates all turns of one process run
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
}

// NewSession creates a session with a random UUID
func NewSession() Session {
	return Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
}
