package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type identifies an event
type Type string

const (
	TypeState      Type = "state"      // conversation state changed
	TypeUtterance  Type = "utterance"  // speech captured
	TypeTranscript Type = "transcript" // speech recognized
	TypeReply      Type = "reply"      // reply assembled and about to play
	TypeTurnEnd    Type = "turn_end"   // reply finished playing
	TypeFailure    Type = "failure"    // a stage failed
)

// Event is one observation of the conversation loop
type Event struct {
	Type     Type      `json:"type"`
	Time     time.Time `json:"time"`
	Session  string    `json:"session"`
	Turn     uint64    `json:"turn"`
	State    string    `json:"state,omitempty"`
	Text     string    `json:"text,omitempty"`
	Stage    string    `json:"stage,omitempty"`
	Kind     string    `json:"kind,omitempty"`
	Error    string    `json:"error,omitempty"`
	Duration float64   `json:"duration_seconds,omitempty"`
}

// Bus delivers events to all current subscribers
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus creates an event bus
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

// Publish delivers e to every subscriber with room in its buffer
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.published.Add(1)
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of events and a function that cancels the
// subscription and closes the channel
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Close closes all subscriber channels; later publishes are ignored
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of active subscribers
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Published returns the number of events published
func (b *Bus) Published() uint64 {
	return b.published.Load()
}

// Dropped returns the number of deliveries skipped because a subscriber was full
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
