package tts

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrEngineUnavailable is returned when no speech capability exists on the host.
	ErrEngineUnavailable = errors.New("speech engine unavailable")

	// ErrPauseUnsupported is returned by engines that cannot suspend an utterance.
	ErrPauseUnsupported = errors.New("pause not supported by engine")

	// ErrEmptyText is returned when asked to speak nothing.
	ErrEmptyText = errors.New("text cannot be empty")
)

type Config struct {
	Type      string
	Voice     string
	Speed     float64
	Volume    float64
	Pitch     float64
	Language  string
	CachePath string
}

// SpeakRequest is one utterance. ID is chosen by the caller and echoed back
// on every Event for that utterance.
type SpeakRequest struct {
	ID       uint64
	Text     string
	Rate     float64 // 1.0 is the engine's normal speed
	Volume   float64 // 0..1
	Pitch    float64 // 0..2, 1.0 is neutral
	Language string  // BCP 47 hint, optional
	VoiceID  string  // optional
}

type EventKind int

const (
	EventStart EventKind = iota
	EventEnd
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a notification about one utterance.
type Event struct {
	Utterance uint64
	Kind      EventKind
	Err       error
}

// Engine is a speech synthesiser that speaks one utterance at a time.
//
// For every Speak call whose utterance is not superseded by CancelAll, the
// engine delivers at most one EventStart followed by exactly one EventEnd or
// EventError on the Events channel.
type Engine interface {
	Speak(req SpeakRequest) error
	Pause() error
	Resume() error
	// CancelAll stops the in-flight utterance without waiting for it.
	CancelAll() error
	Voices(ctx context.Context) ([]VoiceInfo, error)
	Events() <-chan Event
	Close() error
}

// CacheableEngine extends Engine with cache management capabilities
type CacheableEngine interface {
	Engine
	CacheStats() (map[string]interface{}, error)
	ClearCache() error
}

// VoiceInfo provides detailed information about available voices
type VoiceInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender,omitempty"`
	Natural  bool   `json:"natural,omitempty"`
}

// utterances tracks which utterance may still report back. Events for any
// other utterance are dropped.
type utterances struct {
	mu      sync.Mutex
	current uint64
	started bool
	events  chan Event
}

func newUtterances() *utterances {
	return &utterances{events: make(chan Event, 64)}
}

func (u *utterances) begin(id uint64) {
	u.mu.Lock()
	u.current = id
	u.started = false
	u.mu.Unlock()
}

func (u *utterances) cancel() {
	u.mu.Lock()
	u.current = 0
	u.mu.Unlock()
}

func (u *utterances) active(id uint64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return id != 0 && u.current == id
}

func (u *utterances) start(id uint64) {
	u.mu.Lock()
	if id == 0 || u.current != id || u.started {
		u.mu.Unlock()
		return
	}
	u.started = true
	u.mu.Unlock()
	u.events <- Event{Utterance: id, Kind: EventStart}
}

// finish delivers the terminal event for id and retires it.
func (u *utterances) finish(id uint64, err error) {
	u.mu.Lock()
	if id == 0 || u.current != id {
		u.mu.Unlock()
		return
	}
	u.current = 0
	u.mu.Unlock()

	if err != nil {
		u.events <- Event{Utterance: id, Kind: EventError, Err: err}
		return
	}
	u.events <- Event{Utterance: id, Kind: EventEnd}
}
