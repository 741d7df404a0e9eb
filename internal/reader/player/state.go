package player

import (
	"fmt"

	"readaloud/internal/domain/segment"
)

// Phase is the controller's playback state.
type Phase int

const (
	Idle Phase = iota
	Playing
	Paused
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Status is a snapshot of the controller.
type Status struct {
	Phase  Phase
	Cursor int
	Total  int
	// Current is the segment at Cursor, nil when Cursor is past the end.
	Current *segment.Segment
}

// Finished reports whether the cursor has run past the last segment.
func (s Status) Finished() bool {
	return s.Cursor >= s.Total
}

// Voice holds the speech parameters applied to every utterance.
type Voice struct {
	ID       string
	Rate     float64
	Volume   float64
	Pitch    float64
	Language string
}

// DefaultVoice is the engine's own voice at normal rate, full volume and
// neutral pitch.
func DefaultVoice() Voice {
	return Voice{Rate: 1, Volume: 1, Pitch: 1}
}

type EventKind int

const (
	// SegmentStarted is sent just before a segment is handed to the engine.
	SegmentStarted EventKind = iota
	// PhaseChanged is sent on every Idle/Playing/Paused transition.
	PhaseChanged
	// Finished is sent once the last segment has been spoken.
	Finished
	// Diagnostic reports an utterance that failed and was skipped.
	Diagnostic
)

func (k EventKind) String() string {
	switch k {
	case SegmentStarted:
		return "segment-started"
	case PhaseChanged:
		return "phase-changed"
	case Finished:
		return "finished"
	case Diagnostic:
		return "diagnostic"
	default:
		return "unknown"
	}
}

// Event is a notification sent to observers.
type Event struct {
	Kind    EventKind
	Phase   Phase
	Index   int
	Total   int
	Segment segment.Segment
	Err     error
}

// Observer receives controller events. It is called without the controller's
// lock held and may call back into the controller.
type Observer func(Event)
