// Package transport drives the underlying audio playback primitive.
//
// The engine never touches the speaker directly: it hands a resolved source
// to a Transport and observes readiness, completion and faults through it.
package transport

import (
	"errors"
	"time"

	"github.com/versecast/versecast/internal/resolve"
)

// ErrTransient marks faults that are worth one silent retry (network
// hiccups on remote sources). Non-transient faults (missing file, decode
// failure) surface immediately.
var ErrTransient = errors.New("transient transport fault")

// State is the transport-level playback state. The engine layers its own
// loading/buffering states on top.
type State int

const (
	Inactive State = iota
	Playing
	Paused
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// Interface is the transport contract for dependency injection and testing.
type Interface interface {
	// Start loads the source and begins playing from offset. It blocks
	// until the transport is producing audio or returns an error.
	Start(src resolve.Source, offset time.Duration) error
	Pause()
	Resume()
	Stop()
	State() State
	Position() time.Duration
	// Duration returns the decoded length, or 0 when the source is an
	// unbounded stream (the engine then falls back to catalog metadata).
	Duration() time.Duration
	SeekTo(pos time.Duration) error
	SetRate(rate float64)
	// Finished delivers a signal each time a track plays to its end,
	// tagged with the generation of the Start that produced it. The
	// generation increments on every successful Start, so a signal from
	// an already-replaced track can be told apart from the current one.
	Finished() <-chan uint64
	// Faults delivers asynchronous mid-playback errors.
	Faults() <-chan error
}
