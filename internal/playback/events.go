package playback

import (
	"time"

	"github.com/versecast/versecast/internal/catalog"
	"github.com/versecast/versecast/internal/resolve"
)

// Session is a snapshot of the live playback session. It is the payload of
// every StateChange; observers never mutate engine state through it.
type Session struct {
	TrackID    string
	Track      *catalog.Track
	State      State
	Position   time.Duration
	Duration   time.Duration
	Rate       float64
	SourceKind resolve.Kind
	QueueIndex int
	QueueLen   int
}

// StateChange is emitted on every state machine transition, in transition
// order.
type StateChange struct {
	Previous State
	Current  State
	Session  Session
}

// QueueChange is emitted when queue content or cursor changes. Queue
// mutations always publish before any playback they trigger.
type QueueChange struct {
	Tracks []catalog.Track
	Index  int
}

// ErrorEvent is emitted when a playback fault surfaces (after the single
// transient retry has been spent).
type ErrorEvent struct {
	Operation string // e.g. "play", "seek"
	TrackID   string
	Err       error
}
