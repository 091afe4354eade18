// Package playback owns the play queue, the playback state machine and the
// event bus that publishes their changes.
package playback

import (
	"time"

	"github.com/versecast/versecast/internal/catalog"
)

// Service defines the engine command and query surface. Commands arriving
// from the UI and from the remote control bridge are indistinguishable.
type Service interface {
	// Commands
	PlayQueue(tracks []catalog.Track, startID string) error
	RestoreQueue(tracks []catalog.Track, index int) error
	PlayVideo(track catalog.Track) error
	PlayPause()
	SkipNext() error
	SkipPrevious() error
	SeekRelative(delta time.Duration) error
	SetRate(rate float64) float64
	Retry() error
	Stop()

	// Queries
	Session() Session
	State() State
	CurrentTrack() *catalog.Track
	QueueTracks() []catalog.Track
	QueueIndex() int
	QueueLen() int
	QueueHasNext() bool
	RateBounds() (minRate, maxRate float64)

	// Event subscription
	Subscribe() *Subscription

	// Lifecycle
	Close() error
}
