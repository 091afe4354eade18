// Package queue implements the ordered play queue with a current-position
// cursor.
package queue

import (
	"errors"

	"github.com/versecast/versecast/internal/catalog"
)

// ErrEmptyQueue is returned when Replace is asked to position within an
// empty track list.
var ErrEmptyQueue = errors.New("queue is empty")

// ErrEndOfQueue signals that Next was called at the last entry. It is a
// normal terminal signal, not a failure.
var ErrEndOfQueue = errors.New("end of queue")

// Entry wraps a track with its stable position in the queue.
type Entry struct {
	Index int
	Track catalog.Track
}

// Queue holds an ordered sequence of tracks and the current cursor.
// Not safe for concurrent use; the engine serializes access.
type Queue struct {
	tracks  []catalog.Track
	current int // -1 if empty
}

// New creates a new empty queue.
func New() *Queue {
	return &Queue{current: -1}
}

// Replace sets the queue content and positions the cursor at the entry
// matching startID, or 0 when startID is empty or matches nothing.
// Returns ErrEmptyQueue if tracks is empty and startID is given.
func (q *Queue) Replace(tracks []catalog.Track, startID string) error {
	if len(tracks) == 0 {
		if startID != "" {
			return ErrEmptyQueue
		}
		q.tracks = nil
		q.current = -1
		return nil
	}

	q.tracks = make([]catalog.Track, len(tracks))
	copy(q.tracks, tracks)

	q.current = 0
	if startID != "" {
		for i, t := range q.tracks {
			if t.ID == startID {
				q.current = i
				break
			}
		}
	}
	return nil
}

// Current returns the entry under the cursor, or nil if the queue is empty.
func (q *Queue) Current() *Entry {
	if q.current < 0 || q.current >= len(q.tracks) {
		return nil
	}
	return &Entry{Index: q.current, Track: q.tracks[q.current]}
}

// Next advances the cursor and returns the new entry.
// At the last entry the cursor does not move and ErrEndOfQueue is returned.
func (q *Queue) Next() (*Entry, error) {
	if q.current < 0 {
		return nil, ErrEndOfQueue
	}
	if q.current >= len(q.tracks)-1 {
		return nil, ErrEndOfQueue
	}
	q.current++
	return q.Current(), nil
}

// HasNext returns true if there is an entry after the cursor.
func (q *Queue) HasNext() bool {
	return q.current >= 0 && q.current < len(q.tracks)-1
}

// Previous moves the cursor back by one and returns the new entry.
// At index 0 the cursor stays put and moved is false: the caller is expected
// to restart the current track from position 0 instead.
func (q *Queue) Previous() (entry *Entry, moved bool) {
	if q.current < 0 {
		return nil, false
	}
	if q.current == 0 {
		return q.Current(), false
	}
	q.current--
	return q.Current(), true
}

// JumpTo moves the cursor to the given index.
// Returns nil if the index is out of bounds.
func (q *Queue) JumpTo(index int) *Entry {
	if index < 0 || index >= len(q.tracks) {
		return nil
	}
	q.current = index
	return q.Current()
}

// Clear removes all tracks and resets the cursor.
func (q *Queue) Clear() {
	q.tracks = nil
	q.current = -1
}

// Tracks returns a copy of all tracks in order.
func (q *Queue) Tracks() []catalog.Track {
	result := make([]catalog.Track, len(q.tracks))
	copy(result, q.tracks)
	return result
}

// Index returns the cursor position (-1 if empty).
func (q *Queue) Index() int {
	return q.current
}

// Len returns the number of tracks.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// IsEmpty returns true if the queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return len(q.tracks) == 0
}
