package playback

// State represents the engine playback state.
//
// Transitions:
//
//	idle → loading → (buffering ⇄ playing) ⇄ paused
//	playing/buffering/paused → ended   (queue exhausted)
//	any → error                        (fatal transport fault)
//	error → loading                    (manual retry)
//
// idle is initial; ended and unrecovered error are terminal until a new play
// command arrives, which always re-enters loading.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateBuffering
	StatePlaying
	StatePaused
	StateEnded
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLoading:
		return "Loading"
	case StateBuffering:
		return "Buffering"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateEnded:
		return "Ended"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// IsActive returns true while a track is loaded (loading through paused).
func (s State) IsActive() bool {
	switch s {
	case StateLoading, StateBuffering, StatePlaying, StatePaused:
		return true
	default:
		return false
	}
}

// CanToggle returns true if PlayPause has an effect in this state.
func (s State) CanToggle() bool {
	return s == StatePlaying || s == StatePaused
}
