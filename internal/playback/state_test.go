package playback

import "testing"

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "Idle"},
		{StateLoading, "Loading"},
		{StateBuffering, "Buffering"},
		{StatePlaying, "Playing"},
		{StatePaused, "Paused"},
		{StateEnded, "Ended"},
		{StateError, "Error"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestState_IsActive(t *testing.T) {
	active := []State{StateLoading, StateBuffering, StatePlaying, StatePaused}
	inactive := []State{StateIdle, StateEnded, StateError}

	for _, s := range active {
		if !s.IsActive() {
			t.Errorf("%v.IsActive() = false, want true", s)
		}
	}
	for _, s := range inactive {
		if s.IsActive() {
			t.Errorf("%v.IsActive() = true, want false", s)
		}
	}
}

func TestState_CanToggle(t *testing.T) {
	if !StatePlaying.CanToggle() || !StatePaused.CanToggle() {
		t.Error("playing and paused should toggle")
	}
	for _, s := range []State{StateIdle, StateLoading, StateEnded, StateError} {
		if s.CanToggle() {
			t.Errorf("%v.CanToggle() = true, want false", s)
		}
	}
}
