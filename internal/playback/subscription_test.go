package playback

import "testing"

func TestSubscription_ReplaysNothingWhenIdle(t *testing.T) {
	sub := newSubscription()
	select {
	case <-sub.StateChanged:
		t.Fatal("fresh subscription should have no pending events")
	default:
	}
}

func TestSubscription_DropsWhenBufferFull(t *testing.T) {
	sub := newSubscription()
	for i := 0; i < eventBufferSize+10; i++ {
		sub.sendState(StateChange{Current: StatePlaying})
	}

	received := 0
	for {
		select {
		case <-sub.StateChanged:
			received++
		default:
			if received != eventBufferSize {
				t.Errorf("received %d events, want %d", received, eventBufferSize)
			}
			return
		}
	}
}

func TestSubscription_Close(t *testing.T) {
	sub := newSubscription()
	sub.close()

	select {
	case <-sub.Done:
	default:
		t.Fatal("Done should be closed")
	}
}
