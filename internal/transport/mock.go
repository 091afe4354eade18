package transport

import (
	"sync"
	"time"

	"github.com/versecast/versecast/internal/resolve"
)

// Mock is a test double for the transport.
type Mock struct {
	mu sync.Mutex

	state    State
	position time.Duration
	duration time.Duration
	rate     float64

	startErrs  []error // consumed one per Start call
	startCalls []resolve.Source
	seekCalls  []time.Duration
	startGen   uint64

	finished chan uint64
	faults   chan error
}

// NewMock creates a new mock transport for testing.
func NewMock() *Mock {
	return &Mock{
		state:    Inactive,
		rate:     1.0,
		finished: make(chan uint64, 1),
		faults:   make(chan error, 1),
	}
}

func (m *Mock) Start(src resolve.Source, offset time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.startCalls = append(m.startCalls, src)
	if len(m.startErrs) > 0 {
		err := m.startErrs[0]
		m.startErrs = m.startErrs[1:]
		if err != nil {
			return err
		}
	}
	m.startGen++
	m.state = Playing
	m.position = offset
	return nil
}

func (m *Mock) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Inactive
	m.position = 0
}

func (m *Mock) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Playing {
		m.state = Paused
	}
}

func (m *Mock) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Paused {
		m.state = Playing
	}
}

func (m *Mock) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mock) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Mock) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *Mock) SeekTo(pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seekCalls = append(m.seekCalls, pos)
	m.position = pos
	return nil
}

func (m *Mock) SetRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rate = rate
}

func (m *Mock) Finished() <-chan uint64 { return m.finished }

func (m *Mock) Faults() <-chan error { return m.faults }

// Test helpers

// QueueStartErr makes the next Start call return err (nil for success).
func (m *Mock) QueueStartErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErrs = append(m.startErrs, err)
}

func (m *Mock) SetDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

func (m *Mock) SetPosition(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = d
}

func (m *Mock) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

func (m *Mock) StartCalls() []resolve.Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]resolve.Source, len(m.startCalls))
	copy(calls, m.startCalls)
	return calls
}

func (m *Mock) SeekCalls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]time.Duration, len(m.seekCalls))
	copy(calls, m.seekCalls)
	return calls
}

// SimulateFinished signals the current track finishing.
func (m *Mock) SimulateFinished() {
	m.mu.Lock()
	m.state = Inactive
	gen := m.startGen
	m.mu.Unlock()
	select {
	case m.finished <- gen:
	default:
	}
}

// SimulateFault signals an asynchronous transport fault.
func (m *Mock) SimulateFault(err error) {
	select {
	case m.faults <- err:
	default:
	}
}

// Verify Mock implements Interface at compile time.
var _ Interface = (*Mock)(nil)
