package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/versecast/versecast/internal/catalog"
	"github.com/versecast/versecast/internal/queue"
	"github.com/versecast/versecast/internal/resolve"
	"github.com/versecast/versecast/internal/transport"
)

// ErrPlayback is the surfaced playback fault, emitted after the single
// transient retry has been spent.
var ErrPlayback = errors.New("playback error")

// RetryPolicy selects how the single transient retry picks its source.
type RetryPolicy string

const (
	// RetrySame retries the previously resolved source unchanged.
	RetrySame RetryPolicy = "same"
	// RetryResolve re-resolves the track, possibly switching local/remote.
	RetryResolve RetryPolicy = "reresolve"
)

// Default rate clamp range.
const (
	DefaultMinRate = 0.5
	DefaultMaxRate = 3.0
)

// Options tunes engine policy.
type Options struct {
	MinRate float64
	MaxRate float64
	Retry   RetryPolicy
}

func (o Options) withDefaults() Options {
	if o.MinRate <= 0 {
		o.MinRate = DefaultMinRate
	}
	if o.MaxRate <= 0 {
		o.MaxRate = DefaultMaxRate
	}
	if o.Retry == "" {
		o.Retry = RetrySame
	}
	return o
}

// Resolver turns track ids into playback sources. *resolve.Resolver is the
// production implementation.
type Resolver interface {
	Resolve(trackID string) (resolve.Source, error)
	ResolveVideo(trackID string) (resolve.Source, error)
}

// Verify engine implements Service at compile time.
var _ Service = (*engine)(nil)

type engine struct {
	mu sync.Mutex

	transport transport.Interface
	queue     *queue.Queue
	resolver  Resolver
	log       *zap.Logger
	opts      Options

	state      State
	rate       float64
	sourceKind resolve.Kind
	videoMode  bool
	retried    bool
	lastSource resolve.Source
	lastPos    time.Duration
	startGen   uint64 // mirrors the transport's successful-start count

	subs   []*Subscription
	subsMu sync.RWMutex

	done   chan struct{}
	closed bool
}

// New creates the playback engine. The engine exclusively owns the queue
// and the playback session; all commands are serialized through its lock.
func New(t transport.Interface, r Resolver, log *zap.Logger, opts Options) Service {
	if log == nil {
		log = zap.NewNop()
	}
	e := &engine{
		transport: t,
		queue:     queue.New(),
		resolver:  r,
		log:       log,
		opts:      opts.withDefaults(),
		state:     StateIdle,
		rate:      1.0,
		done:      make(chan struct{}),
	}
	go e.monitor()
	return e
}

// monitor funnels asynchronous transport signals into serialized command
// handling.
func (e *engine) monitor() {
	for {
		select {
		case <-e.done:
			return
		case gen := <-e.transport.Finished():
			e.handleFinished(gen)
		case err := <-e.transport.Faults():
			e.handleFault(err)
		}
	}
}

// PlayQueue replaces the queue and starts playback at the entry matching
// startID (or the first entry).
func (e *engine) PlayQueue(tracks []catalog.Track, startID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.queue.Replace(tracks, startID); err != nil {
		return err
	}
	e.videoMode = false
	e.publishQueueLocked()

	if e.queue.IsEmpty() {
		e.transport.Stop()
		e.setStateLocked(StateIdle)
		return nil
	}
	return e.playCurrentLocked(0)
}

// RestoreQueue re-establishes a previously saved queue and cursor without
// starting playback; the engine stays idle until the next play command.
func (e *engine) RestoreQueue(tracks []catalog.Track, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(tracks) == 0 {
		return nil
	}
	if err := e.queue.Replace(tracks, ""); err != nil {
		return err
	}
	if index > 0 && index < len(tracks) {
		e.queue.JumpTo(index)
	}
	e.videoMode = false
	e.publishQueueLocked()
	return nil
}

// PlayVideo plays a single track's video surface through the same state
// machine.
func (e *engine) PlayVideo(track catalog.Track) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.queue.Replace([]catalog.Track{track}, track.ID); err != nil {
		return err
	}
	e.videoMode = true
	e.publishQueueLocked()
	return e.playCurrentLocked(0)
}

// PlayPause toggles playing and paused. A no-op from idle, loading, ended
// and error.
func (e *engine) PlayPause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StatePlaying:
		e.transport.Pause()
		e.setStateLocked(StatePaused)
	case StatePaused:
		e.transport.Resume()
		e.setStateLocked(StatePlaying)
	default:
		// Nothing to toggle
	}
}

// SkipNext advances the queue; at the last entry the machine reaches ended.
func (e *engine) SkipNext() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.skipNextLocked()
}

func (e *engine) skipNextLocked() error {
	_, err := e.queue.Next()
	if errors.Is(err, queue.ErrEndOfQueue) {
		e.transport.Stop()
		e.setStateLocked(StateEnded)
		return nil
	}
	e.publishQueueLocked()
	return e.playCurrentLocked(0)
}

// SkipPrevious moves back one entry; at the first entry it restarts the
// current track from position 0 instead.
func (e *engine) SkipPrevious() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, moved := e.queue.Previous()
	if entry == nil {
		return nil
	}
	if !moved {
		if e.state.CanToggle() || e.state == StateBuffering {
			if err := e.transport.SeekTo(0); err != nil {
				return err
			}
			e.lastPos = 0
			e.publishStateLocked(e.state, e.state)
			return nil
		}
		return e.playCurrentLocked(0)
	}
	e.publishQueueLocked()
	return e.playCurrentLocked(0)
}

// SeekRelative moves the position by delta, clamped to [0, duration]. A
// target at or past the end triggers the skip-to-next semantics.
func (e *engine) SeekRelative(delta time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.CanToggle() && e.state != StateBuffering {
		return nil
	}

	pos := e.transport.Position()
	duration := e.effectiveDurationLocked()
	target := pos + delta
	if target < 0 {
		target = 0
	}
	if duration > 0 && target >= duration {
		return e.skipNextLocked()
	}

	if err := e.transport.SeekTo(target); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	e.lastPos = target
	e.publishStateLocked(e.state, e.state)
	return nil
}

// SetRate clamps the rate to the configured range and applies it. Rejected
// values are clamped, not errored.
func (e *engine) SetRate(rate float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rate < e.opts.MinRate {
		rate = e.opts.MinRate
	}
	if rate > e.opts.MaxRate {
		rate = e.opts.MaxRate
	}
	e.rate = rate
	e.transport.SetRate(rate)
	e.publishStateLocked(e.state, e.state)
	return rate
}

// RateBounds returns the effective rate clamp range.
func (e *engine) RateBounds() (minRate, maxRate float64) {
	return e.opts.MinRate, e.opts.MaxRate
}

// Retry re-enters loading from the error state.
func (e *engine) Retry() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateError {
		return nil
	}
	return e.playCurrentLocked(e.lastPos)
}

// Stop halts playback, clears the queue and resets the session.
func (e *engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.transport.Stop()
	e.queue.Clear()
	e.videoMode = false
	e.lastPos = 0
	e.publishQueueLocked()
	e.setStateLocked(StateIdle)
}

// playCurrentLocked resolves the current entry and drives the transport
// through loading and buffering into playing.
func (e *engine) playCurrentLocked(offset time.Duration) error {
	entry := e.queue.Current()
	if entry == nil {
		e.setStateLocked(StateIdle)
		return nil
	}

	// Drop any buffered finish signal from the previous track so it does
	// not occupy the channel slot the new track needs. A signal the
	// monitor already pulled out is caught by the generation check in
	// handleFinished instead.
	select {
	case <-e.transport.Finished():
	default:
	}

	e.retried = false
	e.setStateLocked(StateLoading)

	src, err := e.resolveLocked(entry.Track.ID)
	if err != nil {
		e.setStateLocked(StateError)
		e.publishError("play", entry.Track.ID, err)
		return err
	}

	e.setStateLocked(StateBuffering)
	if err := e.startLocked(src, offset, entry.Track.ID); err != nil {
		return err
	}

	e.lastSource = src
	e.sourceKind = src.Kind
	e.lastPos = offset
	e.transport.SetRate(e.rate)
	e.setStateLocked(StatePlaying)
	return nil
}

// startLocked starts the transport, spending the single transient retry if
// needed.
func (e *engine) startLocked(src resolve.Source, offset time.Duration, trackID string) error {
	err := e.transport.Start(src, offset)
	if err == nil {
		e.startGen++
		return nil
	}

	if errors.Is(err, transport.ErrTransient) && !e.retried {
		e.retried = true
		e.log.Debug("transient fault, retrying",
			zap.String("track_id", trackID),
			zap.String("policy", string(e.opts.Retry)))

		retrySrc := src
		if e.opts.Retry == RetryResolve {
			if resolved, rerr := e.resolveLocked(trackID); rerr == nil {
				retrySrc = resolved
			}
		}
		if err = e.transport.Start(retrySrc, offset); err == nil {
			e.startGen++
			return nil
		}
	}

	e.setStateLocked(StateError)
	wrapped := fmt.Errorf("%w: %v", ErrPlayback, err)
	e.publishError("play", trackID, wrapped)
	return wrapped
}

func (e *engine) resolveLocked(trackID string) (resolve.Source, error) {
	if e.videoMode {
		return e.resolver.ResolveVideo(trackID)
	}
	return e.resolver.Resolve(trackID)
}

// handleFinished advances the queue when a track plays to its end. Signals
// carrying a generation other than the current start's are from a track
// that has since been replaced and are ignored.
func (e *engine) handleFinished(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.startGen {
		return
	}
	if e.state != StatePlaying && e.state != StateBuffering {
		return
	}
	e.lastPos = 0
	_ = e.skipNextLocked()
}

// handleFault reacts to an asynchronous transport fault: one silent retry
// of the current track, then the error state.
func (e *engine) handleFault(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.IsActive() {
		return
	}

	entry := e.queue.Current()
	if entry == nil {
		e.setStateLocked(StateError)
		return
	}

	if errors.Is(err, transport.ErrTransient) && !e.retried {
		e.retried = true
		src := e.lastSource
		if e.opts.Retry == RetryResolve {
			if resolved, rerr := e.resolveLocked(entry.Track.ID); rerr == nil {
				src = resolved
			}
		}
		e.setStateLocked(StateBuffering)
		if serr := e.transport.Start(src, e.lastPos); serr == nil {
			e.startGen++
			e.transport.SetRate(e.rate)
			e.setStateLocked(StatePlaying)
			return
		}
	}

	e.setStateLocked(StateError)
	e.publishError("play", entry.Track.ID, fmt.Errorf("%w: %v", ErrPlayback, err))
}

// Session returns a snapshot of the live session.
func (e *engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionLocked()
}

func (e *engine) sessionLocked() Session {
	s := Session{
		State:      e.state,
		Rate:       e.rate,
		SourceKind: e.sourceKind,
		QueueIndex: e.queue.Index(),
		QueueLen:   e.queue.Len(),
	}
	if entry := e.queue.Current(); entry != nil {
		track := entry.Track
		s.TrackID = track.ID
		s.Track = &track
	}
	if e.state.IsActive() {
		s.Position = e.transport.Position()
		e.lastPos = s.Position
	} else {
		s.Position = e.lastPos
	}
	s.Duration = e.effectiveDurationLocked()
	return s
}

// effectiveDurationLocked prefers the decoded length, falling back to
// catalog metadata for unbounded streams.
func (e *engine) effectiveDurationLocked() time.Duration {
	if d := e.transport.Duration(); d > 0 {
		return d
	}
	if entry := e.queue.Current(); entry != nil {
		return entry.Track.Duration
	}
	return 0
}

// State returns the current engine state.
func (e *engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentTrack returns a copy of the current track, or nil.
func (e *engine) CurrentTrack() *catalog.Track {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := e.queue.Current()
	if entry == nil {
		return nil
	}
	track := entry.Track
	return &track
}

// QueueTracks returns a copy of all queued tracks.
func (e *engine) QueueTracks() []catalog.Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Tracks()
}

// QueueIndex returns the cursor position (-1 if empty).
func (e *engine) QueueIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Index()
}

// QueueLen returns the number of queued tracks.
func (e *engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Len()
}

// QueueHasNext reports whether an entry follows the cursor.
func (e *engine) QueueHasNext() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.HasNext()
}

// Subscribe creates a new event subscription.
func (e *engine) Subscribe() *Subscription {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	sub := newSubscription()
	e.subs = append(e.subs, sub)
	return sub
}

// Close shuts down the engine.
func (e *engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.done)
	e.transport.Stop()
	e.mu.Unlock()

	e.subsMu.Lock()
	for _, sub := range e.subs {
		sub.close()
	}
	e.subs = nil
	e.subsMu.Unlock()
	return nil
}

// setStateLocked transitions the machine and publishes the change.
func (e *engine) setStateLocked(next State) {
	prev := e.state
	e.state = next
	if prev != next {
		e.log.Debug("state transition",
			zap.Stringer("from", prev),
			zap.Stringer("to", next))
	}
	e.publishStateLocked(prev, next)
}

func (e *engine) publishStateLocked(prev, next State) {
	event := StateChange{Previous: prev, Current: next, Session: e.sessionLocked()}
	e.subsMu.RLock()
	for _, sub := range e.subs {
		sub.sendState(event)
	}
	e.subsMu.RUnlock()
}

func (e *engine) publishQueueLocked() {
	event := QueueChange{Tracks: e.queue.Tracks(), Index: e.queue.Index()}
	e.subsMu.RLock()
	for _, sub := range e.subs {
		sub.sendQueue(event)
	}
	e.subsMu.RUnlock()
}

func (e *engine) publishError(op, trackID string, err error) {
	e.log.Warn("playback fault",
		zap.String("operation", op),
		zap.String("track_id", trackID),
		zap.Error(err))
	event := ErrorEvent{Operation: op, TrackID: trackID, Err: err}
	e.subsMu.RLock()
	for _, sub := range e.subs {
		sub.sendError(event)
	}
	e.subsMu.RUnlock()
}
