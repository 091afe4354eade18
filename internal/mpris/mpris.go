//go:build linux

// Package mpris mirrors engine state to the desktop media-control surface
// and forwards its commands back in.
package mpris

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"

	"github.com/versecast/versecast/internal/playback"
)

// Adapter connects the playback engine to MPRIS over D-Bus. It holds no
// playback state of its own: every property callback re-reads the engine,
// so a race with an external command can never serve stale state.
type Adapter struct {
	service playback.Service
	server  *server.Server
	done    chan struct{}
}

// New creates and starts a new MPRIS adapter.
func New(service playback.Service) (*Adapter, error) {
	a := &Adapter{
		service: service,
		done:    make(chan struct{}),
	}

	rootAdapter := &rootAdapter{}
	playerAdapter := &playerAdapter{service: service}

	a.server = server.NewServer("versecast", rootAdapter, playerAdapter)

	go func() {
		_ = a.server.Listen()
	}()

	return a, nil
}

// Close stops the adapter and releases D-Bus resources.
func (a *Adapter) Close() error {
	close(a.done)
	return a.server.Stop()
}

// rootAdapter implements OrgMprisMediaPlayer2Adapter.
type rootAdapter struct{}

func (r *rootAdapter) Raise() error {
	return nil // Not supported
}

func (r *rootAdapter) Quit() error {
	return nil // Not supported - app manages its own lifecycle
}

func (r *rootAdapter) CanQuit() (bool, error) {
	return false, nil
}

func (r *rootAdapter) CanRaise() (bool, error) {
	return false, nil
}

func (r *rootAdapter) HasTrackList() (bool, error) {
	return false, nil
}

func (r *rootAdapter) Identity() (string, error) {
	return "Versecast", nil
}

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"file", "https"}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/mpeg", "audio/mp3"}, nil
}

// playerAdapter implements OrgMprisMediaPlayer2PlayerAdapter.
type playerAdapter struct {
	service playback.Service
}

func (p *playerAdapter) Next() error {
	return p.service.SkipNext()
}

func (p *playerAdapter) Previous() error {
	return p.service.SkipPrevious()
}

func (p *playerAdapter) Pause() error {
	if p.service.State() == playback.StatePlaying {
		p.service.PlayPause()
	}
	return nil
}

func (p *playerAdapter) PlayPause() error {
	p.service.PlayPause()
	return nil
}

func (p *playerAdapter) Stop() error {
	p.service.Stop()
	return nil
}

func (p *playerAdapter) Play() error {
	switch p.service.State() {
	case playback.StatePaused:
		p.service.PlayPause()
	case playback.StateError:
		return p.service.Retry()
	default:
		// Playing already, or nothing loaded to play
	}
	return nil
}

func (p *playerAdapter) Seek(offset types.Microseconds) error {
	return p.service.SeekRelative(time.Duration(offset) * time.Microsecond)
}

func (p *playerAdapter) SetPosition(_ string, position types.Microseconds) error {
	// Re-read the session: the delta is computed against the engine's
	// current position, not a mirrored copy.
	session := p.service.Session()
	target := time.Duration(position) * time.Microsecond
	return p.service.SeekRelative(target - session.Position)
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(_ string) error {
	return nil // Not supported
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	switch p.service.State() {
	case playback.StatePlaying, playback.StateBuffering, playback.StateLoading:
		return types.PlaybackStatusPlaying, nil
	case playback.StatePaused:
		return types.PlaybackStatusPaused, nil
	default:
		return types.PlaybackStatusStopped, nil
	}
}

func (p *playerAdapter) Rate() (float64, error) {
	return p.service.Session().Rate, nil
}

func (p *playerAdapter) SetRate(rate float64) error {
	p.service.SetRate(rate)
	return nil
}

func (p *playerAdapter) MinimumRate() (float64, error) {
	lo, _ := p.service.RateBounds()
	return lo, nil
}

func (p *playerAdapter) MaximumRate() (float64, error) {
	_, hi := p.service.RateBounds()
	return hi, nil
}

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	session := p.service.Session()
	track := session.Track
	if track == nil {
		return types.Metadata{}, nil
	}

	meta := types.Metadata{
		TrackId: dbus.ObjectPath(formatTrackID(track.ID)),
		Length:  types.Microseconds(session.Duration.Microseconds()),
		Title:   track.Title,
		Artist:  []string{track.Artist},
	}
	if track.ArtworkURL != "" {
		meta.ArtUrl = track.ArtworkURL
	}
	return meta, nil
}

func (p *playerAdapter) Volume() (float64, error) {
	return 1.0, nil // Volume control not exposed via the engine
}

func (p *playerAdapter) SetVolume(_ float64) error {
	return nil // Not supported
}

func (p *playerAdapter) Position() (int64, error) {
	return p.service.Session().Position.Microseconds(), nil
}

func (p *playerAdapter) CanGoNext() (bool, error) {
	return p.service.QueueHasNext(), nil
}

func (p *playerAdapter) CanGoPrevious() (bool, error) {
	// Previous at the first entry restarts the track, so it is always
	// available while something is queued.
	return p.service.QueueLen() > 0, nil
}

func (p *playerAdapter) CanPlay() (bool, error) {
	return p.service.QueueLen() > 0, nil
}

func (p *playerAdapter) CanPause() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanSeek() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanControl() (bool, error) {
	return true, nil
}

func formatTrackID(id string) string {
	h := fnv.New64a()
	h.Write([]byte(id))
	return fmt.Sprintf("/org/mpris/MediaPlayer2/Track/%x", h.Sum64())
}
