// Package resolve decides whether a track plays from the local cache or a
// remote stream.
package resolve

import (
	"errors"
	"fmt"

	"github.com/versecast/versecast/internal/cache"
	"github.com/versecast/versecast/internal/catalog"
)

// ErrUnknownTrack is returned when the id is not known to the catalog
// directory.
var ErrUnknownTrack = errors.New("unknown track")

// Kind is the source kind of a playback descriptor.
type Kind int

const (
	KindLocal Kind = iota
	KindRemote
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Source describes where playback should read a track from.
type Source struct {
	Kind    Kind
	TrackID string

	// Local
	Path string

	// Remote
	URL     string
	Headers map[string]string

	// Video marks a source that carries a visual surface.
	Video bool
}

// Directory supplies track records by id. The engine's queue and the
// catalog client both satisfy it.
type Directory interface {
	Lookup(trackID string) (*catalog.Track, bool)
}

// HeaderFunc supplies authorization headers for remote sources.
type HeaderFunc func() map[string]string

// Resolver resolves track ids to playback sources, cache first.
type Resolver struct {
	store   *cache.Store
	dir     Directory
	headers HeaderFunc
}

// New creates a resolver. headers may be nil for unauthenticated catalogs.
func New(store *cache.Store, dir Directory, headers HeaderFunc) *Resolver {
	if headers == nil {
		headers = func() map[string]string { return nil }
	}
	return &Resolver{store: store, dir: dir, headers: headers}
}

// Resolve returns the source for a track id. A present, verified cache
// entry always wins over the network, whatever quality variant it holds.
// A corrupt cache entry is discarded and resolution falls through to remote.
func (r *Resolver) Resolve(trackID string) (Source, error) {
	track, ok := r.dir.Lookup(trackID)
	if !ok {
		return Source{}, fmt.Errorf("%w: %s", ErrUnknownTrack, trackID)
	}

	media, err := r.store.Lookup(trackID)
	if err == nil {
		return Source{Kind: KindLocal, TrackID: trackID, Path: media.Path}, nil
	}
	// ErrNotCached and ErrCorrupt both fall through to remote; Lookup has
	// already dropped a corrupt record.

	return Source{
		Kind:    KindRemote,
		TrackID: trackID,
		URL:     track.MediaURL,
		Headers: r.headers(),
	}, nil
}

// ResolveVideo returns a remote source for the track's video surface.
func (r *Resolver) ResolveVideo(trackID string) (Source, error) {
	track, ok := r.dir.Lookup(trackID)
	if !ok {
		return Source{}, fmt.Errorf("%w: %s", ErrUnknownTrack, trackID)
	}
	if track.VideoURL == "" {
		return Source{}, fmt.Errorf("%w: %s has no video", ErrUnknownTrack, trackID)
	}
	return Source{
		Kind:    KindRemote,
		TrackID: trackID,
		URL:     track.VideoURL,
		Headers: r.headers(),
		Video:   true,
	}, nil
}
