package catalog

import "time"

// Track is a single playable recording as served by the catalog API.
// Immutable once loaded; the engine only ever copies it.
type Track struct {
	ID         string
	Title      string
	Artist     string // presenter / reader label
	Duration   time.Duration
	ArtworkURL string
	MediaURL   string
	VideoURL   string // empty for audio-only recordings
	BitRate    int    // kbps of the served variant
	Language   string
}

// HasVideo returns true if the recording carries a visual surface.
func (t Track) HasVideo() bool {
	return t.VideoURL != ""
}
