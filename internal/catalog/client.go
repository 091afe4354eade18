// Package catalog provides the track model and a client for the recordings
// catalog API (recordings, audiobooks, conferences, series).
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is returned when a track id is unknown to the catalog.
var ErrNotFound = errors.New("track not found")

// Endpoints served by the catalog API.
const (
	EndpointNew         = "recordings"
	EndpointTrending    = "recordings/popular"
	EndpointFeatured    = "recordings/featured"
	EndpointBooks       = "audiobooks"
	EndpointConferences = "conferences"
	EndpointSeries      = "series"
)

const (
	userAgent      = "versecast/1.0 (https://github.com/versecast/versecast)"
	trackCacheSize = 128
)

// Client is a catalog API client. Safe for concurrent use.
type Client struct {
	baseURL      string
	sessionToken string
	httpClient   *http.Client
	tracks       *lru.Cache[string, Track]
}

// New creates a catalog client for the given base URL and session token.
func New(baseURL, sessionToken string) (*Client, error) {
	cache, err := lru.New[string, Track](trackCacheSize)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:      baseURL,
		sessionToken: sessionToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		tracks: cache,
	}, nil
}

// AuthHeaders returns the headers required for authenticated media requests.
func (c *Client) AuthHeaders() map[string]string {
	if c.sessionToken == "" {
		return nil
	}
	return map[string]string{
		"Authorization": "Bearer " + c.sessionToken,
		"User-Agent":    userAgent,
	}
}

// Page is a paginated slice of catalog results.
type Page struct {
	Tracks  []Track
	Next    int // page number of the next page
	HasMore bool
}

type trackPayload struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Duration float64 `json:"duration"` // seconds
	Artwork  string  `json:"artwork"`
	MediaURL string  `json:"mediaUrl"`
	VideoURL string  `json:"videoUrl"`
	BitRate  int     `json:"bitRate"`
	Language string  `json:"lang"`
}

type listPayload struct {
	Items      []trackPayload `json:"result"`
	Pagination struct {
		Current int `json:"current_page"`
		Total   int `json:"total_pages"`
	} `json:"pagination"`
}

func (p trackPayload) toTrack() Track {
	return Track{
		ID:         p.ID,
		Title:      p.Title,
		Artist:     p.Artist,
		Duration:   time.Duration(p.Duration * float64(time.Second)),
		ArtworkURL: p.Artwork,
		MediaURL:   p.MediaURL,
		VideoURL:   p.VideoURL,
		BitRate:    p.BitRate,
		Language:   p.Language,
	}
}

// List fetches one page of an endpoint listing.
func (c *Client) List(ctx context.Context, endpoint string, page int) (*Page, error) {
	params := url.Values{}
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}

	reqURL := fmt.Sprintf("%s/%s", c.baseURL, endpoint)
	if enc := params.Encode(); enc != "" {
		reqURL += "?" + enc
	}

	var payload listPayload
	if err := c.getJSON(ctx, reqURL, &payload); err != nil {
		return nil, err
	}

	result := &Page{
		Tracks:  make([]Track, 0, len(payload.Items)),
		Next:    payload.Pagination.Current + 1,
		HasMore: payload.Pagination.Current < payload.Pagination.Total,
	}
	for _, item := range payload.Items {
		t := item.toTrack()
		c.tracks.Add(t.ID, t)
		result.Tracks = append(result.Tracks, t)
	}
	return result, nil
}

// Track returns the track with the given id. Recently listed tracks are
// served from an in-memory cache without a network round trip.
func (c *Client) Track(ctx context.Context, id string) (*Track, error) {
	if t, ok := c.tracks.Get(id); ok {
		return &t, nil
	}

	reqURL := fmt.Sprintf("%s/recordings/%s", c.baseURL, url.PathEscape(id))

	var payload struct {
		Result trackPayload `json:"result"`
	}
	if err := c.getJSON(ctx, reqURL, &payload); err != nil {
		return nil, err
	}
	if payload.Result.ID == "" {
		return nil, ErrNotFound
	}

	t := payload.Result.toTrack()
	c.tracks.Add(t.ID, t)
	return &t, nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if c.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
