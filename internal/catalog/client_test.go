package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listBody = `{
	"result": [
		{
			"id": "rec-1",
			"title": "Morning Devotion",
			"artist": "J. Allen",
			"duration": 1500.5,
			"artwork": "https://img.test/rec-1.jpg",
			"mediaUrl": "https://media.test/rec-1.mp3",
			"bitRate": 64,
			"lang": "en"
		},
		{
			"id": "rec-2",
			"title": "Evening Reflection",
			"duration": 2520,
			"mediaUrl": "https://media.test/rec-2.mp3",
			"videoUrl": "https://media.test/rec-2.mp4",
			"bitRate": 128
		}
	],
	"pagination": {"current_page": 1, "total_pages": 3}
}`

func TestList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recordings", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("page"), "first page sends no page param")
		_, _ = w.Write([]byte(listBody))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "")
	require.NoError(t, err)

	page, err := c.List(context.Background(), EndpointNew, 1)
	require.NoError(t, err)

	require.Len(t, page.Tracks, 2)
	first := page.Tracks[0]
	assert.Equal(t, "rec-1", first.ID)
	assert.Equal(t, "Morning Devotion", first.Title)
	assert.Equal(t, "J. Allen", first.Artist)
	assert.Equal(t, 1500500*time.Millisecond, first.Duration)
	assert.Equal(t, 64, first.BitRate)
	assert.Equal(t, "en", first.Language)
	assert.False(t, first.HasVideo())

	assert.True(t, page.Tracks[1].HasVideo())
	assert.Equal(t, 2, page.Next)
	assert.True(t, page.HasMore)
}

func TestList_LastPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		_, _ = w.Write([]byte(`{"result": [], "pagination": {"current_page": 3, "total_pages": 3}}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "")
	require.NoError(t, err)

	page, err := c.List(context.Background(), EndpointTrending, 3)
	require.NoError(t, err)

	assert.Empty(t, page.Tracks)
	assert.False(t, page.HasMore)
}

func TestTrack_ServedFromListCache(t *testing.T) {
	var trackRequests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/recordings" {
			_, _ = w.Write([]byte(listBody))
			return
		}
		trackRequests.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "")
	require.NoError(t, err)
	_, err = c.List(context.Background(), EndpointNew, 1)
	require.NoError(t, err)

	track, err := c.Track(context.Background(), "rec-1")
	require.NoError(t, err)

	assert.Equal(t, "Morning Devotion", track.Title)
	assert.Zero(t, trackRequests.Load(), "listed track should not refetch")
}

func TestTrack_Fetches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recordings/rec-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"result": {"id": "rec-9", "title": "Standalone", "duration": 60, "mediaUrl": "https://media.test/rec-9.mp3"}}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "")
	require.NoError(t, err)

	track, err := c.Track(context.Background(), "rec-9")
	require.NoError(t, err)
	assert.Equal(t, "Standalone", track.Title)
	assert.Equal(t, time.Minute, track.Duration)
}

func TestTrack_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "")
	require.NoError(t, err)

	_, err = c.Track(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTrack_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": {}}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "")
	require.NoError(t, err)

	_, err = c.Track(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionToken_SentAsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"result": [], "pagination": {"current_page": 1, "total_pages": 1}}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "tok-123")
	require.NoError(t, err)

	_, err = c.List(context.Background(), EndpointBooks, 1)
	require.NoError(t, err)
}

func TestAuthHeaders(t *testing.T) {
	c, err := New("https://api.test", "tok-123")
	require.NoError(t, err)
	headers := c.AuthHeaders()
	assert.Equal(t, "Bearer tok-123", headers["Authorization"])

	anon, err := New("https://api.test", "")
	require.NoError(t, err)
	assert.Nil(t, anon.AuthHeaders())
}
