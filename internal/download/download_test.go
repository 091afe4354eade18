package download

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versecast/versecast/internal/cache"
	"github.com/versecast/versecast/internal/catalog"
	"github.com/versecast/versecast/internal/state"
)

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	dir := t.TempDir()
	m, err := state.OpenPath(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	store, err := cache.NewStore(filepath.Join(dir, "media"), m.DB())
	require.NoError(t, err)
	return store
}

// drain consumes progress reports until the channel closes and returns the
// final one.
func drain(t *testing.T, ch <-chan Progress) Progress {
	t.Helper()
	var last Progress
	timeout := time.After(10 * time.Second)
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				return last
			}
			last = p
		case <-timeout:
			t.Fatal("progress channel never terminated")
		}
	}
}

func TestRequest_Downloads(t *testing.T) {
	body := []byte("full media body, long enough for the probe to accept")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	store := newTestStore(t)
	mgr := NewManager(store, nil, 1, nil)
	defer mgr.Close()

	track := catalog.Track{ID: "rec-1", Title: "Morning Devotion", MediaURL: srv.URL}
	_, ch := mgr.Request(track)

	final := drain(t, ch)
	assert.Equal(t, StatusComplete, final.Status)
	assert.Equal(t, int64(len(body)), final.BytesDone)

	media, err := store.Lookup("rec-1")
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), media.Size)
}

func TestRequest_SendsAuthHeaders(t *testing.T) {
	var gotToken atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken.Store(r.Header.Get("x-av-session"))
		_, _ = w.Write([]byte("media body with an auth check"))
	}))
	defer srv.Close()

	store := newTestStore(t)
	headers := func() map[string]string { return map[string]string{"x-av-session": "tok"} }
	mgr := NewManager(store, headers, 1, nil)
	defer mgr.Close()

	_, ch := mgr.Request(catalog.Track{ID: "rec-1", MediaURL: srv.URL})
	final := drain(t, ch)

	require.Equal(t, StatusComplete, final.Status)
	assert.Equal(t, "tok", gotToken.Load())
}

func TestRequest_DedupsSameTrack(t *testing.T) {
	var requests atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release
		_, _ = w.Write([]byte("shared body for both observers"))
	}))
	defer srv.Close()

	store := newTestStore(t)
	mgr := NewManager(store, nil, 1, nil)
	defer mgr.Close()

	track := catalog.Track{ID: "rec-1", MediaURL: srv.URL}
	job1, ch1 := mgr.Request(track)
	job2, ch2 := mgr.Request(track)
	assert.Same(t, job1, job2, "second request should attach to the in-flight job")

	close(release)
	final1 := drain(t, ch1)
	final2 := drain(t, ch2)

	assert.Equal(t, StatusComplete, final1.Status)
	assert.Equal(t, StatusComplete, final2.Status)
	assert.Equal(t, int64(1), requests.Load(), "only one transfer for duplicate requests")
}

func TestRequest_AlreadyCached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("body fetched exactly once per track"))
	}))
	defer srv.Close()

	store := newTestStore(t)
	mgr := NewManager(store, nil, 1, nil)
	defer mgr.Close()

	track := catalog.Track{ID: "rec-1", MediaURL: srv.URL}
	_, ch := mgr.Request(track)
	require.Equal(t, StatusComplete, drain(t, ch).Status)

	// Second request short-circuits on the cache record.
	_, ch = mgr.Request(track)
	final := drain(t, ch)
	assert.Equal(t, StatusComplete, final.Status)
	assert.Equal(t, final.BytesTotal, final.BytesDone)
}

func TestCancel_LeavesNoCacheRecord(t *testing.T) {
	started := make(chan struct{})
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		close(started)
		<-block
	}))
	defer srv.Close()
	defer close(block)

	store := newTestStore(t)
	mgr := NewManager(store, nil, 1, nil)
	defer mgr.Close()

	_, ch := mgr.Request(catalog.Track{ID: "rec-1", MediaURL: srv.URL})
	<-started
	mgr.Cancel("rec-1")

	final := drain(t, ch)
	assert.Equal(t, StatusCanceled, final.Status)
	assert.ErrorIs(t, final.Err, ErrCanceled)

	_, err := store.Lookup("rec-1")
	assert.ErrorIs(t, err, cache.ErrNotCached)

	// No .part leftovers either.
	leftovers, err := filepath.Glob(filepath.Join(store.Dir(), "*.part"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFailedTransfer_LeavesNoCacheRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	store := newTestStore(t)
	mgr := NewManager(store, nil, 1, nil)
	defer mgr.Close()

	_, ch := mgr.Request(catalog.Track{ID: "rec-1", MediaURL: srv.URL})

	final := drain(t, ch)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Error(t, final.Err)

	_, err := store.Lookup("rec-1")
	assert.ErrorIs(t, err, cache.ErrNotCached)
}

func TestRequest_RetryAfterFailure(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("second attempt delivers the body"))
	}))
	defer srv.Close()

	store := newTestStore(t)
	mgr := NewManager(store, nil, 1, nil)
	defer mgr.Close()

	track := catalog.Track{ID: "rec-1", MediaURL: srv.URL}
	_, ch := mgr.Request(track)
	require.Equal(t, StatusFailed, drain(t, ch).Status)

	// A terminal job does not block a fresh request for the same id.
	_, ch = mgr.Request(track)
	assert.Equal(t, StatusComplete, drain(t, ch).Status)
}

func TestConcurrencyLimit_QueuesExcessJobs(t *testing.T) {
	var active atomic.Int64
	var peak atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		active.Add(-1)
		_, _ = w.Write([]byte("a body that is big enough to probe"))
	}))
	defer srv.Close()

	store := newTestStore(t)
	mgr := NewManager(store, nil, 2, nil)
	defer mgr.Close()

	channels := make([]<-chan Progress, 0, 5)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_, ch := mgr.Request(catalog.Track{ID: id, MediaURL: srv.URL})
		channels = append(channels, ch)
	}
	for _, ch := range channels {
		require.Equal(t, StatusComplete, drain(t, ch).Status)
	}

	assert.LessOrEqual(t, peak.Load(), int64(2), "no more than two transfers in flight")
}

func TestClose_CancelsPending(t *testing.T) {
	started := make(chan struct{})
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		close(started)
		<-block
	}))
	defer srv.Close()
	defer close(block)

	store := newTestStore(t)
	mgr := NewManager(store, nil, 1, nil)

	_, ch := mgr.Request(catalog.Track{ID: "rec-1", MediaURL: srv.URL})
	<-started
	mgr.Close()

	final := drain(t, ch)
	assert.Equal(t, StatusCanceled, final.Status)

	// Requests after close are refused as canceled.
	_, ch = mgr.Request(catalog.Track{ID: "rec-2", MediaURL: srv.URL})
	assert.Equal(t, StatusCanceled, drain(t, ch).Status)
}

func TestProgress_Terminal(t *testing.T) {
	assert.False(t, Progress{Status: StatusQueued}.Terminal())
	assert.False(t, Progress{Status: StatusActive}.Terminal())
	assert.True(t, Progress{Status: StatusComplete}.Terminal())
	assert.True(t, Progress{Status: StatusFailed}.Terminal())
	assert.True(t, Progress{Status: StatusCanceled}.Terminal())
}
