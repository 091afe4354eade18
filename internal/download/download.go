// Package download schedules background fetches of remote media into the
// cache store.
//
// At most one queued or active job exists per track id: concurrent requests
// for the same id attach as additional progress observers of the existing
// job. Transfers stream into a .part temporary file and are promoted into
// the cache only on full completion, so a killed or failed job never leaves
// a cache record behind.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/versecast/versecast/internal/cache"
	"github.com/versecast/versecast/internal/catalog"
)

// Job status values.
const (
	StatusQueued   = "queued"
	StatusActive   = "active"
	StatusFailed   = "failed"
	StatusComplete = "complete"
	StatusCanceled = "canceled"
)

// ErrCanceled is carried by the final progress event of a canceled job.
var ErrCanceled = errors.New("download canceled")

// DefaultConcurrency bounds simultaneous transfers when none is configured.
const DefaultConcurrency = 3

const progressInterval = 500 * time.Millisecond

// Progress is one progress report for a job.
type Progress struct {
	TrackID    string
	BytesDone  int64
	BytesTotal int64
	Status     string
	Err        error // set on failed/canceled terminal reports
}

// Terminal returns true for the last report a job will ever emit.
func (p Progress) Terminal() bool {
	return p.Status == StatusComplete || p.Status == StatusFailed || p.Status == StatusCanceled
}

// Job tracks one transfer. All fields behind mu.
type Job struct {
	track catalog.Track

	mu        sync.Mutex
	status    string
	done      int64
	total     int64
	err       error
	observers []chan Progress
	cancel    context.CancelFunc
}

// TrackID returns the id this job downloads.
func (j *Job) TrackID() string {
	return j.track.ID
}

// Snapshot returns the job's current progress.
func (j *Job) Snapshot() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Progress{
		TrackID:    j.track.ID,
		BytesDone:  j.done,
		BytesTotal: j.total,
		Status:     j.status,
		Err:        j.err,
	}
}

func (j *Job) attach() <-chan Progress {
	ch := make(chan Progress, 16)
	j.mu.Lock()
	j.observers = append(j.observers, ch)
	// Replay current state so late observers see where the job stands.
	snapshot := Progress{TrackID: j.track.ID, BytesDone: j.done, BytesTotal: j.total, Status: j.status, Err: j.err}
	j.mu.Unlock()
	ch <- snapshot
	if snapshot.Terminal() {
		close(ch)
	}
	return ch
}

func (j *Job) update(status string, done, total int64, err error) {
	j.mu.Lock()
	j.status = status
	j.done = done
	j.total = total
	j.err = err
	p := Progress{TrackID: j.track.ID, BytesDone: done, BytesTotal: total, Status: status, Err: err}
	observers := j.observers
	if p.Terminal() {
		j.observers = nil
	}
	j.mu.Unlock()

	for _, ch := range observers {
		select {
		case ch <- p:
		default:
			// Slow observer, drop the report.
		}
		if p.Terminal() {
			close(ch)
		}
	}
}

func (j *Job) terminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status == StatusComplete || j.status == StatusFailed || j.status == StatusCanceled
}

// HeaderFunc supplies the authorization headers for media requests.
type HeaderFunc func() map[string]string

// Manager owns all download jobs and is the sole writer of the cache store.
type Manager struct {
	store      *cache.Store
	httpClient *http.Client
	headers    HeaderFunc
	sem        chan struct{}
	log        *zap.Logger

	mu     sync.Mutex
	jobs   map[string]*Job
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a manager with the given concurrency limit.
// A nil logger disables logging; concurrency <= 0 uses DefaultConcurrency.
func NewManager(store *cache.Store, headers HeaderFunc, concurrency int, log *zap.Logger) *Manager {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	if headers == nil {
		headers = func() map[string]string { return nil }
	}
	return &Manager{
		store: store,
		httpClient: &http.Client{
			Timeout: 0, // transfers may be long; cancellation is per-job context
		},
		headers: headers,
		sem:     make(chan struct{}, concurrency),
		log:     log,
		jobs:    make(map[string]*Job),
	}
}

// Request schedules a download for the track, or attaches to the in-flight
// job for the same id. The returned channel first replays the job's current
// state, then streams progress until a terminal report, after which it is
// closed.
func (m *Manager) Request(track catalog.Track) (*Job, <-chan Progress) {
	m.mu.Lock()
	if existing, ok := m.jobs[track.ID]; ok && !existing.terminal() {
		m.mu.Unlock()
		return existing, existing.attach()
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{track: track, status: StatusQueued, cancel: cancel}
	if m.closed {
		cancel()
		m.mu.Unlock()
		job.update(StatusCanceled, 0, 0, ErrCanceled)
		return job, job.attach()
	}
	m.jobs[track.ID] = job
	m.wg.Add(1)
	m.mu.Unlock()

	ch := job.attach()
	go m.run(ctx, job)
	return job, ch
}

// Cancel stops a queued or active job for the track id. Partial bytes are
// discarded. A no-op for unknown or finished jobs.
func (m *Manager) Cancel(trackID string) {
	m.mu.Lock()
	job, ok := m.jobs[trackID]
	m.mu.Unlock()
	if ok && !job.terminal() {
		job.cancel()
	}
}

// Job returns the latest job for a track id, or nil.
func (m *Manager) Job(trackID string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[trackID]
}

// Close cancels all remaining jobs and waits for their goroutines.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	for _, job := range m.jobs {
		if !job.terminal() {
			job.cancel()
		}
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context, job *Job) {
	defer m.wg.Done()
	defer job.cancel()

	// Already cached: nothing to transfer.
	if media, err := m.store.Lookup(job.track.ID); err == nil {
		job.update(StatusComplete, media.Size, media.Size, nil)
		return
	}

	// Wait for a worker slot; jobs beyond the limit stay queued.
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		job.update(StatusCanceled, 0, 0, ErrCanceled)
		return
	}
	defer func() { <-m.sem }()

	job.update(StatusActive, 0, 0, nil)
	m.log.Info("download started",
		zap.String("track_id", job.track.ID),
		zap.String("title", job.track.Title))

	if err := m.transfer(ctx, job); err != nil {
		if errors.Is(err, context.Canceled) {
			m.log.Info("download canceled", zap.String("track_id", job.track.ID))
			job.update(StatusCanceled, 0, 0, ErrCanceled)
			return
		}
		m.log.Warn("download failed",
			zap.String("track_id", job.track.ID),
			zap.Error(err))
		job.update(StatusFailed, 0, 0, err)
	}
}

// transfer streams the media body into a temporary file and promotes it on
// full completion. On any error the temporary file is removed.
func (m *Manager) transfer(ctx context.Context, job *Job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.track.MediaURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range m.headers() {
		req.Header.Set(k, v)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	tmpPath := filepath.Join(m.store.Dir(), fmt.Sprintf("%s.%s.part", job.track.ID, uuid.NewString()))
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		f.Close()
		os.Remove(tmpPath)
	}

	hasher := sha256.New()
	pw := &progressWriter{job: job, total: resp.ContentLength, hasher: hasher}

	if _, err := io.Copy(io.MultiWriter(f, pw), resp.Body); err != nil {
		cleanup()
		if ctx.Err() != nil {
			return context.Canceled
		}
		return fmt.Errorf("transfer: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	media, err := m.store.Promote(job.track.ID, tmpPath, sum)
	if err != nil {
		os.Remove(tmpPath)
		return err
	}

	m.log.Info("download complete",
		zap.String("track_id", job.track.ID),
		zap.Int64("size", media.Size))
	job.update(StatusComplete, media.Size, media.Size, nil)
	return nil
}

// progressWriter counts transferred bytes, feeds the hash, and reports
// progress at most every progressInterval.
type progressWriter struct {
	job    *Job
	total  int64
	hasher hash.Hash
	done   int64
	last   time.Time
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.hasher.Write(p)
	w.done += int64(len(p))
	if now := time.Now(); now.Sub(w.last) >= progressInterval {
		w.last = now
		w.job.update(StatusActive, w.done, w.total, nil)
	}
	return len(p), nil
}
