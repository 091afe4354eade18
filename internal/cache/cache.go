// Package cache persists fully-downloaded media files and their index.
//
// A cached_media record exists only for a complete, verified file: the
// download manager streams into a temporary file and calls Promote once the
// transfer finished, so playback can never observe a truncated body.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dhowden/tag"

	dbutil "github.com/versecast/versecast/internal/db"
)

// ErrNotCached is returned by Lookup when no record exists for the track.
var ErrNotCached = errors.New("track not cached")

// ErrCorrupt is returned when a cached file fails verification. Lookup
// removes the record before returning it, so the caller can fall back to
// remote resolution.
var ErrCorrupt = errors.New("cached media corrupt")

// Media is the index record for one fully-downloaded file.
type Media struct {
	TrackID      string
	Path         string
	Size         int64
	Checksum     string // hex sha256 of the file body
	DownloadedAt time.Time
}

// Store is the cache store. The download manager is its only writer.
type Store struct {
	dir string
	db  *sql.DB
}

// NewStore creates a store over the given media directory and database.
func NewStore(dir string, db *sql.DB) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, db: db}, nil
}

// Dir returns the directory holding media bodies.
func (s *Store) Dir() string {
	return s.dir
}

// MediaPath returns the final on-disk path for a track's media body.
func (s *Store) MediaPath(trackID string) string {
	return filepath.Join(s.dir, trackID+".mp3")
}

// Lookup returns the verified cache record for the track, ErrNotCached when
// absent, or ErrCorrupt when the file on disk does not match the record (in
// which case the stale record is removed).
func (s *Store) Lookup(trackID string) (*Media, error) {
	m, err := s.get(trackID)
	if err != nil {
		return nil, err
	}

	info, statErr := os.Stat(m.Path)
	if statErr != nil || info.Size() != m.Size {
		_ = s.Remove(trackID)
		return nil, ErrCorrupt
	}
	return m, nil
}

// Verify re-hashes the cached file and compares it against the recorded
// checksum. Slower than Lookup's size check; used by explicit integrity
// sweeps. A mismatch removes the record and returns ErrCorrupt.
func (s *Store) Verify(trackID string) error {
	m, err := s.get(trackID)
	if err != nil {
		return err
	}

	sum, err := hashFile(m.Path)
	if err != nil || sum != m.Checksum {
		_ = s.Remove(trackID)
		return ErrCorrupt
	}
	return nil
}

// Promote atomically moves a completed temporary file into the cache and
// records it. The temp file must be fully written; Promote probes it as a
// media file, renames it to its final path and inserts the index record.
func (s *Store) Promote(trackID, tmpPath string, checksum string) (*Media, error) {
	info, err := os.Stat(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("stat temp file: %w", err)
	}

	if err := probeMedia(tmpPath); err != nil {
		return nil, fmt.Errorf("probe media: %w", err)
	}

	finalPath := s.MediaPath(trackID)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return nil, fmt.Errorf("promote: %w", err)
	}

	m := &Media{
		TrackID:      trackID,
		Path:         finalPath,
		Size:         info.Size(),
		Checksum:     checksum,
		DownloadedAt: time.Now(),
	}

	err = dbutil.WithTx(s.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO cached_media (track_id, path, size, checksum, downloaded_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(track_id) DO UPDATE SET
				path = excluded.path,
				size = excluded.size,
				checksum = excluded.checksum,
				downloaded_at = excluded.downloaded_at
		`, m.TrackID, m.Path, m.Size, m.Checksum, m.DownloadedAt.Unix())
		return err
	})
	if err != nil {
		// Index insert failed: remove the body so no orphan survives.
		_ = os.Remove(finalPath)
		return nil, err
	}

	return m, nil
}

// Remove deletes the index record and its backing file.
func (s *Store) Remove(trackID string) error {
	m, err := s.get(trackID)
	if errors.Is(err, ErrNotCached) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(`DELETE FROM cached_media WHERE track_id = ?`, trackID); err != nil {
		return err
	}
	if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns all cache records, newest first.
func (s *Store) List() ([]Media, error) {
	rows, err := s.db.Query(`
		SELECT track_id, path, size, checksum, downloaded_at
		FROM cached_media
		ORDER BY downloaded_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

// DiskUsage returns the total recorded size of all cached media.
func (s *Store) DiskUsage() (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(`SELECT SUM(size) FROM cached_media`).Scan(&total)
	if err != nil {
		return 0, err
	}
	return dbutil.NullInt64Value(total), nil
}

func (s *Store) get(trackID string) (*Media, error) {
	row := s.db.QueryRow(`
		SELECT track_id, path, size, checksum, downloaded_at
		FROM cached_media
		WHERE track_id = ?
	`, trackID)
	m, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotCached
	}
	return m, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedia(row rowScanner) (*Media, error) {
	var m Media
	var downloadedAt int64
	if err := row.Scan(&m.TrackID, &m.Path, &m.Size, &m.Checksum, &downloadedAt); err != nil {
		return nil, err
	}
	m.DownloadedAt = time.Unix(downloadedAt, 0)
	return &m, nil
}

// probeMedia opens the file as a media container. Untagged files are fine;
// only read failures reject the file.
func probeMedia(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := tag.ReadFrom(f); err != nil && !errors.Is(err, tag.ErrNoTagsFound) {
		return err
	}
	return nil
}

// HashFile returns the hex sha256 of a file body.
func HashFile(path string) (string, error) {
	return hashFile(path)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
