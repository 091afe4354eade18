package state

import (
	"database/sql"
	"errors"
	"time"

	"github.com/versecast/versecast/internal/catalog"
	dbutil "github.com/versecast/versecast/internal/db"
)

// SavedQueue is the persisted queue content and cursor.
type SavedQueue struct {
	CurrentIndex int
	Tracks       []catalog.Track
}

// LoadQueue restores the last saved queue. Returns an empty queue with
// CurrentIndex -1 when nothing was saved.
func (m *Manager) LoadQueue() (*SavedQueue, error) {
	var currentIndex int
	row := m.db.QueryRow(`SELECT current_index FROM queue_state WHERE id = 1`)
	err := row.Scan(&currentIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return &SavedQueue{CurrentIndex: -1}, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := m.db.Query(`
		SELECT track_id, title, artist, duration_ms, artwork_url, media_url, video_url, bit_rate, language
		FROM queue_tracks
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []catalog.Track
	for rows.Next() {
		var t catalog.Track
		var artist, artwork, video, language sql.NullString
		var durationMS int64

		err := rows.Scan(&t.ID, &t.Title, &artist, &durationMS, &artwork, &t.MediaURL, &video, &t.BitRate, &language)
		if err != nil {
			return nil, err
		}

		t.Artist = dbutil.NullStringValue(artist)
		t.ArtworkURL = dbutil.NullStringValue(artwork)
		t.VideoURL = dbutil.NullStringValue(video)
		t.Language = dbutil.NullStringValue(language)
		t.Duration = time.Duration(durationMS) * time.Millisecond
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &SavedQueue{CurrentIndex: currentIndex, Tracks: tracks}, nil
}

// SaveQueue replaces the persisted queue with the given content and cursor.
func (m *Manager) SaveQueue(sq SavedQueue) error {
	return dbutil.WithTx(m.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM queue_tracks`)
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			INSERT INTO queue_state (id, current_index)
			VALUES (1, ?)
			ON CONFLICT(id) DO UPDATE SET current_index = excluded.current_index
		`, sq.CurrentIndex)
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO queue_tracks (position, track_id, title, artist, duration_ms, artwork_url, media_url, video_url, bit_rate, language)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range sq.Tracks {
			_, err = stmt.Exec(i, t.ID, t.Title, t.Artist, t.Duration.Milliseconds(),
				t.ArtworkURL, t.MediaURL, t.VideoURL, t.BitRate, t.Language)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
