// Package favorites persists the set of favorited track ids.
package favorites

import (
	"database/sql"
	"errors"
	"time"

	dbutil "github.com/versecast/versecast/internal/db"
)

// Ledger is a persisted favorite set with toggle semantics.
type Ledger struct {
	db *sql.DB
}

// New creates a ledger over the application database.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Toggle flips membership for the track id and returns the new membership.
// Each call flips state: two successive calls return true then false.
func (l *Ledger) Toggle(trackID string) (bool, error) {
	isFav, err := l.IsFavorite(trackID)
	if err != nil {
		return false, err
	}

	err = dbutil.WithTx(l.db, func(tx *sql.Tx) error {
		if isFav {
			_, err := tx.Exec(`DELETE FROM favorites WHERE track_id = ?`, trackID)
			return err
		}
		_, err := tx.Exec(`INSERT INTO favorites (track_id, added_at) VALUES (?, ?)`,
			trackID, time.Now().Unix())
		return err
	})
	if err != nil {
		return false, err
	}
	return !isFav, nil
}

// IsFavorite reports whether the track id is in the set.
func (l *Ledger) IsFavorite(trackID string) (bool, error) {
	var one int
	err := l.db.QueryRow(`SELECT 1 FROM favorites WHERE track_id = ?`, trackID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// All returns every favorited track id, most recently added first.
func (l *Ledger) All() ([]string, error) {
	rows, err := l.db.Query(`SELECT track_id FROM favorites ORDER BY added_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
