package state

import (
	"database/sql"
	"errors"
	"strconv"
)

// Preference keys used by the application.
const (
	PrefHideLogin = "hide_login"
	PrefLanguage  = "language"
)

// SetPref stores a preference value, replacing any previous one.
func (m *Manager) SetPref(key, value string) error {
	_, err := m.db.Exec(`
		INSERT INTO prefs (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// GetPref returns the stored value for key, or "" if unset.
func (m *Manager) GetPref(key string) (string, error) {
	var value string
	err := m.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// BoolPref returns the preference interpreted as a boolean, false if unset
// or unparseable.
func (m *Manager) BoolPref(key string) (bool, error) {
	value, err := m.GetPref(key)
	if err != nil {
		return false, err
	}
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, nil
	}
	return b, nil
}

// SetBoolPref stores a boolean preference.
func (m *Manager) SetBoolPref(key string, value bool) error {
	return m.SetPref(key, strconv.FormatBool(value))
}
