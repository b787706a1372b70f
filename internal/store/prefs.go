// Package store provides persistent per-device preferences for scened.
// Preferences survive restarts so asserted scenes and timeshifts are not
// lost with the process.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DevicePrefs holds the persisted preferences for a single device
type DevicePrefs struct {
	DeviceID     string
	Timeshift    int
	ActiveScenes []string
	UpdatedAt    time.Time
}

// PrefsStore persists per-device preferences in SQLite
type PrefsStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewPrefsStore creates a new PrefsStore
func NewPrefsStore(db *sql.DB) *PrefsStore {
	return &PrefsStore{db: db}
}

// Get retrieves the preferences for a device. Returns zero-valued
// preferences for a device with no stored row.
func (s *PrefsStore) Get(deviceID string) (*DevicePrefs, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var prefs DevicePrefs
	var scenesJSON string
	var updatedAt int64

	err := s.db.QueryRow(`
		SELECT device_id, timeshift, active_scenes, updated_at
		FROM device_prefs
		WHERE device_id = ?
	`, deviceID).Scan(&prefs.DeviceID, &prefs.Timeshift, &scenesJSON, &updatedAt)

	if err == sql.ErrNoRows {
		return &DevicePrefs{DeviceID: deviceID, ActiveScenes: []string{}}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(scenesJSON), &prefs.ActiveScenes); err != nil {
		return nil, fmt.Errorf("failed to decode active scenes for %s: %w", deviceID, err)
	}
	prefs.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &prefs, nil
}

// Set upserts the preferences for a device
func (s *PrefsStore) Set(deviceID string, timeshift int, activeScenes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if activeScenes == nil {
		activeScenes = []string{}
	}
	scenesJSON, err := json.Marshal(activeScenes)
	if err != nil {
		return fmt.Errorf("failed to encode active scenes for %s: %w", deviceID, err)
	}

	now := time.Now().UTC().Unix()

	_, err = s.db.Exec(`
		INSERT INTO device_prefs (device_id, timeshift, active_scenes, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			timeshift = excluded.timeshift,
			active_scenes = excluded.active_scenes,
			updated_at = excluded.updated_at
	`, deviceID, timeshift, string(scenesJSON), now)

	return err
}

// All returns the preferences of every known device
func (s *PrefsStore) All() ([]*DevicePrefs, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT device_id, timeshift, active_scenes, updated_at
		FROM device_prefs
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []*DevicePrefs
	for rows.Next() {
		var prefs DevicePrefs
		var scenesJSON string
		var updatedAt int64

		if err := rows.Scan(&prefs.DeviceID, &prefs.Timeshift, &scenesJSON, &updatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(scenesJSON), &prefs.ActiveScenes); err != nil {
			return nil, fmt.Errorf("failed to decode active scenes for %s: %w", prefs.DeviceID, err)
		}
		prefs.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		all = append(all, &prefs)
	}

	return all, rows.Err()
}

// Clear removes all stored preferences (for testing)
func (s *PrefsStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM device_prefs`)
	return err
}
