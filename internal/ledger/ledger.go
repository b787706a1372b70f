// Package ledger provides an append-only history of device writes for
// scened. It is used for auditing which payloads were sent to which
// devices and when.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry represents a single recorded device write
type Entry struct {
	ID        string
	DeviceID  string
	Payload   map[string]any
	CreatedAt time.Time
}

// Ledger records device writes in SQLite
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Record appends a device write to the ledger
func (l *Ledger) Record(deviceID string, payload map[string]any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now().UTC().Unix()

	_, err = l.db.Exec(`
		INSERT INTO write_audit (id, device_id, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, uuid.New().String(), deviceID, string(payloadJSON), now)

	return err
}

// GetByDevice returns the most recent writes for a device
func (l *Ledger) GetByDevice(deviceID string, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, device_id, payload, created_at
		FROM write_audit
		WHERE device_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadJSON string
		var createdAt int64

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &payloadJSON, &createdAt); err != nil {
			return nil, err
		}
		if payloadJSON != "" {
			if err := json.Unmarshal([]byte(payloadJSON), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}
		entry.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// DeleteOlderThan removes entries created before the cutoff time.
// Returns the number of deleted rows.
func (l *Ledger) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := l.db.Exec(`
		DELETE FROM write_audit WHERE created_at < ?
	`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
