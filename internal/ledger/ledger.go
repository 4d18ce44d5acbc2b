// Package ledger keeps an append-only history of what the control loop did:
// anchor refreshes, failed refreshes, failed pushes and presence transitions.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventAnchorRefreshed EventType = "anchor_refreshed"
	EventRefreshFailed   EventType = "refresh_failed"
	EventActuationFailed EventType = "actuation_failed"
	EventStateChanged    EventType = "state_changed"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64          `json:"id"`
	EventType EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Device    string         `json:"device,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Ledger appends events to SQLite. Each process start gets its own run id so
// entries from different runs can be told apart.
type Ledger struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{
		db:    db,
		runID: uuid.NewString(),
		now:   time.Now,
	}
}

// RunID returns the id stamped on every entry written by this ledger.
func (l *Ledger) RunID() string {
	return l.runID
}

// Append adds a new event. device may be empty.
func (l *Ledger) Append(eventType EventType, device string, payload map[string]any) error {
	var payloadJSON []byte
	if payload != nil {
		var err error
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	_, err := l.db.Exec(
		`INSERT INTO event_ledger (event_type, timestamp, run_id, device, payload) VALUES (?, ?, ?, ?, ?)`,
		string(eventType), l.now().UTC().Unix(), l.runID, device, string(payloadJSON),
	)
	return err
}

// GetByType returns entries filtered by event type, newest first.
func (l *Ledger) GetByType(eventType EventType, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, run_id, device, payload
		FROM event_ledger
		WHERE event_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Recent returns the latest entries of any type, newest first.
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, run_id, device, payload
		FROM event_ledger
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the retention period.
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().Unix()
	result, err := l.db.Exec(`DELETE FROM event_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var (
			entry      Entry
			timestamp  int64
			device     sql.NullString
			payloadStr sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.EventType, &timestamp, &entry.RunID, &device, &payloadStr); err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		entry.Device = device.String

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
