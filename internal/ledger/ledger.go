// Package ledger provides an append-only audit history of bulb dispatches and
// state transitions. It is write-only from the daemon's point of view: nothing
// in it is ever used to restore device state.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/markerd/internal/eventbus"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventDispatchSucceeded EventType = "dispatch_succeeded"
	EventDispatchFailed    EventType = "dispatch_failed"
	EventStateChanged      EventType = "state_changed"
	EventTagUnrecognized   EventType = "tag_unrecognized"
	EventCommandSubmitted  EventType = "command_submitted"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID         int64          `json:"id"`
	EventType  EventType      `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	Payload    map[string]any `json:"payload,omitempty"`
	Source     string         `json:"source,omitempty"`
	DispatchID string         `json:"dispatch_id,omitempty"`
}

// Ledger provides append-only event logging
type Ledger struct {
	db    *sql.DB
	clock func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, clock: time.Now}
}

// Append adds a new event to the ledger.
// Dispatch events with a known dispatch ID are recorded at most once.
func (l *Ledger) Append(eventType EventType, source, dispatchID string, payload map[string]any) error {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	insertSQL := `INSERT INTO event_ledger (event_type, timestamp, payload, source, dispatch_id) VALUES (?, ?, ?, ?, ?)`
	if dispatchID != "" {
		insertSQL = `INSERT OR IGNORE INTO event_ledger (event_type, timestamp, payload, source, dispatch_id) VALUES (?, ?, ?, ?, ?)`
	}

	_, err = l.db.Exec(insertSQL, string(eventType), l.clock().UTC().UnixMilli(), string(payloadJSON), source, dispatchID)
	return err
}

// Register records bus events into the ledger.
func (l *Ledger) Register(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeBulbDispatched, l.onDispatched)
	bus.Subscribe(eventbus.EventTypeStateChanged, l.onStateChanged)
	bus.Subscribe(eventbus.EventTypeTagUnrecognized, l.onUnrecognized)
	bus.Subscribe(eventbus.EventTypeCommandSubmitted, l.onSubmitted)
}

func (l *Ledger) onDispatched(e eventbus.Event) {
	eventType := EventDispatchSucceeded
	if ok, _ := e.Data["ok"].(bool); !ok {
		eventType = EventDispatchFailed
	}
	dispatchID, _ := e.Data["dispatch_id"].(string)

	if err := l.Append(eventType, "dispatcher", dispatchID, e.Data); err != nil {
		log.Error().Err(err).Str("dispatch_id", dispatchID).Msg("Failed to record dispatch")
	}
}

func (l *Ledger) onStateChanged(e eventbus.Event) {
	if err := l.Append(EventStateChanged, "core", "", e.Data); err != nil {
		log.Error().Err(err).Msg("Failed to record state change")
	}
}

func (l *Ledger) onUnrecognized(e eventbus.Event) {
	if err := l.Append(EventTagUnrecognized, "rfid", "", e.Data); err != nil {
		log.Error().Err(err).Msg("Failed to record unrecognized tag")
	}
}

func (l *Ledger) onSubmitted(e eventbus.Event) {
	source, _ := e.Data["source"].(string)
	if err := l.Append(EventCommandSubmitted, source, "", e.Data); err != nil {
		log.Error().Err(err).Msg("Failed to record submitted command")
	}
}

// Recent returns the newest entries first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, payload, source, dispatch_id
		FROM event_ledger
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByType returns entries filtered by event type
func (l *Ledger) GetByType(eventType EventType, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, payload, source, dispatch_id
		FROM event_ledger
		WHERE event_type = ?
		ORDER BY id DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := l.clock().Add(-retention).UTC().UnixMilli()
	result, err := l.db.Exec(`
		DELETE FROM event_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RunRetention prunes entries older than retention every interval until ctx is cancelled.
func (l *Ledger) RunRetention(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Ledger retention failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("Ledger retention pruned entries")
			}
		}
	}
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr, source, dispatchID sql.NullString
		var timestamp int64

		err := rows.Scan(&entry.ID, &entry.EventType, &timestamp, &payloadStr, &source, &dispatchID)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		if source.Valid {
			entry.Source = source.String
		}
		if dispatchID.Valid {
			entry.DispatchID = dispatchID.String
		}

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
