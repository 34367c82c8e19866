package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Entry is one stored output event.
type Entry struct {
	ID         int64     `json:"id"`
	Output     string    `json:"output"`
	Op         string    `json:"op"`
	Value      string    `json:"value"`
	Overridden bool      `json:"overridden"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

const DefaultLimit = 100

const selectEvents = `SELECT id, output_id, op, value, overridden, ok, error, created_at FROM output_events`

// Recent returns the newest events first.
func (l *EventLog) Recent(limit int) ([]Entry, error) {
	rows, err := l.db.Query(selectEvents+` ORDER BY id DESC LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return scanEntries(rows)
}

// ForOutput returns the newest events of one output first.
func (l *EventLog) ForOutput(id string, limit int) ([]Entry, error) {
	rows, err := l.db.Query(selectEvents+` WHERE output_id = ? ORDER BY id DESC LIMIT ?`, id, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query events for %s: %w", id, err)
	}
	return scanEntries(rows)
}

// Count returns the number of stored events.
func (l *EventLog) Count() (int, error) {
	var n int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM output_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.ID, &e.Output, &e.Op, &e.Value, &e.Overridden, &e.OK, &e.Error, &at); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
