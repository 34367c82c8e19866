// Package db stores the output event log in SQLite.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `CREATE TABLE IF NOT EXISTS output_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	output_id TEXT NOT NULL,
	op TEXT NOT NULL,
	value TEXT NOT NULL,
	overridden BOOLEAN NOT NULL DEFAULT FALSE,
	ok BOOLEAN NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_output_events_output ON output_events (output_id, id);`

// TimeLayout is the fixed-width UTC layout of created_at, so text order is
// time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// EventLog is the append-only record of every output write.
type EventLog struct {
	db *sql.DB
}

// Open opens or creates the event log at path. ":memory:" gives a
// throwaway log.
func Open(path string) (*EventLog, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps :memory: shared
	conn.SetMaxOpenConns(1)

	if err := ApplyMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}
	log.Info().Str("path", path).Msg("Event log opened")
	return &EventLog{db: conn}, nil
}

// ApplyMigrations creates the event table and adds columns missing from
// logs written by older versions.
func ApplyMigrations(conn *sql.DB) error {
	if _, err := conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	columns, err := tableColumns(conn, "output_events")
	if err != nil {
		return err
	}
	if !columns["op"] {
		if _, err := conn.Exec(`ALTER TABLE output_events ADD COLUMN op TEXT NOT NULL DEFAULT 'control'`); err != nil {
			return fmt.Errorf("failed to add op column: %w", err)
		}
		log.Info().Msg("Migrated event log: added op column")
	}
	return nil
}

func tableColumns(conn *sql.DB, table string) (map[string]bool, error) {
	rows, err := conn.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return nil, fmt.Errorf("failed to read table info: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notNull bool
		var defaultValue *string
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan table info: %w", err)
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

func (l *EventLog) Close() error {
	return l.db.Close()
}
