package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/aquactl/internal/output"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

// Record appends one output event.
func (l *EventLog) Record(e output.Event) error {
	errText := ""
	if e.Err != nil {
		errText = e.Err.Error()
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := l.db.Exec(`INSERT INTO output_events (output_id, op, value, overridden, ok, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Output, string(e.Op), e.Value.Serialize(), e.Overridden, e.Err == nil, errText, at.UTC().Format(TimeLayout))
	if err != nil {
		return fmt.Errorf("failed to record event for %s: %w", e.Output, err)
	}
	return nil
}

// OutputWritten records e, logging instead of failing.
func (l *EventLog) OutputWritten(e output.Event) {
	if err := l.Record(e); err != nil {
		log.Warn().Err(err).Str("output", e.Output).Msg("Could not write event log")
	}
}

// Prune deletes events older than before, keeping at least the newest
// event of every output.
func (l *EventLog) Prune(before time.Time) (int64, error) {
	tx, err := StartTransaction(l.db)
	if err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM output_events
		WHERE created_at < ?
		AND id NOT IN (SELECT MAX(id) FROM output_events GROUP BY output_id)`,
		before.UTC().Format(TimeLayout))
	if err != nil {
		RollbackTransaction(tx)
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	if err := CommitTransaction(tx); err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
