// Package storage persists the controller's settings and event log in SQLite.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open creates a new database connection and runs migrations
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return New(conn), nil
}

// New wraps an already migrated connection
func New(conn *sql.DB) *DB {
	return &DB{conn: conn, now: time.Now}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// --- Device Settings ---

// GetSettings returns the persisted settings, or nil if none were ever saved
func (db *DB) GetSettings() (*DeviceSettings, error) {
	row := db.conn.QueryRow("SELECT set_temp, light, updated_at FROM device_settings WHERE id = 1")

	var s DeviceSettings
	err := row.Scan(&s.SetTemp, &s.Light, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device settings: %w", err)
	}

	return &s, nil
}

// SaveSetpoint stores a new setpoint, creating the settings row on first use
func (db *DB) SaveSetpoint(setTemp int) error {
	_, err := db.conn.Exec(`
		INSERT INTO device_settings (id, set_temp, light, updated_at)
		VALUES (1, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			set_temp = excluded.set_temp,
			updated_at = excluded.updated_at
	`, setTemp, db.now())
	if err != nil {
		return fmt.Errorf("failed to save setpoint: %w", err)
	}
	return nil
}

// SaveLight stores the selected mood. The setpoint is only written if the row is new.
func (db *DB) SaveLight(light, setTemp int) error {
	_, err := db.conn.Exec(`
		INSERT INTO device_settings (id, set_temp, light, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			light = excluded.light,
			updated_at = excluded.updated_at
	`, setTemp, light, db.now())
	if err != nil {
		return fmt.Errorf("failed to save light: %w", err)
	}
	return nil
}

// --- Event Log ---

// LogEvent records an event in the log
func (db *DB) LogEvent(source EventSource, eventType EventType, message string, details interface{}) error {
	var detailsJSON []byte
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
	}

	_, err := db.conn.Exec(
		"INSERT INTO event_log (timestamp, source, event_type, message, details) VALUES (?, ?, ?, ?, ?)",
		db.now(), source, eventType, message, detailsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to log event: %w", err)
	}

	return nil
}

// GetEventLogs retrieves events with optional filtering, newest first
func (db *DB) GetEventLogs(filter EventLogFilter) ([]EventLog, error) {
	query := "SELECT id, timestamp, source, event_type, message, details FROM event_log WHERE 1=1"
	args := []interface{}{}

	if filter.Source != nil {
		query += " AND source = ?"
		args = append(args, *filter.Source)
	}
	if filter.EventType != nil {
		query += " AND event_type = ?"
		args = append(args, *filter.EventType)
	}
	if filter.Since != nil {
		query += " AND timestamp >= ?"
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		query += " AND timestamp <= ?"
		args = append(args, *filter.Until)
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event logs: %w", err)
	}
	defer rows.Close()

	var logs []EventLog
	for rows.Next() {
		var entry EventLog
		var message, details sql.NullString
		err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.Source, &entry.EventType, &message, &details)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event log: %w", err)
		}
		entry.Message = message.String
		if details.Valid && details.String != "" {
			entry.Details = json.RawMessage(details.String)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event logs: %w", err)
	}

	return logs, nil
}

// PruneEventLogs removes event logs older than the cutoff
func (db *DB) PruneEventLogs(olderThan time.Time) (int64, error) {
	result, err := db.conn.Exec("DELETE FROM event_log WHERE timestamp < ?", olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune event logs: %w", err)
	}

	return result.RowsAffected()
}
