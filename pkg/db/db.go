// Package db is the durable route archive. The hot path serves routes from
// the store; sqlite only exists so prepared courses survive a restart.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver

	"racepulse/pkg/model"
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Enable WAL mode for better concurrency and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{db}
	// Enforce single connection to avoid SQLITE_BUSY errors during concurrent writes
	db.SetMaxOpenConns(1)

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

// SaveRoute archives a prepared route, replacing any earlier upload for the
// same course.
func (d *DB) SaveRoute(ctx context.Context, route *model.Route) error {
	data, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("failed to encode route: %w", err)
	}
	_, err = d.ExecContext(ctx, `
		INSERT INTO route_archive (event_id, event_detail_id, data, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(event_id, event_detail_id) DO UPDATE SET
			data = excluded.data,
			created_at = excluded.created_at`,
		route.EventID, route.EventDetailID, data,
		route.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	return err
}

// LoadRoute returns the archived route, or nil when none exists.
func (d *DB) LoadRoute(ctx context.Context, eventID, eventDetailID int64) (*model.Route, error) {
	var data []byte
	err := d.QueryRowContext(ctx,
		"SELECT data FROM route_archive WHERE event_id = ? AND event_detail_id = ?",
		eventID, eventDetailID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var route model.Route
	if err := json.Unmarshal(data, &route); err != nil {
		return nil, fmt.Errorf("failed to decode route: %w", err)
	}
	return &route, nil
}

// LoadAllRoutes streams every archived route, used to rewarm the store at
// startup.
func (d *DB) LoadAllRoutes(ctx context.Context) ([]*model.Route, error) {
	rows, err := d.QueryContext(ctx, "SELECT data FROM route_archive")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []*model.Route
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var route model.Route
		if err := json.Unmarshal(data, &route); err != nil {
			// A corrupt row should not block the rest of the rewarm.
			continue
		}
		routes = append(routes, &route)
	}
	return routes, rows.Err()
}

// DeleteRoute removes an archived route.
func (d *DB) DeleteRoute(ctx context.Context, eventID, eventDetailID int64) error {
	_, err := d.ExecContext(ctx,
		"DELETE FROM route_archive WHERE event_id = ? AND event_detail_id = ?",
		eventID, eventDetailID)
	return err
}

// PruneRoutes removes archived routes older than the specified duration.
func (d *DB) PruneRoutes(olderThan time.Duration) error {
	// Format time compatible with SQLite DEFAULT CURRENT_TIMESTAMP (YYYY-MM-DD HH:MM:SS)
	deadline := time.Now().Add(-olderThan).UTC().Format("2006-01-02 15:04:05")
	_, err := d.Exec("DELETE FROM route_archive WHERE created_at < ?", deadline)
	return err
}

// SetState stores a small housekeeping value under a key.
func (d *DB) SetState(ctx context.Context, key, value string) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO persistent_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

// GetState returns the stored value, or "" when the key is absent.
func (d *DB) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := d.QueryRowContext(ctx,
		"SELECT value FROM persistent_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS route_archive (
			event_id INTEGER NOT NULL,
			event_detail_id INTEGER NOT NULL,
			data BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (event_id, event_detail_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_route_archive_event
			ON route_archive (event_id);`,
		`CREATE TABLE IF NOT EXISTS persistent_state (
			key TEXT PRIMARY KEY,
			value TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	return nil
}
