// Package tracking serves the telemetry tracking table over HTTP.
package tracking

import (
	"context"
	"database/sql"
	"fmt"

	"dataeng/internal/dbclient"
)

// Track is one telemetry reading.
type Track struct {
	ID        string  `json:"id"`
	Telem1    float64 `json:"telem_1"`
	Telem2    float64 `json:"telem_2"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	CreatedOn string  `json:"created_on"`
}

// Store reads and writes the tracking table.
type Store struct {
	db     *sql.DB
	driver dbclient.Driver
}

// NewStore wraps an open database. driver selects the bind syntax.
func NewStore(db *sql.DB, driver dbclient.Driver) *Store {
	return &Store{db: db, driver: driver}
}

// EnsureSchema creates the tracking table when it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tracking (
		id VARCHAR(64) PRIMARY KEY,
		telem_1 DOUBLE PRECISION NOT NULL,
		telem_2 DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		created_on VARCHAR(32) NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create tracking table: %w", err)
	}
	return nil
}

// ListMonth returns the tracks created in the given month, oldest first.
// created_on is matched as text, so months are zero-padded.
func (s *Store) ListMonth(ctx context.Context, year, month int) ([]Track, error) {
	pattern := fmt.Sprintf("%d-%02d-%%", year, month)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, telem_1, telem_2, longitude, latitude, created_on FROM tracking
		 WHERE created_on LIKE `+dbclient.Placeholders(s.driver, 1)+` ORDER BY created_on`,
		pattern)
	if err != nil {
		return nil, fmt.Errorf("query tracking: %w", err)
	}
	defer rows.Close()

	tracks := []Track{}
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.ID, &t.Telem1, &t.Telem2, &t.Longitude, &t.Latitude, &t.CreatedOn); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// Create inserts t in its own transaction.
func (s *Store) Create(ctx context.Context, t Track) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tracking (id, telem_1, telem_2, longitude, latitude, created_on) VALUES (`+
			dbclient.Placeholders(s.driver, 6)+`)`,
		t.ID, t.Telem1, t.Telem2, t.Longitude, t.Latitude, t.CreatedOn)
	if err != nil {
		return fmt.Errorf("insert track: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
