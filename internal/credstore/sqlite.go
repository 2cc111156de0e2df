package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS session_credentials (
	slot     TEXT PRIMARY KEY,
	blob     TEXT NOT NULL,
	saved_at TIMESTAMP NOT NULL
)`

const sqliteSlot = "current"

// SQLiteStore keeps the record as one row in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore ensures the schema exists and returns the store.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (*Record, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		"SELECT blob FROM session_credentials WHERE slot = ? LIMIT 1", sqliteSlot).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode([]byte(blob))
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	raw, err := encode(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_credentials (slot, blob, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET blob = excluded.blob, saved_at = excluded.saved_at`,
		sqliteSlot, string(raw), time.Now().UTC())
	return err
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM session_credentials WHERE slot = ?", sqliteSlot)
	return err
}
