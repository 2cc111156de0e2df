// Package credstore persists the single session credential and the
// last-known identity snapshot so a session survives process restarts.
//
// Only the session package writes to a Store.  Backends:
//   - FileStore   – JSON file with 0600 permissions (default)
//   - RedisStore  – one key in Redis, for shared desktop/kiosk setups
//   - SQLiteStore – one row in a local SQLite database
//   - MemoryStore – process-local, for tests
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/league-client/internal/model"
)

// ErrCorrupt is returned by Load when the persisted blob cannot be decoded.
var ErrCorrupt = errors.New("credstore: corrupt record")

// Record is the persisted blob.  Credential and Identity are always written
// together.
type Record struct {
	Credential model.Credential `json:"credential"`
	Identity   *model.Identity  `json:"identity,omitempty"`
	SavedAt    time.Time        `json:"saved_at"`
}

// Store is the durable key/value surface used by the session.
type Store interface {
	// Load returns the persisted record, or (nil, nil) when nothing is stored.
	Load(ctx context.Context) (*Record, error)
	// Save replaces the persisted record.
	Save(ctx context.Context, rec Record) error
	// Clear removes the persisted record.  Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

func encode(rec Record) ([]byte, error) {
	if rec.Credential == "" {
		return nil, errors.New("credstore: empty credential")
	}
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now().UTC()
	}
	return json.Marshal(rec)
}

func decode(raw []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.Credential == "" {
		return nil, ErrCorrupt
	}
	return &rec, nil
}
