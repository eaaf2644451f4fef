// Package stores implements persistence interfaces on top of the SQLite
// database.
package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/colonyops/folio/internal/core/prefs"
	"github.com/colonyops/folio/internal/data/db"
)

// PrefStore implements prefs.Store using SQLite.
type PrefStore struct {
	db *db.DB
}

var _ prefs.Store = (*PrefStore)(nil)

// NewPrefStore creates a SQLite-backed preference store.
func NewPrefStore(db *db.DB) *PrefStore {
	return &PrefStore{db: db}
}

// Get returns the stored value. A missing key yields an error wrapping
// prefs.ErrNotFound.
func (s *PrefStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.Conn().QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("prefs get %q: %w", key, prefs.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("prefs get %q: %w", key, err)
	}
	return value, nil
}

// Set upserts the value.
func (s *PrefStore) Set(ctx context.Context, key, value string) error {
	if err := prefs.ValidateKey(key); err != nil {
		return err
	}

	_, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("prefs set %q: %w", key, err)
	}
	return nil
}

// IsBusyError returns true if the error is a SQLITE_BUSY error.
func IsBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_BUSY
	}
	return false
}
