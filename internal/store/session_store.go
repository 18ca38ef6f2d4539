package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore implements Store on the records table of a SQLite database.
type SQLiteStore struct {
	db *DB
}

// NewSQLiteStore creates a record store using the given database.
func NewSQLiteStore(db *DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get returns the record stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (Record, error) {
	var rec Record
	var data string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT data, version FROM records WHERE key = ?`, key,
	).Scan(&data, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("loading %s: %w", key, err)
	}
	rec.Data = []byte(data)
	return rec, nil
}

// Put writes data under key if the stored version equals expected.
func (s *SQLiteStore) Put(ctx context.Context, key string, data []byte, expected int64) (int64, error) {
	now := time.Now().UTC().Format(time.DateTime)

	if expected == 0 {
		res, err := s.db.sql.ExecContext(ctx,
			`INSERT INTO records (key, data, version, created_at, updated_at)
			 VALUES (?, ?, 1, ?, ?)
			 ON CONFLICT(key) DO NOTHING`,
			key, string(data), now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting %s: %w", key, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return 0, ErrVersionConflict
		}
		return 1, nil
	}

	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE records SET data = ?, version = version + 1, updated_at = ?
		 WHERE key = ? AND version = ?`,
		string(data), now, key, expected,
	)
	if err != nil {
		return 0, fmt.Errorf("updating %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Get(ctx, key); errors.Is(err, ErrNotFound) {
			return 0, ErrNotFound
		}
		s.db.log.Debug().Str("key", key).Int64("expected", expected).Msg("version conflict")
		return 0, ErrVersionConflict
	}
	return expected + 1, nil
}

// Delete removes key; missing keys are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.sql.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}
