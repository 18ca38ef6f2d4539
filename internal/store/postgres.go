package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/soyeahso/parley/internal/logging"
)

// PostgresStore implements Store on a Postgres table, for deployments where
// several server processes share one session database.
type PostgresStore struct {
	db  *sql.DB
	log *logging.Logger
}

// OpenPostgres connects to Postgres using dsn and creates the records table
// if needed.
func OpenPostgres(ctx context.Context, dsn string, log *logging.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	s := &PostgresStore{db: db, log: log.Sub("store.postgres")}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	s.log.Info().Msg("postgres store ready")
	return s, nil
}

func (s *PostgresStore) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		key        TEXT PRIMARY KEY,
		data       JSONB NOT NULL,
		version    BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_records_updated ON records(updated_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Get returns the record stored under key.
func (s *PostgresStore) Get(ctx context.Context, key string) (Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx,
		`SELECT data, version FROM records WHERE key = $1`, key,
	).Scan(&rec.Data, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("loading %s: %w", key, err)
	}
	return rec, nil
}

// Put writes data under key if the stored version equals expected.
func (s *PostgresStore) Put(ctx context.Context, key string, data []byte, expected int64) (int64, error) {
	var res sql.Result
	var err error
	if expected == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO records (key, data, version) VALUES ($1, $2, 1)
			 ON CONFLICT (key) DO NOTHING`,
			key, string(data),
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE records SET data = $1, version = version + 1, updated_at = now()
			 WHERE key = $2 AND version = $3`,
			string(data), key, expected,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("writing %s: %w", key, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		if expected > 0 {
			if _, err := s.Get(ctx, key); errors.Is(err, ErrNotFound) {
				return 0, ErrNotFound
			}
		}
		return 0, ErrVersionConflict
	}
	return expected + 1, nil
}

// Delete removes key; missing keys are ignored.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
