// Package meta is the embedded metadata store: config keys, puzzle status,
// and the durable tier of the opening cache. One sqlite database, WAL mode,
// exclusive writers and shared readers.
package meta

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Store wraps the sqlite connection pool. Safe for concurrent use.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
	enc *zstd.Encoder
	dec *zstd.Decoder
}

type migration struct {
	version     int
	description string
	sql         string
}

// Migrations are append-only and idempotent; each runs in its own
// transaction and records itself in schema_migrations.
var migrations = []migration{
	{
		version:     1,
		description: "config key/value table",
		sql: `CREATE TABLE IF NOT EXISTS config (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	},
	{
		version:     2,
		description: "puzzle status table",
		sql: `CREATE TABLE IF NOT EXISTS puzzle_stats (
			id         INTEGER PRIMARY KEY,
			status     TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
	},
	{
		version:     3,
		description: "durable opening cache",
		sql: `CREATE TABLE IF NOT EXISTS opening_cache (
			dataset_path  TEXT NOT NULL,
			position_hash INTEGER NOT NULL,
			stats         BLOB NOT NULL,
			engine_eval   TEXT,
			PRIMARY KEY (dataset_path, position_hash)
		);
		CREATE INDEX IF NOT EXISTS idx_opening_cache_path
			ON opening_cache(dataset_path);`,
	},
}

// Open opens (or creates) the metadata database at path and applies pending
// migrations.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, log: log, enc: enc, dec: dec}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  TIMESTAMP NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.version, m.description, time.Now()); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		s.log.Info().Int("version", m.version).Str("description", m.description).
			Msg("applied metadata migration")
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}
