package meta

import (
	"context"
	"database/sql"
	"errors"
)

// ErrCacheMiss is returned when no cache row exists for a key.
var ErrCacheMiss = errors.New("opening cache miss")

// CacheEntry is one durable opening-cache row. Stats is the serialized
// aggregation payload; EngineEval is empty until a branch evaluation lands.
type CacheEntry struct {
	Stats      []byte
	EngineEval string
}

// SaveOpeningCache upserts an entry keyed by (dataset path, position hash).
// The stats payload is zstd-compressed at rest.
func (s *Store) SaveOpeningCache(ctx context.Context, path string, hash uint64, e CacheEntry) error {
	compressed := s.enc.EncodeAll(e.Stats, nil)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO opening_cache (dataset_path, position_hash, stats, engine_eval)
		 VALUES (?, ?, ?, ?)`,
		path, int64(hash), compressed, e.EngineEval)
	return err
}

// GetOpeningCache fetches and decompresses an entry.
func (s *Store) GetOpeningCache(ctx context.Context, path string, hash uint64) (CacheEntry, error) {
	var compressed []byte
	var eval sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT stats, engine_eval FROM opening_cache WHERE dataset_path = ? AND position_hash = ?",
		path, int64(hash)).Scan(&compressed, &eval)
	if err == sql.ErrNoRows {
		return CacheEntry{}, ErrCacheMiss
	}
	if err != nil {
		return CacheEntry{}, err
	}
	stats, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return CacheEntry{}, err
	}
	return CacheEntry{Stats: stats, EngineEval: eval.String}, nil
}

// HasOpeningCache reports whether an entry exists without decoding it.
func (s *Store) HasOpeningCache(ctx context.Context, path string, hash uint64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM opening_cache WHERE dataset_path = ? AND position_hash = ?",
		path, int64(hash)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetOpeningEval attaches an engine evaluation to an existing entry.
func (s *Store) SetOpeningEval(ctx context.Context, path string, hash uint64, eval string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE opening_cache SET engine_eval = ? WHERE dataset_path = ? AND position_hash = ?",
		eval, path, int64(hash))
	return err
}

// InvalidateOpeningCache drops every entry for a dataset path. Called when
// the file at that path is rewritten.
func (s *Store) InvalidateOpeningCache(ctx context.Context, path string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM opening_cache WHERE dataset_path = ?", path)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// OpeningCacheCount returns the number of entries stored for a dataset path.
func (s *Store) OpeningCacheCount(ctx context.Context, path string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM opening_cache WHERE dataset_path = ?", path).Scan(&n)
	return n, err
}
