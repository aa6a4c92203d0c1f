package meta

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoKey is returned when a config key has never been set.
var ErrNoKey = errors.New("config key not set")

// SetConfig stores a JSON-encoded value under key.
func (s *Store) SetConfig(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode config %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)", key, string(data))
	return err
}

// GetConfig decodes the value stored under key into out.
func (s *Store) GetConfig(ctx context.Context, key string, out any) error {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM config WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrNoKey
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}
