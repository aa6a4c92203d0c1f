// Package config resolves per-user paths and loads the optional config.toml.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Paths holds every persistent-state location, resolved once at startup.
type Paths struct {
	Home     string // $FACHESS_HOME or <UserConfigDir>/fa-chess
	MetaDB   string // fa-chess.db, the metadata store
	Clipbase string // clipbase.parquet, the exported clipboard dataset
	Config   string // config.toml
}

// ResolvePaths returns all state paths, respecting the FACHESS_HOME override,
// and creates the home directory if missing.
func ResolvePaths() (*Paths, error) {
	home := os.Getenv("FACHESS_HOME")
	if home == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		home = filepath.Join(base, "fa-chess")
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, err
	}
	return &Paths{
		Home:     home,
		MetaDB:   filepath.Join(home, "fa-chess.db"),
		Clipbase: filepath.Join(home, "clipbase.parquet"),
		Config:   filepath.Join(home, "config.toml"),
	}, nil
}

// Config is the user-tunable knobs of the engine core.
type Config struct {
	EnginePath    string `toml:"engine_path"`
	EngineDepth   int    `toml:"engine_depth"`
	EngineHashMB  int    `toml:"engine_hash_mb"`
	EngineThreads int    `toml:"engine_threads"`
	BranchMoveMS  int    `toml:"branch_move_ms"`  // movetime per candidate in branch scans
	DebounceMS    int    `toml:"debounce_ms"`     // position-change debounce window
	SampleLimit   int    `toml:"sample_limit"`    // filtered-view display prefix
	CacheEntries  int    `toml:"cache_entries"`   // tier-1 opening cache bound
	WarmupMin     int    `toml:"warmup_min"`      // min games to persist during warm-up
	LinePlies     int    `toml:"line_plies"`      // plies kept in the short line column
	StatsMoves    int    `toml:"stats_moves"`     // opening-stats rows returned
}

// Default returns the configuration used when config.toml is absent.
func Default() Config {
	return Config{
		EngineDepth:   20,
		EngineHashMB:  256,
		EngineThreads: 2,
		BranchMoveMS:  500,
		DebounceMS:    150,
		SampleLimit:   1000,
		CacheEntries:  5000,
		WarmupMin:     5,
		LinePlies:     12,
		StatsMoves:    20,
	}
}

// Load reads config.toml from path, filling unset fields with defaults.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), err
	}
	if cfg.SampleLimit <= 0 {
		cfg.SampleLimit = 1000
	}
	if cfg.DebounceMS <= 0 {
		cfg.DebounceMS = 150
	}
	if cfg.CacheEntries <= 0 {
		cfg.CacheEntries = 5000
	}
	return cfg, nil
}
