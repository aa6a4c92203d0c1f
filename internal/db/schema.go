// Package db is the columnar game store. Every query in the engine goes
// through a Dataset's lazy Query; nothing above this package opens game
// files directly.
package db

import (
	"errors"
	"strings"
)

// Game is the canonical row schema of a dataset file.
type Game struct {
	ID       int64    `parquet:"id"`
	White    string   `parquet:"white"`
	Black    string   `parquet:"black"`
	WhiteElo int64    `parquet:"w_elo"`
	BlackElo int64    `parquet:"b_elo"`
	Result   string   `parquet:"result"`
	Date     string   `parquet:"date"`
	Event    string   `parquet:"event"`
	Site     string   `parquet:"site"`
	Line     string   `parquet:"line"`      // first lineTokens plies, UCI
	FullLine string   `parquet:"full_line"` // whole main line, UCI
	Fens     []uint64 `parquet:"fens,list"` // hash per position, start included
}

// Result strings as they appear in PGN.
const (
	ResultWhiteWins = "1-0"
	ResultBlackWins = "0-1"
	ResultDraw      = "1/2-1/2"
	ResultUnknown   = "*"
)

// UnknownDate is recorded when a game carries no Date tag.
const UnknownDate = "????.??.??"

// DefaultLinePlies is how many opening plies the short line column keeps.
const DefaultLinePlies = 12

// ShortLine renders the first DefaultLinePlies tokens as a line column value.
func ShortLine(tokens []string) string {
	if len(tokens) > DefaultLinePlies {
		tokens = tokens[:DefaultLinePlies]
	}
	return strings.Join(tokens, " ")
}

// Plies returns the number of moves in the main line.
func (g *Game) Plies() int {
	if g.FullLine == "" {
		return 0
	}
	return len(strings.Fields(g.FullLine))
}

// Tokens splits the full line into UCI moves.
func (g *Game) Tokens() []string {
	return strings.Fields(g.FullLine)
}

// Clipbase is the volatile in-memory dataset that always exists.
const Clipbase = "Clipbase"

var (
	// ErrNotFound is returned when a game or dataset does not exist.
	ErrNotFound = errors.New("not found")
	// ErrReadOnly is returned for mutations on read-only datasets.
	ErrReadOnly = errors.New("dataset is read-only")
	// ErrSchema is returned when a file cannot be coerced to the Game schema.
	ErrSchema = errors.New("incompatible dataset schema")
	// ErrNotDirty is returned when saving a dataset with no pending changes.
	ErrNotDirty = errors.New("dataset has no unsaved changes")
)
