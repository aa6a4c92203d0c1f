// Package game holds the board the user is actually looking at: a main line
// of moves, a cursor into it, and the loaded game's headers. Every cursor
// movement announces the new position on the bus so the explorer and the
// engine follow along.
package game

import (
	"fmt"
	"strings"
	"sync"

	pgn "github.com/freeeve/pgn/v3"
	"github.com/rs/zerolog"

	"github.com/fachess/fachess/internal/chesskit"
	"github.com/fachess/fachess/internal/db"
	"github.com/fachess/fachess/internal/event"
)

// Controller is the single source of truth for the current game. Invariant:
// positions, hashes have length len(moves)+1 and cursor indexes positions.
type Controller struct {
	log zerolog.Logger
	bus *event.Bus

	mu        sync.Mutex
	positions []*pgn.GameState
	hashes    []uint64
	moves     []pgn.Mv
	ucis      []string
	cursor    int
	meta      db.Game
}

func NewController(log zerolog.Logger, bus *event.Bus) *Controller {
	c := &Controller{log: log, bus: bus}
	c.reset()
	return c
}

func (c *Controller) reset() {
	start := pgn.NewStartingPosition()
	c.positions = []*pgn.GameState{start}
	c.hashes = []uint64{chesskit.StartingHash()}
	c.moves = nil
	c.ucis = nil
	c.cursor = 0
	c.meta = db.Game{Result: db.ResultUnknown, Date: db.UnknownDate}
}

// Reset clears the board back to the start position.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.reset()
	c.mu.Unlock()
	c.announce()
}

func (c *Controller) announce() {
	if c.bus == nil {
		return
	}
	c.mu.Lock()
	line := append([]string(nil), c.ucis[:c.cursor]...)
	hash := c.hashes[c.cursor]
	c.mu.Unlock()
	c.bus.Publish(event.PositionChanged{Line: line, Hash: hash})
}

// Make plays a move from the current position. Playing the move that is
// already next on the line just advances the cursor; anything else truncates
// the future and starts a new continuation.
func (c *Controller) Make(uci string) error {
	c.mu.Lock()
	if c.cursor < len(c.ucis) && c.ucis[c.cursor] == uci {
		c.cursor++
		c.mu.Unlock()
		c.announce()
		return nil
	}

	pos := c.positions[c.cursor]
	mv, err := chesskit.ParseUCI(pos, uci)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	next := chesskit.Clone(pos)
	if err := pgn.ApplyMove(next, mv); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("apply %s: %w", uci, err)
	}

	c.positions = append(c.positions[:c.cursor+1], next)
	c.hashes = append(c.hashes[:c.cursor+1], chesskit.Hash(next))
	c.moves = append(c.moves[:c.cursor], mv)
	c.ucis = append(c.ucis[:c.cursor], uci)
	c.cursor++
	c.mu.Unlock()
	c.announce()
	return nil
}

// StepBack moves the cursor one ply toward the start.
func (c *Controller) StepBack() {
	c.mu.Lock()
	if c.cursor > 0 {
		c.cursor--
	}
	c.mu.Unlock()
	c.announce()
}

// StepForward moves the cursor one ply along the existing line.
func (c *Controller) StepForward() {
	c.mu.Lock()
	if c.cursor < len(c.ucis) {
		c.cursor++
	}
	c.mu.Unlock()
	c.announce()
}

// GoStart rewinds to the initial position without losing the line.
func (c *Controller) GoStart() {
	c.mu.Lock()
	c.cursor = 0
	c.mu.Unlock()
	c.announce()
}

// GoEnd jumps to the last position of the line.
func (c *Controller) GoEnd() {
	c.mu.Lock()
	c.cursor = len(c.ucis)
	c.mu.Unlock()
	c.announce()
}

// JumpTo places the cursor at ply (0 is the start position).
func (c *Controller) JumpTo(ply int) error {
	c.mu.Lock()
	if ply < 0 || ply > len(c.ucis) {
		c.mu.Unlock()
		return fmt.Errorf("ply %d out of range 0..%d", ply, len(c.ucis))
	}
	c.cursor = ply
	c.mu.Unlock()
	c.announce()
	return nil
}

// Line returns the UCI moves up to the cursor.
func (c *Controller) Line() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ucis[:c.cursor]...)
}

// FullLine returns the whole main line regardless of the cursor.
func (c *Controller) FullLine() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ucis...)
}

// Cursor returns the current ply.
func (c *Controller) Cursor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Hash returns the current position's hash.
func (c *Controller) Hash() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hashes[c.cursor]
}

// FEN returns the current position in FEN.
func (c *Controller) FEN() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positions[c.cursor].ToFEN()
}

// LegalMoves lists legal continuations of the current position.
func (c *Controller) LegalMoves() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return chesskit.LegalUCIMoves(c.positions[c.cursor])
}

// Metadata returns the loaded game's headers.
func (c *Controller) Metadata() db.Game {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// SetMetadata replaces the headers, keeping the move data intact.
func (c *Controller) SetMetadata(meta db.Game) {
	c.mu.Lock()
	moves := c.meta.FullLine
	fens := c.meta.Fens
	c.meta = meta
	c.meta.FullLine = moves
	c.meta.Fens = fens
	c.mu.Unlock()
	if c.bus != nil {
		c.bus.Publish(event.MetadataChanged{})
	}
}

// LoadLine replaces the board with a line of UCI moves, cursor at the end.
func (c *Controller) LoadLine(line []string) error {
	c.mu.Lock()
	c.reset()
	c.mu.Unlock()
	for _, uci := range line {
		if err := c.Make(uci); err != nil {
			return err
		}
	}
	return nil
}

// LoadGame replaces the board with a stored game, cursor at the start.
func (c *Controller) LoadGame(g db.Game) error {
	if err := c.LoadLine(g.Tokens()); err != nil {
		return err
	}
	c.mu.Lock()
	c.meta = g
	c.cursor = 0
	c.mu.Unlock()
	if c.bus != nil {
		c.bus.Publish(event.GameLoaded{GameID: g.ID})
	}
	c.announce()
	return nil
}

// Snapshot captures the current line as a storable game row, headers
// included.
func (c *Controller) Snapshot() db.Game {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.meta
	g.ID = 0
	g.FullLine = strings.Join(c.ucis, " ")
	g.Line = db.ShortLine(c.ucis)
	g.Fens = append([]uint64(nil), c.hashes...)
	return g
}

// SANLine renders the whole main line in SAN, one entry per ply.
func (c *Controller) SANLine() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.moves))
	for i, mv := range c.moves {
		out[i] = chesskit.MoveToSAN(c.positions[i], mv)
	}
	return out
}

// ExportPGN renders the loaded game as a PGN document with the seven
// standard tags and numbered movetext.
func (c *Controller) ExportPGN() string {
	c.mu.Lock()
	meta := c.meta
	c.mu.Unlock()
	san := c.SANLine()

	var b strings.Builder
	tag := func(name, value string) {
		if value == "" {
			value = "?"
		}
		fmt.Fprintf(&b, "[%s %q]\n", name, value)
	}
	tag("Event", meta.Event)
	tag("Site", meta.Site)
	date := meta.Date
	if date == "" {
		date = db.UnknownDate
	}
	tag("Date", date)
	tag("Round", "?")
	tag("White", meta.White)
	tag("Black", meta.Black)
	result := meta.Result
	if result == "" {
		result = db.ResultUnknown
	}
	tag("Result", result)
	b.WriteString("\n")

	for i, mv := range san {
		if i%2 == 0 {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%d.", i/2+1)
		}
		b.WriteString(" ")
		b.WriteString(mv)
	}
	if len(san) > 0 {
		b.WriteString(" ")
	}
	b.WriteString(result)
	b.WriteString("\n")
	return b.String()
}
