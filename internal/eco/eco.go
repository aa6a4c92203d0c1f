// Package eco classifies positions against an ECO (Encyclopedia of Chess
// Openings) file. The file carries entries of the form
//
//	A00 "Polish: Sokolsky Opening" 1.b4 *
//
// where the movetext may span lines, contain {comments}, (variations),
// move numbers, and annotation glyphs; everything but the main line is
// stripped before replay.
package eco

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	pgn "github.com/freeeve/pgn/v3"

	"github.com/fachess/fachess/internal/chesskit"
)

// Names reported when no entry matches.
const (
	StartName   = "Starting Position"
	UnknownName = "Unknown Opening"
)

// Opening is one classification: an ECO code and a human name.
type Opening struct {
	Code string `json:"eco"`
	Name string `json:"name"`
}

type entry struct {
	Opening
	plies int
}

// Database indexes openings by the position their line ends on, so lookup
// classifies transpositions for free.
type Database struct {
	byPosition map[uint64]entry
	count      int
}

func NewDatabase() *Database {
	return &Database{byPosition: make(map[uint64]entry)}
}

var moveNumberRegex = regexp.MustCompile(`\d+\.+\s*`)

// LoadFile reads one classification file into the database.
func (db *Database) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return db.loadText(b.String())
}

// loadText parses entries out of raw file text. Malformed entries are
// skipped, not fatal; the rest of the file still loads.
func (db *Database) loadText(text string) error {
	text = stripBlocks(text)
	loaded := 0
	for _, raw := range strings.Split(text, "*") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if db.loadEntry(raw) {
			loaded++
		}
	}
	if loaded == 0 {
		return fmt.Errorf("no usable entries")
	}
	db.count += loaded
	return nil
}

// loadEntry parses `CODE "Name" movetext` and indexes the final position.
func (db *Database) loadEntry(raw string) bool {
	open := strings.IndexByte(raw, '"')
	if open < 0 {
		return false
	}
	end := strings.IndexByte(raw[open+1:], '"')
	if end < 0 {
		return false
	}
	code := strings.TrimSpace(raw[:open])
	name := raw[open+1 : open+1+end]
	movetext := raw[open+end+2:]
	if code == "" || name == "" {
		return false
	}

	pos := pgn.NewStartingPosition()
	plies := 0
	cleaned := moveNumberRegex.ReplaceAllString(movetext, "")
	for _, san := range strings.Fields(cleaned) {
		if san == "" || san[0] == '$' {
			continue
		}
		san = strings.TrimRight(san, "!?")
		san = strings.TrimSuffix(san, "+")
		san = strings.TrimSuffix(san, "#")
		if san == "" {
			continue
		}
		mv, err := pgn.ParseSAN(pos, san)
		if err != nil {
			return false
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			return false
		}
		plies++
	}

	hash := chesskit.Hash(pos)
	// Deeper lines refine shallower ones when they collide on a position.
	if prev, ok := db.byPosition[hash]; ok && prev.plies >= plies {
		return true
	}
	db.byPosition[hash] = entry{Opening: Opening{Code: code, Name: name}, plies: plies}
	return true
}

// stripBlocks removes {comment} and (variation) regions, nesting included.
func stripBlocks(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{', '(':
			depth++
		case '}', ')':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteByte(text[i])
			} else if text[i] == '\n' {
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

// Count returns the number of entries loaded.
func (db *Database) Count() int {
	return db.count
}

// LookupPosition returns the classification stored for one exact position.
func (db *Database) LookupPosition(pos *pgn.GameState) (Opening, bool) {
	e, ok := db.byPosition[chesskit.Hash(pos)]
	return e.Opening, ok
}

// Classify walks a UCI line and returns the deepest classified position on
// it, with the ply at which it was reached. An empty line is the starting
// position; a line that never touches a known position is unknown at ply 0.
func (db *Database) Classify(line []string) (Opening, int) {
	if len(line) == 0 {
		return Opening{Name: StartName}, 0
	}
	hashes, _ := chesskit.HashLine(line)
	for ply := len(hashes) - 1; ply >= 1; ply-- {
		if e, ok := db.byPosition[hashes[ply]]; ok {
			return e.Opening, ply
		}
	}
	return Opening{Name: UnknownName}, 0
}
