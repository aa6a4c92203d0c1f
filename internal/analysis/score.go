// Package analysis drives a UCI chess engine subprocess: handshake and
// option discovery, continuous position analysis, whole-game evaluation with
// an accuracy report, and candidate-move branch scans.
package analysis

import (
	"fmt"
	"strconv"
	"strings"
)

// displayClip bounds centipawn scores for display and accuracy arithmetic so
// a single crushed position cannot dominate an average.
const displayClip = 1000

// Score is one engine evaluation, either centipawns or a mate distance.
// Sign follows the side the engine was asked about; use FromWhite to
// normalize.
type Score struct {
	CP     int
	Mate   int
	IsMate bool
}

// FromWhite flips the score to white's perspective when black is to move.
func (s Score) FromWhite(whiteToMove bool) Score {
	if whiteToMove {
		return s
	}
	return Score{CP: -s.CP, Mate: -s.Mate, IsMate: s.IsMate}
}

// Clamped returns the centipawn value bounded to the display range. Mates
// collapse to the bound with the mate's sign.
func (s Score) Clamped() int {
	cp := s.CP
	if s.IsMate {
		if s.Mate >= 0 {
			cp = displayClip
		} else {
			cp = -displayClip
		}
	}
	if cp > displayClip {
		return displayClip
	}
	if cp < -displayClip {
		return -displayClip
	}
	return cp
}

// String renders pawns with two decimals, bounded to the display range, or a
// mate distance as Mk / -Mk.
func (s Score) String() string {
	if s.IsMate {
		if s.Mate < 0 {
			return "-M" + strconv.Itoa(-s.Mate)
		}
		return "M" + strconv.Itoa(s.Mate)
	}
	return fmt.Sprintf("%+.2f", float64(s.Clamped())/100)
}

// ParseScore reads the rendering String produces. Used when evaluations come
// back out of the durable cache.
func ParseScore(s string) (Score, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "-M"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return Score{}, fmt.Errorf("bad mate score %q", s)
		}
		return Score{Mate: -n, IsMate: true}, nil
	}
	if rest, ok := strings.CutPrefix(s, "M"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return Score{}, fmt.Errorf("bad mate score %q", s)
		}
		return Score{Mate: n, IsMate: true}, nil
	}
	pawns, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Score{}, fmt.Errorf("bad score %q", s)
	}
	return Score{CP: int(pawns * 100)}, nil
}
