// Package chesskit bridges the pgn board model to the forms the rest of the
// engine traffics in: 64-bit position hashes, UCI move strings, and replayed
// move lines.
package chesskit

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/freeeve/pgn/v3"
)

// Hash returns a 64-bit digest of the position covering piece placement,
// side to move, and castling rights. The en-passant square participates only
// when an en-passant capture is actually legal, and the move clocks never do,
// so chess-identical positions reached through different move orders hash
// equal.
func Hash(pos *pgn.GameState) uint64 {
	fen := pos.ToFEN()
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return xxhash.Sum64String(fen)
	}
	ep := "-"
	if fields[3] != "-" && canEnPassant(pos) {
		ep = fields[3]
	}
	return xxhash.Sum64String(fields[0] + " " + fields[1] + " " + fields[2] + " " + ep)
}

// canEnPassant reports whether any legal move is an en-passant capture.
func canEnPassant(pos *pgn.GameState) bool {
	for _, mv := range pgn.GenerateLegalMoves(pos) {
		if mv.Flags == 2 {
			return true
		}
	}
	return false
}

var startingHash = func() uint64 {
	return Hash(pgn.NewStartingPosition())
}()

// StartingHash is the hash of the initial position, shared by every game.
func StartingHash() uint64 { return startingHash }

const (
	files = "abcdefgh"
	ranks = "12345678"
)

// MoveToUCI converts a move to UCI notation (e.g. "e2e4", "e7e8q").
func MoveToUCI(mv pgn.Mv) string {
	from := string(files[mv.From%8]) + string(ranks[mv.From/8])
	to := string(files[mv.To%8]) + string(ranks[mv.To/8])

	uci := from + to
	switch mv.Promo {
	case pgn.PromoQueen:
		uci += "q"
	case pgn.PromoRook:
		uci += "r"
	case pgn.PromoBishop:
		uci += "b"
	case pgn.PromoKnight:
		uci += "n"
	}
	return uci
}

// ParseUCI resolves a UCI move string against the legal moves of pos.
func ParseUCI(pos *pgn.GameState, uci string) (pgn.Mv, error) {
	want := strings.ToLower(strings.TrimSpace(uci))
	if len(want) < 4 {
		return pgn.Mv{}, fmt.Errorf("uci move too short: %q", uci)
	}
	for _, mv := range pgn.GenerateLegalMoves(pos) {
		if MoveToUCI(mv) == want {
			return mv, nil
		}
	}
	return pgn.Mv{}, fmt.Errorf("illegal move %q in %s", uci, pos.ToFEN())
}

// ApplyUCI parses and applies a single UCI move to pos.
func ApplyUCI(pos *pgn.GameState, uci string) error {
	mv, err := ParseUCI(pos, uci)
	if err != nil {
		return err
	}
	return pgn.ApplyMove(pos, mv)
}

// ReplayLine replays space-separated UCI moves from the starting position and
// returns the final position.
func ReplayLine(line string) (*pgn.GameState, error) {
	pos := pgn.NewStartingPosition()
	for _, uci := range strings.Fields(line) {
		if err := ApplyUCI(pos, uci); err != nil {
			return nil, err
		}
	}
	return pos, nil
}

// HashLine replays UCI tokens and returns the hash of every position reached,
// starting hash included (length = len(tokens)+1). Tokens past the first
// illegal move are dropped; the shortened token slice is returned alongside.
func HashLine(tokens []string) ([]uint64, []string) {
	pos := pgn.NewStartingPosition()
	hashes := make([]uint64, 1, len(tokens)+1)
	hashes[0] = startingHash
	for i, uci := range tokens {
		if err := ApplyUCI(pos, uci); err != nil {
			return hashes, tokens[:i]
		}
		hashes = append(hashes, Hash(pos))
	}
	return hashes, tokens
}

// LegalUCIMoves lists the legal continuations of pos in UCI notation.
func LegalUCIMoves(pos *pgn.GameState) []string {
	moves := pgn.GenerateLegalMoves(pos)
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, MoveToUCI(mv))
	}
	return out
}

// Clone returns an independent copy of pos via its packed form.
func Clone(pos *pgn.GameState) *pgn.GameState {
	return pos.Pack().Unpack()
}

// WhiteToMove reports whose turn it is in pos.
func WhiteToMove(pos *pgn.GameState) bool {
	return strings.Contains(pos.ToFEN(), " w ")
}

// MoveToSAN converts a move to SAN notation given the position it is played
// from. Handles castling, disambiguation, captures, promotion, and the
// check/checkmate suffix.
func MoveToSAN(pos *pgn.GameState, mv pgn.Mv) string {
	// Castling is flagged by the move generator.
	if mv.Flags == 4 {
		if mv.To > mv.From {
			return "O-O"
		}
		return "O-O-O"
	}

	fromSq := int(mv.From)
	toSq := int(mv.To)
	fromFile := fromSq % 8
	toFile := toSq % 8
	toRank := toSq / 8

	piece := pos.PieceAt(mv.From)
	isPawn := piece == 'P' || piece == 'p'
	isCapture := pos.PieceAt(mv.To) != 0 || (isPawn && mv.Flags == 2)

	var san string
	if isPawn {
		if isCapture {
			san = string(files[fromFile]) + "x" + string(files[toFile]) + string(ranks[toRank])
		} else {
			san = string(files[toFile]) + string(ranks[toRank])
		}
		switch mv.Promo {
		case pgn.PromoQueen:
			san += "=Q"
		case pgn.PromoRook:
			san += "=R"
		case pgn.PromoBishop:
			san += "=B"
		case pgn.PromoKnight:
			san += "=N"
		}
	} else {
		pieceChar := piece
		if piece >= 'a' && piece <= 'z' {
			pieceChar = piece - 32
		}
		san = string(pieceChar)

		// Disambiguate when another piece of the same type reaches the
		// same square.
		disambig := ""
		for _, other := range pgn.GenerateLegalMoves(pos) {
			if other.To == mv.To && other.From != mv.From {
				otherPiece := pos.PieceAt(other.From)
				if otherPiece >= 'a' && otherPiece <= 'z' {
					otherPiece = otherPiece - 32
				}
				if otherPiece == pieceChar {
					otherFromFile := int(other.From) % 8
					otherFromRank := int(other.From) / 8
					if fromFile != otherFromFile {
						disambig = string(files[fromFile])
					} else if fromSq/8 != otherFromRank {
						disambig = string(ranks[fromSq/8])
					} else {
						disambig = string(files[fromFile]) + string(ranks[fromSq/8])
					}
					break
				}
			}
		}
		san += disambig

		if isCapture {
			san += "x"
		}
		san += string(files[toFile]) + string(ranks[toRank])
	}

	after := pos.Pack().Unpack()
	if after != nil {
		_ = pgn.ApplyMove(after, mv)
		if after.IsInCheck() {
			if len(pgn.GenerateLegalMoves(after)) == 0 {
				san += "#"
			} else {
				san += "+"
			}
		}
	}
	return san
}
