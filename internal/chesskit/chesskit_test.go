package chesskit_test

import (
	"strings"
	"testing"

	"github.com/freeeve/pgn/v3"

	"github.com/fachess/fachess/internal/chesskit"
)

func TestHashTransposition(t *testing.T) {
	a, err := chesskit.ReplayLine("g1f3 g8f6 b1c3 b8c6")
	if err != nil {
		t.Fatal(err)
	}
	b, err := chesskit.ReplayLine("b1c3 b8c6 g1f3 g8f6")
	if err != nil {
		t.Fatal(err)
	}
	if chesskit.Hash(a) != chesskit.Hash(b) {
		t.Errorf("transposed positions hash differently: %x vs %x",
			chesskit.Hash(a), chesskit.Hash(b))
	}
}

func TestHashTranspositionAfterDoublePush(t *testing.T) {
	// The second order makes a double pawn push the last move, which sets an
	// en-passant square no pawn can use. Both orders must hash alike.
	pairs := [][2]string{
		{"e2e4 e7e5 g1f3 b8c6 d2d4", "g1f3 b8c6 e2e4 e7e5 d2d4"},
		{"d2d4 d7d5 c2c4", "c2c4 d7d5 d2d4"},
	}
	for _, p := range pairs {
		a, err := chesskit.ReplayLine(p[0])
		if err != nil {
			t.Fatal(err)
		}
		b, err := chesskit.ReplayLine(p[1])
		if err != nil {
			t.Fatal(err)
		}
		if chesskit.Hash(a) != chesskit.Hash(b) {
			t.Errorf("%q and %q hash differently: %x vs %x",
				p[0], p[1], chesskit.Hash(a), chesskit.Hash(b))
		}
	}
}

func TestHashLiveEnPassant(t *testing.T) {
	// After 1.e4 Nf6 2.e5 d5 the capture e5d6 is legal, so the en-passant
	// square is part of the position and the hash must move when the right
	// expires.
	pos, err := chesskit.ReplayLine("e2e4 g8f6 e4e5 d7d5")
	if err != nil {
		t.Fatal(err)
	}
	legal := chesskit.LegalUCIMoves(pos)
	found := false
	for _, m := range legal {
		if m == "e5d6" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected en-passant capture e5d6 among %v", legal)
	}
	before := chesskit.Hash(pos)
	if err := chesskit.ApplyUCI(pos, "b1c3"); err != nil {
		t.Fatal(err)
	}
	if chesskit.Hash(pos) == before {
		t.Error("hash unchanged after the position moved on")
	}
}

func TestHashDistinguishesPositions(t *testing.T) {
	a, err := chesskit.ReplayLine("e2e4")
	if err != nil {
		t.Fatal(err)
	}
	b, err := chesskit.ReplayLine("d2d4")
	if err != nil {
		t.Fatal(err)
	}
	if chesskit.Hash(a) == chesskit.Hash(b) {
		t.Error("different positions hash equal")
	}
	if chesskit.Hash(a) == chesskit.StartingHash() {
		t.Error("position after e4 hashes equal to the start")
	}
}

func TestHashLine(t *testing.T) {
	tokens := strings.Fields("e2e4 e7e5 g1f3")
	hashes, kept := chesskit.HashLine(tokens)
	if len(kept) != 3 {
		t.Fatalf("kept %d tokens, want 3", len(kept))
	}
	if len(hashes) != len(kept)+1 {
		t.Fatalf("got %d hashes for %d plies", len(hashes), len(kept))
	}
	if hashes[0] != chesskit.StartingHash() {
		t.Error("first hash is not the starting hash")
	}
}

func TestHashLineTruncatesAtIllegalMove(t *testing.T) {
	tokens := strings.Fields("e2e4 e7e5 e4e5")
	hashes, kept := chesskit.HashLine(tokens)
	if len(kept) != 2 {
		t.Fatalf("kept %d tokens, want 2 (e4e5 is illegal)", len(kept))
	}
	if len(hashes) != 3 {
		t.Fatalf("got %d hashes, want 3", len(hashes))
	}
}

func TestMoveToUCIRoundTrip(t *testing.T) {
	pos := pgn.NewStartingPosition()
	for _, mv := range pgn.GenerateLegalMoves(pos) {
		uci := chesskit.MoveToUCI(mv)
		got, err := chesskit.ParseUCI(pos, uci)
		if err != nil {
			t.Fatalf("ParseUCI(%q): %v", uci, err)
		}
		if chesskit.MoveToUCI(got) != uci {
			t.Errorf("round trip %q -> %q", uci, chesskit.MoveToUCI(got))
		}
	}
}

func TestParseUCIRejectsIllegal(t *testing.T) {
	pos := pgn.NewStartingPosition()
	if _, err := chesskit.ParseUCI(pos, "e2e5"); err == nil {
		t.Error("expected error for illegal move e2e5")
	}
	if _, err := chesskit.ParseUCI(pos, "xx"); err == nil {
		t.Error("expected error for malformed move")
	}
}

func TestMoveToSAN(t *testing.T) {
	tests := []struct {
		line string
		uci  string
		want string
	}{
		{"", "e2e4", "e4"},
		{"", "g1f3", "Nf3"},
		{"e2e4 e7e5", "g1f3", "Nf3"},
		{"e2e4 d7d5", "e4d5", "exd5"},
	}
	for _, tt := range tests {
		pos, err := chesskit.ReplayLine(tt.line)
		if err != nil {
			t.Fatal(err)
		}
		mv, err := chesskit.ParseUCI(pos, tt.uci)
		if err != nil {
			t.Fatal(err)
		}
		if got := chesskit.MoveToSAN(pos, mv); got != tt.want {
			t.Errorf("SAN of %s after %q: got %s, want %s", tt.uci, tt.line, got, tt.want)
		}
	}
}

func TestLegalUCIMovesStartingPosition(t *testing.T) {
	pos := pgn.NewStartingPosition()
	moves := chesskit.LegalUCIMoves(pos)
	if len(moves) != 20 {
		t.Errorf("starting position has %d moves, want 20", len(moves))
	}
}

func TestWhiteToMove(t *testing.T) {
	pos := pgn.NewStartingPosition()
	if !chesskit.WhiteToMove(pos) {
		t.Error("white to move at the start")
	}
	if err := chesskit.ApplyUCI(pos, "e2e4"); err != nil {
		t.Fatal(err)
	}
	if chesskit.WhiteToMove(pos) {
		t.Error("black to move after e4")
	}
}
