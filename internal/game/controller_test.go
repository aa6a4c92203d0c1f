package game

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fachess/fachess/internal/chesskit"
	"github.com/fachess/fachess/internal/db"
	"github.com/fachess/fachess/internal/event"
)

func TestMakeAndNavigate(t *testing.T) {
	c := NewController(zerolog.Nop(), nil)

	require.NoError(t, c.Make("e2e4"))
	require.NoError(t, c.Make("e7e5"))
	assert.Equal(t, 2, c.Cursor())
	assert.Equal(t, []string{"e2e4", "e7e5"}, c.Line())

	c.StepBack()
	assert.Equal(t, []string{"e2e4"}, c.Line())
	assert.Equal(t, []string{"e2e4", "e7e5"}, c.FullLine(), "stepping back keeps the line")

	c.StepForward()
	assert.Equal(t, 2, c.Cursor())

	c.GoStart()
	assert.Equal(t, chesskit.StartingHash(), c.Hash())
	c.GoEnd()
	assert.Equal(t, 2, c.Cursor())
}

func TestMakeAdvancesAlongExistingLine(t *testing.T) {
	c := NewController(zerolog.Nop(), nil)
	require.NoError(t, c.LoadLine([]string{"e2e4", "e7e5", "g1f3"}))

	c.GoStart()
	require.NoError(t, c.Make("e2e4"))
	assert.Equal(t, 1, c.Cursor())
	assert.Equal(t, []string{"e2e4", "e7e5", "g1f3"}, c.FullLine(), "replaying the next move must not truncate")
}

func TestMakeTruncatesOnDeviation(t *testing.T) {
	c := NewController(zerolog.Nop(), nil)
	require.NoError(t, c.LoadLine([]string{"e2e4", "e7e5", "g1f3"}))

	c.GoStart()
	require.NoError(t, c.Make("d2d4"))
	assert.Equal(t, []string{"d2d4"}, c.FullLine())
	assert.Equal(t, 1, c.Cursor())
}

func TestMakeRejectsIllegal(t *testing.T) {
	c := NewController(zerolog.Nop(), nil)
	assert.Error(t, c.Make("e2e5"))
	assert.Error(t, c.Make("zzzz"))
	assert.Zero(t, c.Cursor())
}

func TestInvariantLengths(t *testing.T) {
	c := NewController(zerolog.Nop(), nil)
	require.NoError(t, c.LoadLine([]string{"e2e4", "c7c5", "g1f3", "d7d6", "d2d4"}))

	snap := c.Snapshot()
	tokens := strings.Fields(snap.FullLine)
	assert.Len(t, snap.Fens, len(tokens)+1, "one position per ply plus the start")
	assert.Equal(t, chesskit.StartingHash(), snap.Fens[0])

	hashes, _ := chesskit.HashLine(tokens)
	assert.Equal(t, hashes, snap.Fens, "controller hashes match an independent replay")
}

func TestSnapshotTruncatesLineColumn(t *testing.T) {
	c := NewController(zerolog.Nop(), nil)
	ruy := []string{
		"e2e4", "e7e5", "g1f3", "b8c6", "f1b5", "a7a6", "b5a4",
		"g8f6", "e1g1", "f8e7", "f1e1", "b7b5", "a4b3", "d7d6",
	}
	require.NoError(t, c.LoadLine(ruy))

	snap := c.Snapshot()
	assert.Equal(t, strings.Join(ruy, " "), snap.FullLine)
	assert.Equal(t, strings.Join(ruy[:db.DefaultLinePlies], " "), snap.Line,
		"line column keeps only the opening plies")
}

func TestPositionChangedEvents(t *testing.T) {
	bus := event.NewBus()
	var got []event.PositionChanged
	bus.Subscribe(func(ev event.Event) {
		if pc, ok := ev.(event.PositionChanged); ok {
			got = append(got, pc)
		}
	})

	c := NewController(zerolog.Nop(), bus)
	require.NoError(t, c.Make("e2e4"))
	c.StepBack()

	require.Len(t, got, 2)
	assert.Equal(t, []string{"e2e4"}, got[0].Line)
	assert.Empty(t, got[1].Line)
	assert.Equal(t, chesskit.StartingHash(), got[1].Hash)
}

func TestJumpTo(t *testing.T) {
	c := NewController(zerolog.Nop(), nil)
	require.NoError(t, c.LoadLine([]string{"e2e4", "e7e5", "g1f3", "b8c6"}))

	require.NoError(t, c.JumpTo(2))
	assert.Equal(t, []string{"e2e4", "e7e5"}, c.Line())
	assert.Error(t, c.JumpTo(5))
	assert.Error(t, c.JumpTo(-1))
}

func TestLoadGame(t *testing.T) {
	bus := event.NewBus()
	var loaded []int64
	bus.Subscribe(func(ev event.Event) {
		if gl, ok := ev.(event.GameLoaded); ok {
			loaded = append(loaded, gl.GameID)
		}
	})

	c := NewController(zerolog.Nop(), bus)
	g := db.Game{
		ID:       42,
		White:    "Adams",
		Black:    "Baker",
		Result:   db.ResultWhiteWins,
		Date:     "2024.05.01",
		FullLine: "e2e4 e7e5",
	}
	require.NoError(t, c.LoadGame(g))

	assert.Equal(t, []int64{42}, loaded)
	assert.Zero(t, c.Cursor(), "a loaded game opens at the start position")
	assert.Equal(t, []string{"e2e4", "e7e5"}, c.FullLine())
	assert.Equal(t, "Adams", c.Metadata().White)
}

func TestSANLine(t *testing.T) {
	c := NewController(zerolog.Nop(), nil)
	require.NoError(t, c.LoadLine([]string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5"}))
	assert.Equal(t, []string{"e4", "e5", "Nf3", "Nc6", "Bb5"}, c.SANLine())
}

func TestExportPGN(t *testing.T) {
	c := NewController(zerolog.Nop(), nil)
	require.NoError(t, c.LoadGame(db.Game{
		White:    "Adams",
		Black:    "Baker",
		Result:   db.ResultWhiteWins,
		Date:     "2024.05.01",
		Event:    "Club Championship",
		FullLine: "e2e4 e7e5 g1f3",
	}))

	out := c.ExportPGN()
	assert.Contains(t, out, `[White "Adams"]`)
	assert.Contains(t, out, `[Black "Baker"]`)
	assert.Contains(t, out, `[Result "1-0"]`)
	assert.Contains(t, out, `[Date "2024.05.01"]`)
	assert.Contains(t, out, "1. e4 e5 2. Nf3 1-0")
}

func TestResetClearsEverything(t *testing.T) {
	c := NewController(zerolog.Nop(), nil)
	require.NoError(t, c.LoadLine([]string{"e2e4"}))
	c.Reset()
	assert.Empty(t, c.FullLine())
	assert.Equal(t, chesskit.StartingHash(), c.Hash())
	assert.Equal(t, db.ResultUnknown, c.Metadata().Result)
}
