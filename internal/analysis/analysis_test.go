package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fachess/fachess/internal/db"
	"github.com/fachess/fachess/internal/event"
)

// fakeEngine writes a shell script that speaks enough UCI for the tests.
// Every received command is appended to logPath. When slow is set, "go"
// produces info lines but holds bestmove until "stop" arrives.
func fakeEngine(t *testing.T, logPath string, slow bool) string {
	t.Helper()
	goBody := `      echo "info depth 1 score cp 35 nodes 100 nps 1000 pv e2e4"
      echo "info depth 2 score cp 30 nodes 500 nps 2000 pv e2e4 e7e5"
      echo "bestmove e2e4 ponder e7e5"`
	if slow {
		goBody = `      echo "info depth 1 score cp 35 nodes 100 nps 1000 pv e2e4"`
	}
	script := fmt.Sprintf(`#!/bin/sh
while read cmd; do
  echo "$cmd" >> %q
  case "$cmd" in
    uci)
      echo "id name FakeFish 1.0"
      echo "id author Unit Test"
      echo "option name Hash type spin default 16 min 1 max 1024"
      echo "option name Ponder type check default false"
      echo "option name Clear Hash type button"
      echo "option name Style type combo default Normal var Solid var Normal var Risky"
      echo "uciok"
      ;;
    isready) echo "readyok" ;;
    go*)
%s
      ;;
    stop) echo "bestmove e2e4" ;;
    quit) exit 0 ;;
  esac
done
`, logPath, goBody)
	path := filepath.Join(t.TempDir(), "fakefish")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func startEngine(t *testing.T, slow bool) (*Engine, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "cmds.log")
	e := NewEngine(zerolog.Nop(), fakeEngine(t, logPath, slow))
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Quit)
	return e, logPath
}

func TestHandshake(t *testing.T) {
	e, _ := startEngine(t, false)

	assert.Equal(t, "FakeFish 1.0", e.Name())
	assert.Equal(t, "Unit Test", e.Author())

	opts := e.Options()
	hash, ok := opts["Hash"]
	require.True(t, ok)
	assert.Equal(t, "spin", hash.Type)
	assert.Equal(t, "16", hash.Default)
	assert.Equal(t, 1, hash.Min)
	assert.Equal(t, 1024, hash.Max)

	clearHash, ok := opts["Clear Hash"]
	require.True(t, ok, "option names may contain spaces")
	assert.Equal(t, "button", clearHash.Type)

	style, ok := opts["Style"]
	require.True(t, ok)
	assert.Equal(t, []string{"Solid", "Normal", "Risky"}, style.Vars)
}

func TestConfigure(t *testing.T) {
	e, logPath := startEngine(t, false)

	require.NoError(t, e.Configure(map[string]string{
		"Hash":        "64",
		"Ponder":      "true",
		"Nonexistent": "x",
	}))
	require.NoError(t, e.IsReady(context.Background()))

	sent, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(sent), "setoption name Hash value 64")
	assert.NotContains(t, string(sent), "Ponder", "ponder control never reaches the engine")
	assert.NotContains(t, string(sent), "Nonexistent")
}

func TestAnalyzePublishes(t *testing.T) {
	e, _ := startEngine(t, false)
	bus := event.NewBus()

	var mu sync.Mutex
	var got []event.EngineInfo
	bus.Subscribe(func(ev event.Event) {
		if info, ok := ev.(event.EngineInfo); ok {
			mu.Lock()
			got = append(got, info)
			mu.Unlock()
		}
	})

	a := NewAnalyzer(zerolog.Nop(), e, bus, 20)
	require.NoError(t, a.Analyze(context.Background(), nil))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	last := got[1]
	assert.Equal(t, 2, last.Depth)
	assert.Equal(t, "+0.30", last.Score)
	assert.Equal(t, []string{"e2e4", "e7e5"}, last.PV)
	assert.Equal(t, int64(2000), last.NPS)
}

func TestAnalyzeFlipsScoreForBlack(t *testing.T) {
	e, _ := startEngine(t, false)
	bus := event.NewBus()

	var mu sync.Mutex
	var last event.EngineInfo
	bus.Subscribe(func(ev event.Event) {
		if info, ok := ev.(event.EngineInfo); ok {
			mu.Lock()
			last = info
			mu.Unlock()
		}
	})

	a := NewAnalyzer(zerolog.Nop(), e, bus, 20)
	require.NoError(t, a.Analyze(context.Background(), []string{"e2e4"}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "-0.30", last.Score, "black to move, engine score flips to white's view")
}

func TestAnalyzeCancelStopsSearch(t *testing.T) {
	e, _ := startEngine(t, true)
	a := NewAnalyzer(zerolog.Nop(), e, event.NewBus(), 20)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Analyze(ctx, nil) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("analyze did not return after cancel")
	}

	// The engine survives the aborted search.
	require.NoError(t, e.IsReady(context.Background()))
}

func TestEvaluateGame(t *testing.T) {
	e, _ := startEngine(t, false)
	a := NewAnalyzer(zerolog.Nop(), e, event.NewBus(), 8)

	g := db.Game{FullLine: "e2e4 e7e5"}
	evals, err := a.EvaluateGame(context.Background(), g, nil)
	require.NoError(t, err)

	// The fake always answers +30 for the side to move, so white-view
	// evaluations alternate sign.
	assert.Equal(t, []int{30, -30, 30}, evals)
}

func TestScanBranches(t *testing.T) {
	e, _ := startEngine(t, false)
	a := NewAnalyzer(zerolog.Nop(), e, event.NewBus(), 8)

	out, err := a.ScanBranches(context.Background(), nil, []string{"e2e4", "d2d4"}, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "e2e4", out[0].UCI)
	assert.Equal(t, "-0.30", out[0].Score, "after the candidate black is to move")
	assert.Equal(t, "d2d4", out[1].UCI)
}

func TestBuildReport(t *testing.T) {
	// Before any move 0; white gains to 20; black holds; white blunders.
	evals := []int{0, 20, 10, -290}
	r := BuildReport(evals)

	assert.Equal(t, 2, r.White.Moves)
	assert.Equal(t, 150, r.White.ACPL)
	assert.Equal(t, 1, r.White.Blunders)
	assert.Zero(t, r.White.Mistakes)

	assert.Equal(t, 1, r.Black.Moves)
	assert.Zero(t, r.Black.ACPL, "a move that keeps the eval is no loss")
}

func TestBuildReportThresholds(t *testing.T) {
	// White loses exactly 50, 100, 300 across three moves; black is steady.
	evals := []int{0, -50, -50, -150, -150, -450, -450}
	r := BuildReport(evals)
	assert.Equal(t, 1, r.White.Inaccuracies)
	assert.Equal(t, 1, r.White.Mistakes)
	assert.Equal(t, 1, r.White.Blunders)
	assert.Equal(t, 150, r.White.ACPL)
	assert.Zero(t, r.Black.Inaccuracies+r.Black.Mistakes+r.Black.Blunders)
}

func TestScoreRendering(t *testing.T) {
	assert.Equal(t, "+0.35", Score{CP: 35}.String())
	assert.Equal(t, "-1.20", Score{CP: -120}.String())
	assert.Equal(t, "M3", Score{Mate: 3, IsMate: true}.String())
	assert.Equal(t, "-M2", Score{Mate: -2, IsMate: true}.String())
	assert.Equal(t, "+10.00", Score{CP: 2500}.String(), "display is bounded")
	assert.Equal(t, "-10.00", Score{CP: -4321}.String())
}

func TestScoreRoundTrip(t *testing.T) {
	for _, s := range []Score{{CP: 35}, {CP: -120}, {Mate: 3, IsMate: true}, {Mate: -2, IsMate: true}} {
		back, err := ParseScore(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, back)
	}
}

func TestScoreClamp(t *testing.T) {
	assert.Equal(t, 1000, Score{CP: 2500}.Clamped())
	assert.Equal(t, -1000, Score{CP: -9999}.Clamped())
	assert.Equal(t, 1000, Score{Mate: 4, IsMate: true}.Clamped())
	assert.Equal(t, -1000, Score{Mate: -1, IsMate: true}.Clamped())
	assert.Equal(t, 42, Score{CP: 42}.Clamped())
}

func TestParseInfoIgnoresChatter(t *testing.T) {
	_, ok := parseInfo("info currmove e2e4 currmovenumber 1")
	assert.False(t, ok)

	info, ok := parseInfo("info depth 12 seldepth 20 multipv 1 score mate -4 nodes 90000 nps 450000 time 200 pv e7e5 g1f3")
	require.True(t, ok)
	assert.Equal(t, 12, info.Depth)
	assert.True(t, info.Score.IsMate)
	assert.Equal(t, -4, info.Score.Mate)
	assert.Equal(t, []string{"e7e5", "g1f3"}, info.PV)
}

func TestEnsureRestartsDeadEngine(t *testing.T) {
	e, _ := startEngine(t, false)
	e.Quit()
	require.False(t, e.Alive())

	require.NoError(t, e.Ensure(context.Background()))
	assert.True(t, e.Alive())
	assert.NoError(t, e.IsReady(context.Background()))
}
