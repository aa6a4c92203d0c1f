package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fachess/fachess/internal/db"
	"github.com/fachess/fachess/internal/event"
	"github.com/fachess/fachess/internal/task"
)

// stopDrainTimeout bounds how long a cancelled search waits for the engine
// to acknowledge stop with a bestmove.
const stopDrainTimeout = 2 * time.Second

// Analyzer runs searches on one engine. A FIFO gate serializes the modes:
// continuous analysis, whole-game evaluation, and branch scans all contend
// for the single engine slot.
type Analyzer struct {
	log   zerolog.Logger
	eng   *Engine
	bus   *event.Bus
	gate  *task.Gate
	depth int
}

func NewAnalyzer(log zerolog.Logger, eng *Engine, bus *event.Bus, depth int) *Analyzer {
	if depth <= 0 {
		depth = 20
	}
	return &Analyzer{log: log, eng: eng, bus: bus, gate: task.NewGate(), depth: depth}
}

// Engine exposes the underlying engine, for configuration and shutdown.
func (a *Analyzer) Engine() *Engine { return a.eng }

// Analyze streams evaluation of the position reached by line until ctx is
// cancelled. Each parsed info packet is published on the bus with the score
// normalized to white's perspective.
func (a *Analyzer) Analyze(ctx context.Context, line []string) error {
	if err := a.gate.Acquire(ctx); err != nil {
		return err
	}
	defer a.gate.Release()

	if err := a.eng.Ensure(ctx); err != nil {
		return err
	}
	if err := a.eng.IsReady(ctx); err != nil {
		return err
	}
	if err := a.eng.Position(line); err != nil {
		return err
	}
	if err := a.eng.Go(""); err != nil {
		return err
	}

	whiteToMove := len(line)%2 == 0
	lines := a.eng.Lines()
	for {
		select {
		case raw, ok := <-lines:
			if !ok {
				return ErrNotRunning
			}
			if info, ok := parseInfo(raw); ok && info.HasScore {
				a.bus.Publish(event.EngineInfo{
					Depth: info.Depth,
					Score: info.Score.FromWhite(whiteToMove).String(),
					PV:    info.PV,
					NPS:   info.NPS,
				})
			}
			if _, ok := parseBestmove(raw); ok {
				return nil
			}
		case <-ctx.Done():
			a.stopAndDrain(lines)
			return ctx.Err()
		}
	}
}

// stopAndDrain ends the current search and consumes output up to bestmove so
// the next command starts on a clean stream.
func (a *Analyzer) stopAndDrain(lines <-chan string) {
	if err := a.eng.Stop(); err != nil {
		return
	}
	deadline := time.After(stopDrainTimeout)
	for {
		select {
		case raw, ok := <-lines:
			if !ok {
				return
			}
			if _, ok := parseBestmove(raw); ok {
				return
			}
		case <-deadline:
			a.log.Warn().Msg("engine ignored stop")
			return
		}
	}
}

// collect consumes one search's output and returns the last scored info and
// the bestmove.
func (a *Analyzer) collect(ctx context.Context) (Info, string, error) {
	lines := a.eng.Lines()
	var last Info
	for {
		select {
		case raw, ok := <-lines:
			if !ok {
				return last, "", ErrNotRunning
			}
			if info, ok := parseInfo(raw); ok && info.HasScore {
				last = info
			}
			if mv, ok := parseBestmove(raw); ok {
				return last, mv, nil
			}
		case <-ctx.Done():
			a.stopAndDrain(lines)
			return last, "", ctx.Err()
		}
	}
}

// EvaluateGame runs a fixed-depth search on every position of the game's
// main line and returns one centipawn score per position, from white's
// perspective, clamped to the display range. Index 0 is the position before
// any move.
func (a *Analyzer) EvaluateGame(ctx context.Context, g db.Game, report task.Reporter) ([]int, error) {
	if err := a.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer a.gate.Release()

	if err := a.eng.Ensure(ctx); err != nil {
		return nil, err
	}
	if err := a.eng.NewGame(ctx); err != nil {
		return nil, err
	}

	tokens := g.Tokens()
	total := len(tokens) + 1
	evals := make([]int, 0, total)
	for i := 0; i <= len(tokens); i++ {
		if err := a.eng.Position(tokens[:i]); err != nil {
			return nil, err
		}
		if err := a.eng.Go(fmt.Sprintf("depth %d", a.depth)); err != nil {
			return nil, err
		}
		info, _, err := a.collect(ctx)
		if err != nil {
			return nil, err
		}
		whiteToMove := i%2 == 0
		evals = append(evals, info.Score.FromWhite(whiteToMove).Clamped())
		if report != nil {
			report(i+1, total)
		}
	}
	return evals, nil
}

// BranchEval is one candidate move with its evaluation from white's
// perspective.
type BranchEval struct {
	UCI   string
	Score string
}

// ScanBranches evaluates each candidate continuation of line with a
// time-bounded search and returns one score per candidate. Candidates the
// engine cannot search are skipped.
func (a *Analyzer) ScanBranches(ctx context.Context, line []string, candidates []string, movetime time.Duration) ([]BranchEval, error) {
	if err := a.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer a.gate.Release()

	if err := a.eng.Ensure(ctx); err != nil {
		return nil, err
	}
	if err := a.eng.IsReady(ctx); err != nil {
		return nil, err
	}

	ms := movetime.Milliseconds()
	if ms <= 0 {
		ms = 500
	}
	// After the candidate is played the other side is to move.
	whiteToMove := (len(line)+1)%2 == 0

	out := make([]BranchEval, 0, len(candidates))
	for _, cand := range candidates {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		branch := append(append([]string(nil), line...), cand)
		if err := a.eng.Position(branch); err != nil {
			return out, err
		}
		if err := a.eng.Go(fmt.Sprintf("movetime %d", ms)); err != nil {
			return out, err
		}
		info, _, err := a.collect(ctx)
		if err != nil {
			return out, err
		}
		if !info.HasScore {
			a.log.Warn().Str("move", cand).Msg("no score for branch, skipping")
			continue
		}
		out = append(out, BranchEval{UCI: cand, Score: info.Score.FromWhite(whiteToMove).String()})
	}
	return out, nil
}
