// Package app wires the process together: config, metadata store, dataset
// manager, opening service, engine, tasks, and the game controller, torn
// down in reverse construction order.
package app

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fachess/fachess/internal/analysis"
	"github.com/fachess/fachess/internal/config"
	"github.com/fachess/fachess/internal/db"
	"github.com/fachess/fachess/internal/event"
	"github.com/fachess/fachess/internal/game"
	"github.com/fachess/fachess/internal/meta"
	"github.com/fachess/fachess/internal/opening"
	"github.com/fachess/fachess/internal/task"
)

// App owns every long-lived component of a session.
type App struct {
	Log   zerolog.Logger
	Cfg   config.Config
	Paths *config.Paths

	Bus      *event.Bus
	Meta     *meta.Store
	DB       *db.Manager
	Opening  *opening.Service
	Analyzer *analysis.Analyzer // nil when no engine is configured
	Runner   *task.Runner
	Game     *game.Controller

	debounce *task.Debouncer[event.PositionChanged]
	statsFn  func(context.Context, []string)

	mu          sync.Mutex
	analysisCtx context.CancelFunc
	statsCtx    context.CancelFunc
	closers     []func()
}

// New builds a session from the resolved user paths.
func New(log zerolog.Logger) (*App, error) {
	paths, err := config.ResolvePaths()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, err
	}
	return NewWith(log, cfg, paths)
}

// NewWith builds a session from explicit config and paths.
func NewWith(log zerolog.Logger, cfg config.Config, paths *config.Paths) (*App, error) {
	a := &App{Log: log, Cfg: cfg, Paths: paths, Bus: event.NewBus()}

	store, err := meta.Open(paths.MetaDB, log)
	if err != nil {
		return nil, err
	}
	a.Meta = store
	a.onClose(func() { store.Close() })

	a.DB = db.NewManager(log, a.Bus, cfg.SampleLimit)
	a.Opening = opening.NewService(log, a.DB, store, cfg.CacheEntries, cfg.StatsMoves)
	a.Opening.Bind(a.Bus)
	a.statsFn = func(ctx context.Context, line []string) { a.Opening.Stats(ctx, line) }

	a.Runner = task.NewRunner(log)
	a.onClose(a.Runner.Shutdown)

	a.Game = game.NewController(log, a.Bus)

	if cfg.EnginePath != "" {
		eng := analysis.NewEngine(log, cfg.EnginePath)
		a.Analyzer = analysis.NewAnalyzer(log, eng, a.Bus, cfg.EngineDepth)
		a.onClose(eng.Quit)
		a.onClose(a.stopAnalysis)
	}

	a.debounce = task.NewDebouncer[event.PositionChanged](
		time.Duration(cfg.DebounceMS)*time.Millisecond, a.onPositionSettled)
	a.onClose(a.debounce.Stop)
	a.onClose(a.stopStats)
	a.Bus.Subscribe(func(ev event.Event) {
		if pc, ok := ev.(event.PositionChanged); ok {
			a.debounce.Trigger(pc)
		}
	})
	return a, nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// onPositionSettled runs once per burst of cursor movement: it warms the
// stats cache for the settled position and points the engine at it. A newer
// position cancels the previous stats scan before starting its own, so at
// most one is in flight.
func (a *App) onPositionSettled(pc event.PositionChanged) {
	a.stopStats()
	sctx, scancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.statsCtx = scancel
	a.mu.Unlock()
	a.Runner.Run(sctx, "stats", func(ctx context.Context, _ task.Reporter) error {
		a.statsFn(ctx, pc.Line)
		return nil
	})

	if a.Analyzer == nil {
		return
	}
	a.stopAnalysis()
	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.analysisCtx = cancel
	a.mu.Unlock()
	h := a.Runner.Run(ctx, "analyze", func(ctx context.Context, _ task.Reporter) error {
		return a.Analyzer.Analyze(ctx, pc.Line)
	})
	go func() {
		if out := h.Wait(); out.Kind == task.Failed {
			a.Bus.Publish(event.StatusMessage{Text: "analysis failed: " + out.Err.Error()})
		}
	}()
}

// ScanOpeningBranches evaluates the explorer's candidate moves for the
// position reached by line and attaches the leading candidate's evaluation
// to the cached stats.
func (a *App) ScanOpeningBranches(ctx context.Context, line []string) ([]analysis.BranchEval, error) {
	if a.Analyzer == nil {
		return nil, analysis.ErrNotRunning
	}
	res := a.Opening.Stats(ctx, line)
	candidates := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		candidates = append(candidates, row.UCI)
	}
	movetime := time.Duration(a.Cfg.BranchMoveMS) * time.Millisecond
	evals, err := a.Analyzer.ScanBranches(ctx, line, candidates, movetime)
	if err != nil {
		return evals, err
	}
	if len(evals) > 0 {
		a.Opening.AttachEval(ctx, line, evals[0].Score)
	}
	return evals, nil
}

func (a *App) stopAnalysis() {
	a.mu.Lock()
	cancel := a.analysisCtx
	a.analysisCtx = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *App) stopStats() {
	a.mu.Lock()
	cancel := a.statsCtx
	a.statsCtx = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ConfigureEngine pushes the configured hash and thread settings to a
// freshly started engine.
func (a *App) ConfigureEngine(ctx context.Context) error {
	if a.Analyzer == nil {
		return nil
	}
	eng := a.Analyzer.Engine()
	if err := eng.Ensure(ctx); err != nil {
		return err
	}
	settings := map[string]string{}
	if a.Cfg.EngineHashMB > 0 {
		settings["Hash"] = strconv.Itoa(a.Cfg.EngineHashMB)
	}
	if a.Cfg.EngineThreads > 0 {
		settings["Threads"] = strconv.Itoa(a.Cfg.EngineThreads)
	}
	return eng.Configure(settings)
}

// Close tears the session down in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
