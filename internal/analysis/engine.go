package analysis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	handshakeTimeout = 5 * time.Second
	readyTimeout     = 5 * time.Second
	quitGrace        = 3 * time.Second

	restartBackoffMin = time.Second
	restartBackoffMax = 30 * time.Second
)

// ErrNotRunning is returned for commands sent to a dead engine.
var ErrNotRunning = errors.New("engine not running")

// Engine wraps one UCI engine subprocess. It owns the handshake, the typed
// option schema, configuration, and the raw line streams; search orchestration
// sits above it in Analyzer.
type Engine struct {
	log  zerolog.Logger
	path string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	lines   chan string
	done    chan struct{}
	name    string
	author  string
	options map[string]Option
	backoff time.Duration
}

func NewEngine(log zerolog.Logger, path string) *Engine {
	return &Engine{
		log:     log,
		path:    path,
		options: make(map[string]Option),
		backoff: restartBackoffMin,
	}
}

// Start launches the subprocess and performs the uci handshake, collecting
// the engine's identity and option schema.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running() {
		e.mu.Unlock()
		return nil
	}

	cmd := exec.Command(e.path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("start engine %s: %w", e.path, err)
	}

	lines := make(chan string, 256)
	done := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
		cmd.Wait()
		close(done)
	}()

	e.cmd = cmd
	e.stdin = stdin
	e.lines = lines
	e.done = done
	e.options = make(map[string]Option)
	e.mu.Unlock()

	if err := e.handshake(ctx); err != nil {
		e.kill()
		return err
	}
	e.mu.Lock()
	e.backoff = restartBackoffMin
	e.mu.Unlock()
	e.log.Info().Str("engine", e.Name()).Str("path", e.path).Msg("engine started")
	return nil
}

func (e *Engine) running() bool {
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// Alive reports whether the subprocess is up.
func (e *Engine) Alive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running()
}

// Ensure restarts a dead engine, doubling the wait between consecutive
// failures up to a cap. A successful handshake resets the backoff.
func (e *Engine) Ensure(ctx context.Context) error {
	if e.Alive() {
		return nil
	}
	e.mu.Lock()
	wait := e.backoff
	if e.backoff < restartBackoffMax {
		e.backoff *= 2
		if e.backoff > restartBackoffMax {
			e.backoff = restartBackoffMax
		}
	}
	e.mu.Unlock()

	e.log.Warn().Dur("backoff", wait).Str("path", e.path).Msg("engine down, restarting")
	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return ctx.Err()
	}
	return e.Start(ctx)
}

func (e *Engine) handshake(ctx context.Context) error {
	if err := e.send("uci"); err != nil {
		return err
	}
	deadline := time.NewTimer(handshakeTimeout)
	defer deadline.Stop()
	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				return fmt.Errorf("engine %s exited during handshake", e.path)
			}
			if line == "uciok" {
				return nil
			}
			if key, value, ok := parseID(line); ok {
				e.mu.Lock()
				switch key {
				case "name":
					e.name = value
				case "author":
					e.author = value
				}
				e.mu.Unlock()
				continue
			}
			if opt, ok := parseOption(line); ok {
				e.mu.Lock()
				e.options[opt.Name] = opt
				e.mu.Unlock()
			}
		case <-deadline.C:
			return fmt.Errorf("engine %s: no uciok within %s", e.path, handshakeTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) send(cmd string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stdin == nil || !e.running() {
		return ErrNotRunning
	}
	_, err := fmt.Fprintln(e.stdin, cmd)
	return err
}

// IsReady synchronizes with the engine: sends isready and waits for readyok,
// draining any pending search output in between.
func (e *Engine) IsReady(ctx context.Context) error {
	if err := e.send("isready"); err != nil {
		return err
	}
	deadline := time.NewTimer(readyTimeout)
	defer deadline.Stop()
	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				return ErrNotRunning
			}
			if line == "readyok" {
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("engine %s: no readyok within %s", e.path, readyTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Name returns the engine's advertised name, falling back to the binary path.
func (e *Engine) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.name == "" {
		return e.path
	}
	return e.name
}

// Author returns the engine's advertised author.
func (e *Engine) Author() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.author
}

// Options returns a copy of the advertised option schema.
func (e *Engine) Options() map[string]Option {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Option, len(e.options))
	for k, v := range e.options {
		out[k] = v
	}
	return out
}

// Configure applies settings via setoption. Options the engine never
// advertised are skipped with a warning rather than sent blind, and Ponder
// stays under this program's control.
func (e *Engine) Configure(settings map[string]string) error {
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == "Ponder" {
			e.log.Warn().Msg("Ponder is managed internally, ignoring")
			continue
		}
		e.mu.Lock()
		_, known := e.options[name]
		e.mu.Unlock()
		if !known {
			e.log.Warn().Str("option", name).Msg("engine does not advertise option, skipping")
			continue
		}
		cmd := "setoption name " + name
		if v := settings[name]; v != "" {
			cmd += " value " + v
		}
		if err := e.send(cmd); err != nil {
			return err
		}
	}
	return nil
}

// NewGame resets the engine's search state.
func (e *Engine) NewGame(ctx context.Context) error {
	if err := e.send("ucinewgame"); err != nil {
		return err
	}
	return e.IsReady(ctx)
}

// Position sets the board from the start position plus a UCI move line.
func (e *Engine) Position(line []string) error {
	cmd := "position startpos"
	if len(line) > 0 {
		cmd += " moves"
		for _, mv := range line {
			cmd += " " + mv
		}
	}
	return e.send(cmd)
}

// PositionFEN sets the board from a FEN string.
func (e *Engine) PositionFEN(fen string) error {
	return e.send("position fen " + fen)
}

// Go starts a search; the caller consumes Lines until bestmove.
func (e *Engine) Go(args string) error {
	if args == "" {
		return e.send("go infinite")
	}
	return e.send("go " + args)
}

// Stop asks the engine to end the current search with a bestmove.
func (e *Engine) Stop() error {
	return e.send("stop")
}

// Lines exposes the raw output stream. The channel closes when the engine
// exits.
func (e *Engine) Lines() <-chan string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lines
}

// Quit shuts the engine down politely, then forcefully after a grace period.
func (e *Engine) Quit() {
	e.mu.Lock()
	if !e.running() {
		e.mu.Unlock()
		return
	}
	done := e.done
	e.mu.Unlock()

	e.send("quit")
	select {
	case <-done:
	case <-time.After(quitGrace):
		e.log.Warn().Str("path", e.path).Msg("engine ignored quit, killing")
		e.kill()
		<-done
	}
}

func (e *Engine) kill() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd != nil && e.cmd.Process != nil {
		e.cmd.Process.Kill()
	}
}
