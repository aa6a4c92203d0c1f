// Package task is the cooperative worker runtime: every long operation runs
// as a task with a handle, progress reporting, and a typed terminal outcome.
// Nothing in here ever panics across a goroutine boundary; failures travel
// on the outcome.
package task

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Progress is one (current, total) report. Total may be 0 when unknown.
type Progress struct {
	Current int
	Total   int
}

// OutcomeKind classifies how a task ended.
type OutcomeKind int

const (
	Finished OutcomeKind = iota
	Failed
	Cancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case Finished:
		return "finished"
	case Failed:
		return "error"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is a task's terminal state. Err is set only for Failed.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

// Reporter publishes progress from inside a task body. Safe to call at any
// rate; reports are dropped rather than ever blocking the task.
type Reporter func(current, total int)

// Handle identifies a running task and carries its channels.
type Handle struct {
	ID   uuid.UUID
	Name string

	cancel   context.CancelFunc
	progress chan Progress
	done     chan struct{}
	outcome  Outcome
}

// Cancel requests cooperative cancellation. The task observes it at its next
// suspension point.
func (h *Handle) Cancel() { h.cancel() }

// Progress returns the progress channel. It is closed when the task ends.
func (h *Handle) Progress() <-chan Progress { return h.progress }

// Done is closed when the task has terminated.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task terminates and returns its outcome.
func (h *Handle) Wait() Outcome {
	<-h.done
	return h.outcome
}

// Runner launches tasks and waits for them on shutdown.
type Runner struct {
	log zerolog.Logger
	wg  sync.WaitGroup
}

func NewRunner(log zerolog.Logger) *Runner {
	return &Runner{log: log}
}

// Run starts fn as a task. The returned handle is live immediately; the
// body's error return decides the outcome: nil is Finished, a context
// cancellation is Cancelled, anything else is Failed.
func (r *Runner) Run(ctx context.Context, name string, fn func(ctx context.Context, report Reporter) error) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ID:       uuid.New(),
		Name:     name,
		cancel:   cancel,
		progress: make(chan Progress, 16),
		done:     make(chan struct{}),
	}

	report := func(current, total int) {
		select {
		case h.progress <- Progress{Current: current, Total: total}:
		default:
		}
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		err := fn(ctx, report)
		switch {
		case err == nil:
			h.outcome = Outcome{Kind: Finished}
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			h.outcome = Outcome{Kind: Cancelled}
			r.log.Debug().Str("task", name).Str("id", h.ID.String()).Msg("task cancelled")
		default:
			h.outcome = Outcome{Kind: Failed, Err: err}
			r.log.Warn().Err(err).Str("task", name).Str("id", h.ID.String()).Msg("task failed")
		}
		close(h.progress)
		close(h.done)
	}()
	return h
}

// Shutdown blocks until every launched task has terminated. Callers cancel
// handles first; Shutdown only waits.
func (r *Runner) Shutdown() {
	r.wg.Wait()
}
