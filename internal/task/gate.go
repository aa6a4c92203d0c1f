package task

import (
	"context"
	"sync"
)

// Gate serializes access to a scarce resource (the engine subprocess, the
// metadata write lane) with strict FIFO ordering: waiters are admitted in
// arrival order.
type Gate struct {
	mu    sync.Mutex
	busy  bool
	queue []chan struct{}
}

func NewGate() *Gate {
	return &Gate{}
}

// Acquire blocks until the gate is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if !g.busy {
		g.busy = true
		g.mu.Unlock()
		return nil
	}
	ticket := make(chan struct{})
	g.queue = append(g.queue, ticket)
	g.mu.Unlock()

	select {
	case <-ticket:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, t := range g.queue {
			if t == ticket {
				g.queue = append(g.queue[:i], g.queue[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// The ticket was already granted; hand the slot straight back.
		g.Release()
		return ctx.Err()
	}
}

// Release hands the gate to the longest-waiting acquirer, if any.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) > 0 {
		ticket := g.queue[0]
		g.queue = g.queue[1:]
		close(ticket)
		return
	}
	g.busy = false
}
