package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fachess/fachess/internal/event"
	"github.com/fachess/fachess/internal/task"
)

func TestNewPositionCancelsStatsInFlight(t *testing.T) {
	a := &App{Log: zerolog.Nop(), Bus: event.NewBus(), Runner: task.NewRunner(zerolog.Nop())}
	t.Cleanup(a.Runner.Shutdown)
	t.Cleanup(a.stopStats)

	started := make(chan []string, 2)
	done := make(chan []string, 2)
	a.statsFn = func(ctx context.Context, line []string) {
		started <- line
		<-ctx.Done()
		done <- line
	}

	a.onPositionSettled(event.PositionChanged{Line: []string{"e2e4"}})
	first := <-started

	a.onPositionSettled(event.PositionChanged{Line: []string{"d2d4"}})
	select {
	case cancelled := <-done:
		assert.Equal(t, first, cancelled, "the older scan must be the one cancelled")
	case <-time.After(2 * time.Second):
		t.Fatal("starting a newer stats scan did not cancel the older one")
	}
	second := <-started
	require.Equal(t, []string{"d2d4"}, second)
}

func TestStopStatsIsIdempotent(t *testing.T) {
	a := &App{Log: zerolog.Nop(), Bus: event.NewBus(), Runner: task.NewRunner(zerolog.Nop())}
	t.Cleanup(a.Runner.Shutdown)
	a.statsFn = func(ctx context.Context, line []string) { <-ctx.Done() }

	a.stopStats()
	a.onPositionSettled(event.PositionChanged{Line: nil})
	a.stopStats()
	a.stopStats()
}
