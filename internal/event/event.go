// Package event defines the closed set of events flowing between the core
// and a front-end, with explicit subscription instead of reflective signal
// glue.
package event

import "sync"

// Event is implemented by every event type in this package.
type Event interface{ isEvent() }

// PositionChanged fires when the game controller's cursor lands on a new
// position.
type PositionChanged struct {
	Line []string // UCI moves up to the cursor
	Hash uint64   // hash of the current position
}

// GameLoaded fires when a whole game replaces the controller state.
type GameLoaded struct {
	GameID int64
}

// MetadataChanged fires when game headers are edited.
type MetadataChanged struct{}

// FilterChanged fires when the active view over a dataset changes.
type FilterChanged struct {
	Dataset  string
	FilterID uint64
	Count    int
}

// DatasetChanged fires when the active dataset switches or is reloaded.
type DatasetChanged struct {
	Dataset string
}

// DatasetSaved fires after a dataset file on disk has been rewritten.
// Durable caches keyed on the path are stale from this moment.
type DatasetSaved struct {
	Dataset string
	Path    string
}

// EngineInfo carries one streamed analysis packet.
type EngineInfo struct {
	Depth int
	Score string
	PV    []string
	NPS   int64
}

// StatusMessage surfaces a non-fatal error or notice to the status area.
type StatusMessage struct {
	Text string
}

func (PositionChanged) isEvent() {}
func (GameLoaded) isEvent()      {}
func (MetadataChanged) isEvent() {}
func (FilterChanged) isEvent()   {}
func (DatasetChanged) isEvent()  {}
func (DatasetSaved) isEvent()    {}
func (EngineInfo) isEvent()      {}
func (StatusMessage) isEvent()   {}

// Bus is a synchronous publish/subscribe hub. Handlers run on the
// publisher's goroutine; anything slow belongs in a task.
type Bus struct {
	mu       sync.RWMutex
	handlers []func(Event)
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all events. The handler filters by type.
func (b *Bus) Subscribe(h func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers ev to every subscriber in registration order.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}
