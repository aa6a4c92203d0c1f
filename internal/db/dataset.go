package db

import (
	"sync"
	"time"
)

// Dataset is one named collection of games. File-backed datasets keep the
// on-disk file immutable while open; adds and deletes accumulate in an
// overlay until Save rewrites the file.
type Dataset struct {
	Name string
	Path string // empty for in-memory datasets

	mu       sync.Mutex
	readOnly bool
	dirty    bool
	mem      []Game // rows of an in-memory dataset
	pending  []Game // appended rows awaiting save (file-backed)
	deleted  map[int64]struct{}
	nextID   int64
}

func newMemoryDataset(name string) *Dataset {
	return &Dataset{
		Name:    name,
		deleted: make(map[int64]struct{}),
		nextID:  1,
	}
}

func newFileDataset(name, path string, readOnly bool) *Dataset {
	return &Dataset{
		Name:     name,
		Path:     path,
		readOnly: readOnly,
		deleted:  make(map[int64]struct{}),
	}
}

// ReadOnly reports whether mutations are rejected.
func (d *Dataset) ReadOnly() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readOnly
}

// SetWritable performs the explicit read-only to writable transition.
func (d *Dataset) SetWritable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readOnly = false
}

// Dirty reports whether the dataset has unsaved mutations.
func (d *Dataset) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// InMemory reports whether the dataset has no file backing.
func (d *Dataset) InMemory() bool { return d.Path == "" }

// scan opens an iterator over the dataset's current row set: base rows with
// deletions masked, pending appends at the end.
func (d *Dataset) scan() (iterator, error) {
	d.mu.Lock()
	deleted := make(map[int64]struct{}, len(d.deleted))
	for id := range d.deleted {
		deleted[id] = struct{}{}
	}
	pending := append([]Game(nil), d.pending...)
	mem := d.mem
	path := d.Path
	d.mu.Unlock()

	var base iterator
	if path == "" {
		base = &memoryIter{rows: mem}
	} else {
		it, err := openParquet(path)
		if err != nil {
			return nil, err
		}
		base = it
	}
	return &overlayIter{base: base, deleted: deleted, pending: pending}, nil
}

type overlayIter struct {
	base    iterator
	deleted map[int64]struct{}
	pending []Game
	pos     int
}

func (it *overlayIter) next() (Game, bool, error) {
	for {
		g, ok, err := it.base.next()
		if err != nil {
			return Game{}, false, err
		}
		if !ok {
			break
		}
		if _, gone := it.deleted[g.ID]; gone {
			continue
		}
		return g, true, nil
	}
	for it.pos < len(it.pending) {
		g := it.pending[it.pos]
		it.pos++
		if _, gone := it.deleted[g.ID]; gone {
			continue
		}
		return g, true, nil
	}
	return Game{}, false, nil
}

func (it *overlayIter) close() error { return it.base.close() }

// add appends a row. A zero id is allocated from the wall clock so manual
// additions stay unique and monotonic across restarts.
func (d *Dataset) add(g Game) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readOnly {
		return ErrReadOnly
	}
	if g.ID == 0 {
		g.ID = time.Now().UnixNano()
		if g.ID < d.nextID {
			g.ID = d.nextID
		}
	}
	if g.ID >= d.nextID {
		d.nextID = g.ID + 1
	}
	if d.Path == "" {
		d.mem = append(d.mem, g)
	} else {
		d.pending = append(d.pending, g)
	}
	d.dirty = true
	return nil
}

func (d *Dataset) deleteIDs(ids []int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readOnly {
		return ErrReadOnly
	}
	for _, id := range ids {
		d.deleted[id] = struct{}{}
	}
	if len(ids) > 0 {
		d.dirty = true
	}
	return nil
}

// resetOverlay drops pending mutations after a successful save or reload.
func (d *Dataset) resetOverlay() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
	d.deleted = make(map[int64]struct{})
	d.dirty = false
}

// Query returns the full lazy query over the dataset.
func (d *Dataset) Query() Query {
	return Query{ds: d}
}
