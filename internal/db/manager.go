package db

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/fachess/fachess/internal/event"
)

// View is a filtered window over a dataset: the lazy query itself, a bounded
// sample for display, and the exact count. Stats caches key on FilterID.
type View struct {
	Query    Query
	Sample   []Game
	Count    int
	FilterID uint64
	Criteria Criteria
	Inverted bool
}

// Whole reports whether the view covers the full dataset with no filter,
// which is what position-cache persistence keys on.
func (v *View) Whole() bool {
	return v.Criteria.Empty() && !v.Inverted
}

// Manager owns every open dataset and the active filtered view. Mutations
// are serialized per manager; scans run concurrently against immutable
// files.
type Manager struct {
	log         zerolog.Logger
	bus         *event.Bus
	sampleLimit int

	mu       sync.Mutex
	datasets map[string]*Dataset
	active   string
	views    map[string]*View
	filterID atomic.Uint64
}

// NewManager creates a manager holding only the volatile clipbase.
func NewManager(log zerolog.Logger, bus *event.Bus, sampleLimit int) *Manager {
	if sampleLimit <= 0 {
		sampleLimit = 1000
	}
	m := &Manager{
		log:         log,
		bus:         bus,
		sampleLimit: sampleLimit,
		datasets:    map[string]*Dataset{Clipbase: newMemoryDataset(Clipbase)},
		views:       make(map[string]*View),
		active:      Clipbase,
	}
	return m
}

func (m *Manager) publish(ev event.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}

// Load validates and registers a dataset file as read-only, returning the
// name it was registered under.
func (m *Manager) Load(path string) (string, error) {
	if err := validateSchema(path); err != nil {
		return "", err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.datasets[name]; exists {
		return "", fmt.Errorf("dataset %q already loaded", name)
	}
	m.datasets[name] = newFileDataset(name, path, true)
	m.log.Info().Str("name", name).Str("path", path).Msg("dataset loaded")
	return name, nil
}

// Create writes an empty dataset file with the canonical schema and
// registers it writable.
func (m *Manager) Create(path string) (string, error) {
	if _, err := writeParquet(path, &memoryIter{}); err != nil {
		return "", err
	}
	name, err := m.Load(path)
	if err != nil {
		return "", err
	}
	m.Dataset(name).SetWritable()
	return name, nil
}

// Dataset returns the named dataset, or nil.
func (m *Manager) Dataset(name string) *Dataset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.datasets[name]
}

// Names lists the open datasets.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.datasets))
	for name := range m.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unload drops the handle for a dataset. Unsaved mutations are discarded.
func (m *Manager) Unload(name string) error {
	if name == Clipbase {
		return fmt.Errorf("clipbase cannot be unloaded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.datasets[name]; !ok {
		return ErrNotFound
	}
	delete(m.datasets, name)
	delete(m.views, name)
	if m.active == name {
		m.active = Clipbase
	}
	return nil
}

// SetActive makes a dataset the target of queries and mutations. The view
// resets to the full dataset and downstream caches go cold via the new
// filter id.
func (m *Manager) SetActive(name string) error {
	m.mu.Lock()
	ds, ok := m.datasets[name]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.active = name
	m.mu.Unlock()

	view, err := m.rebuildView(ds, Criteria{})
	if err != nil {
		return err
	}
	m.publish(event.DatasetChanged{Dataset: name})
	m.publish(event.FilterChanged{Dataset: name, FilterID: view.FilterID, Count: view.Count})
	return nil
}

// Active returns the active dataset.
func (m *Manager) Active() *Dataset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.datasets[m.active]
}

// ActiveView returns the current view of the active dataset, building the
// full view lazily on first use.
func (m *Manager) ActiveView() (*View, error) {
	m.mu.Lock()
	ds := m.datasets[m.active]
	view := m.views[m.active]
	m.mu.Unlock()
	if view != nil {
		return view, nil
	}
	return m.rebuildView(ds, Criteria{})
}

// rebuildView recomputes sample and count for a criteria set and installs it
// as the dataset's view under a fresh filter id.
func (m *Manager) rebuildView(ds *Dataset, c Criteria) (*View, error) {
	return m.installView(ds, c, false, c.Apply(ds.Query()))
}

func (m *Manager) installView(ds *Dataset, c Criteria, inverted bool, q Query) (*View, error) {
	count, err := q.Count()
	if err != nil {
		return nil, err
	}
	sample, err := q.Head(m.sampleLimit)
	if err != nil {
		return nil, err
	}
	view := &View{
		Query:    q,
		Sample:   sample,
		Count:    count,
		FilterID: m.filterID.Add(1),
		Criteria: c,
		Inverted: inverted,
	}
	m.mu.Lock()
	m.views[ds.Name] = view
	m.mu.Unlock()
	return view, nil
}

// Filter replaces the active view with a filtered one.
func (m *Manager) Filter(c Criteria) (*View, error) {
	ds := m.Active()
	view, err := m.rebuildView(ds, c)
	if err != nil {
		return nil, err
	}
	m.log.Debug().Str("dataset", ds.Name).Uint64("filter_id", view.FilterID).
		Int("count", view.Count).Msg("filter applied")
	m.publish(event.FilterChanged{Dataset: ds.Name, FilterID: view.FilterID, Count: view.Count})
	return view, nil
}

// ClearFilter restores the full view of the active dataset.
func (m *Manager) ClearFilter() (*View, error) {
	return m.Filter(Criteria{})
}

// Sort attaches an ordering to the current view and recomputes its sample
// and count.
func (m *Manager) Sort(column string, descending bool) (*View, error) {
	ds := m.Active()
	current, err := m.ActiveView()
	if err != nil {
		return nil, err
	}
	view, err := m.installView(ds, current.Criteria, current.Inverted, current.Query.OrderBy(column, descending))
	if err != nil {
		return nil, err
	}
	m.publish(event.FilterChanged{Dataset: ds.Name, FilterID: view.FilterID, Count: view.Count})
	return view, nil
}

// InvertFilter replaces the view with the full dataset minus the currently
// filtered games, anti-joined by id. Only the ids materialize.
func (m *Manager) InvertFilter() (*View, error) {
	ds := m.Active()
	current, err := m.ActiveView()
	if err != nil {
		return nil, err
	}
	ids, err := current.Query.Ids()
	if err != nil {
		return nil, err
	}
	view, err := m.installView(ds, Criteria{}, true, ds.Query().Without(ids))
	if err != nil {
		return nil, err
	}
	m.publish(event.FilterChanged{Dataset: ds.Name, FilterID: view.FilterID, Count: view.Count})
	return view, nil
}

// Add appends a row to the active dataset and refreshes the view.
func (m *Manager) Add(g Game) error {
	ds := m.Active()
	if err := ds.add(g); err != nil {
		return err
	}
	return m.refreshAfterMutation(ds)
}

// DeleteByID removes one game by id.
func (m *Manager) DeleteByID(id int64) error {
	ds := m.Active()
	if err := ds.deleteIDs([]int64{id}); err != nil {
		return err
	}
	return m.refreshAfterMutation(ds)
}

// DeleteFiltered removes every game in the current view.
func (m *Manager) DeleteFiltered() error {
	ds := m.Active()
	view, err := m.ActiveView()
	if err != nil {
		return err
	}
	ids, err := view.Query.Ids()
	if err != nil {
		return err
	}
	ordered := make([]int64, 0, len(ids))
	for id := range ids {
		ordered = append(ordered, id)
	}
	if err := ds.deleteIDs(ordered); err != nil {
		return err
	}
	return m.refreshAfterMutation(ds)
}

func (m *Manager) refreshAfterMutation(ds *Dataset) error {
	m.mu.Lock()
	var c Criteria
	if view := m.views[ds.Name]; view != nil {
		c = view.Criteria
	}
	m.mu.Unlock()
	view, err := m.rebuildView(ds, c)
	if err != nil {
		return err
	}
	m.publish(event.FilterChanged{Dataset: ds.Name, FilterID: view.FilterID, Count: view.Count})
	return nil
}

// Get materializes one row of the active dataset.
func (m *Manager) Get(id int64) (Game, error) {
	return m.Active().Query().Get(id)
}

// Save atomically persists a writable, dirty, file-backed dataset: the
// current row set is collected into a temp file beside the target and
// renamed over it, then the dataset reloads. On failure the original file
// and the dirty flag survive.
func (m *Manager) Save(name string) error {
	ds := m.Dataset(name)
	if ds == nil {
		return ErrNotFound
	}
	if name == Clipbase || ds.InMemory() {
		return fmt.Errorf("dataset %q has no file backing", name)
	}
	if ds.ReadOnly() {
		return ErrReadOnly
	}
	if !ds.Dirty() {
		return ErrNotDirty
	}

	rows, err := ds.Query().Collect()
	if err != nil {
		return err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	dir := filepath.Dir(ds.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(ds.Path)+".*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if _, err := writeParquet(tmpPath, &memoryIter{rows: rows}); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, ds.Path); err != nil {
		os.Remove(tmpPath)
		return err
	}

	m.log.Info().Str("name", name).Int("games", len(rows)).Msg("dataset saved")
	m.publish(event.DatasetSaved{Dataset: name, Path: ds.Path})
	return m.Reload(name)
}

// Reload discards the scan overlay, bumps the filter id, and clears the
// derived view so per-dataset caches go cold.
func (m *Manager) Reload(name string) error {
	ds := m.Dataset(name)
	if ds == nil {
		return ErrNotFound
	}
	ds.resetOverlay()

	m.mu.Lock()
	delete(m.views, name)
	isActive := m.active == name
	m.mu.Unlock()

	m.publish(event.DatasetChanged{Dataset: name})
	if isActive {
		view, err := m.rebuildView(ds, Criteria{})
		if err != nil {
			return err
		}
		m.publish(event.FilterChanged{Dataset: name, FilterID: view.FilterID, Count: view.Count})
	}
	return nil
}
