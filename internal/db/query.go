package db

import (
	"errors"
	"sort"
	"strings"
)

// Predicate decides whether a row belongs to a query's result.
type Predicate func(*Game) bool

type sortSpec struct {
	column     string
	descending bool
}

// Query is a lazy, composable view over one dataset. Values are cheap to
// copy; composition never touches the file. Rows materialize only through
// Count, Collect, Head, or ForEach.
type Query struct {
	ds      *Dataset
	preds   []Predicate
	exclude map[int64]struct{}
	order   *sortSpec
}

// Where narrows the query with an additional predicate (AND-combined).
func (q Query) Where(p Predicate) Query {
	preds := make([]Predicate, len(q.preds)+1)
	copy(preds, q.preds)
	preds[len(q.preds)] = p
	q.preds = preds
	return q
}

// Without anti-joins the query against a set of ids.
func (q Query) Without(ids map[int64]struct{}) Query {
	q.exclude = ids
	return q
}

// OrderBy attaches an ordering by column name. Unknown columns fall back to
// id order.
func (q Query) OrderBy(column string, descending bool) Query {
	q.order = &sortSpec{column: column, descending: descending}
	return q
}

// Sorted reports whether an ordering is attached.
func (q Query) Sorted() bool { return q.order != nil }

func (q Query) match(g *Game) bool {
	if q.exclude != nil {
		if _, skip := q.exclude[g.ID]; skip {
			return false
		}
	}
	for _, p := range q.preds {
		if !p(g) {
			return false
		}
	}
	return true
}

// ForEach streams matching rows in scan order, ignoring any attached sort.
// Returning an error from fn aborts the scan.
func (q Query) ForEach(fn func(*Game) error) error {
	it, err := q.ds.scan()
	if err != nil {
		return err
	}
	defer it.close()
	for {
		g, ok, err := it.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if !q.match(&g) {
			continue
		}
		if err := fn(&g); err != nil {
			return err
		}
	}
}

// Count streams the query and returns the exact number of matching rows.
func (q Query) Count() (int, error) {
	n := 0
	err := q.ForEach(func(*Game) error {
		n++
		return nil
	})
	return n, err
}

// Collect materializes every matching row, sorted when an ordering is
// attached.
func (q Query) Collect() ([]Game, error) {
	var rows []Game
	err := q.ForEach(func(g *Game) error {
		rows = append(rows, *g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if q.order != nil {
		less := q.order.lessFunc()
		sort.SliceStable(rows, func(i, j int) bool { return less(&rows[i], &rows[j]) })
	}
	return rows, nil
}

// Head materializes at most n rows: the first n in scan order, or the top n
// under the attached ordering. It never holds more than n rows in memory.
func (q Query) Head(n int) ([]Game, error) {
	if n <= 0 {
		return nil, nil
	}
	if q.order == nil {
		rows := make([]Game, 0, min(n, scanBatch))
		err := q.ForEach(func(g *Game) error {
			if len(rows) < n {
				rows = append(rows, *g)
			}
			return nil
		})
		return rows, err
	}

	// Bounded selection: keep a sorted window of the best n rows seen.
	less := q.order.lessFunc()
	window := make([]Game, 0, n+1)
	err := q.ForEach(func(g *Game) error {
		if len(window) == n && !less(g, &window[n-1]) {
			return nil
		}
		i := sort.Search(len(window), func(i int) bool { return less(g, &window[i]) })
		window = append(window, Game{})
		copy(window[i+1:], window[i:])
		window[i] = *g
		if len(window) > n {
			window = window[:n]
		}
		return nil
	})
	return window, err
}

// Ids materializes only the ids of matching rows.
func (q Query) Ids() (map[int64]struct{}, error) {
	ids := make(map[int64]struct{})
	err := q.ForEach(func(g *Game) error {
		ids[g.ID] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Get materializes the single row with the given id.
func (q Query) Get(id int64) (Game, error) {
	var found *Game
	err := q.ForEach(func(g *Game) error {
		if g.ID == id {
			cp := *g
			found = &cp
			return errStopScan
		}
		return nil
	})
	if err != nil && err != errStopScan {
		return Game{}, err
	}
	if found == nil {
		return Game{}, ErrNotFound
	}
	return *found, nil
}

var errStopScan = errors.New("stop scan")

func (s *sortSpec) lessFunc() func(a, b *Game) bool {
	cmp := keyCompare(s.column)
	if s.descending {
		return func(a, b *Game) bool { return cmp(b, a) < 0 }
	}
	return func(a, b *Game) bool { return cmp(a, b) < 0 }
}

func keyCompare(column string) func(a, b *Game) int {
	switch column {
	case "white":
		return func(a, b *Game) int { return strings.Compare(a.White, b.White) }
	case "black":
		return func(a, b *Game) int { return strings.Compare(a.Black, b.Black) }
	case "w_elo":
		return func(a, b *Game) int { return compareInt64(a.WhiteElo, b.WhiteElo) }
	case "b_elo":
		return func(a, b *Game) int { return compareInt64(a.BlackElo, b.BlackElo) }
	case "result":
		return func(a, b *Game) int { return strings.Compare(a.Result, b.Result) }
	case "date":
		return func(a, b *Game) int { return strings.Compare(a.Date, b.Date) }
	case "event":
		return func(a, b *Game) int { return strings.Compare(a.Event, b.Event) }
	case "site":
		return func(a, b *Game) int { return strings.Compare(a.Site, b.Site) }
	default:
		return func(a, b *Game) int { return compareInt64(a.ID, b.ID) }
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
