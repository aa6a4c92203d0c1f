package db

import "strings"

// Criteria is the set of filters a view can apply; zero fields are inactive
// and active fields are AND-combined.
type Criteria struct {
	White       string // case-insensitive substring of the white player name
	Black       string // case-insensitive substring of the black player name
	HasPosition bool
	Position    uint64 // games that reach this position hash
	MinElo      int64  // minimum of either side's rating
	DateFrom    string // lexicographic PGN date range, inclusive
	DateTo      string
	Result      string // exact result string
}

// Empty reports whether no filter is active.
func (c Criteria) Empty() bool {
	return c.White == "" && c.Black == "" && !c.HasPosition &&
		c.MinElo == 0 && c.DateFrom == "" && c.DateTo == "" && c.Result == ""
}

// Apply narrows q with one predicate per active criterion.
func (c Criteria) Apply(q Query) Query {
	if c.White != "" {
		needle := strings.ToLower(c.White)
		q = q.Where(func(g *Game) bool {
			return strings.Contains(strings.ToLower(g.White), needle)
		})
	}
	if c.Black != "" {
		needle := strings.ToLower(c.Black)
		q = q.Where(func(g *Game) bool {
			return strings.Contains(strings.ToLower(g.Black), needle)
		})
	}
	if c.HasPosition {
		hash := c.Position
		q = q.Where(func(g *Game) bool {
			for _, h := range g.Fens {
				if h == hash {
					return true
				}
			}
			return false
		})
	}
	if c.MinElo > 0 {
		minElo := c.MinElo
		q = q.Where(func(g *Game) bool {
			return g.WhiteElo >= minElo || g.BlackElo >= minElo
		})
	}
	if c.DateFrom != "" {
		from := c.DateFrom
		q = q.Where(func(g *Game) bool { return g.Date >= from })
	}
	if c.DateTo != "" {
		to := c.DateTo
		q = q.Where(func(g *Game) bool { return g.Date <= to })
	}
	if c.Result != "" {
		result := c.Result
		q = q.Where(func(g *Game) bool { return g.Result == result })
	}
	return q
}
