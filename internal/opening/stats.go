// Package opening aggregates continuation statistics for a position over the
// active filtered view, with a two-tier cache and a bulk warm-up path.
package opening

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/fachess/fachess/internal/db"
)

// Row is one opening-stats row: a continuation and how it scored.
type Row struct {
	UCI         string `json:"uci"`
	Count       int    `json:"c"`
	White       int    `json:"w"`
	Draw        int    `json:"d"`
	Black       int    `json:"b"`
	AvgWhiteElo int    `json:"avg_w_elo"`
	AvgBlackElo int    `json:"avg_b_elo"`
}

// Result is a full answer for one position.
type Result struct {
	Rows        []Row  `json:"rows"`
	Synthesized bool   `json:"synthesized,omitempty"` // placeholder legal moves, zero counts
	Eval        string `json:"eval,omitempty"`        // engine evaluation, when known
}

// Total is the number of game occurrences across all rows.
func (r Result) Total() int {
	n := 0
	for _, row := range r.Rows {
		n += row.Count
	}
	return n
}

type agg struct {
	c, w, d, b       int
	wEloSum, bEloSum int64
}

func (a *agg) add(g *db.Game) {
	a.c++
	switch g.Result {
	case db.ResultWhiteWins:
		a.w++
	case db.ResultBlackWins:
		a.b++
	case db.ResultDraw:
		a.d++
	}
	a.wEloSum += g.WhiteElo
	a.bEloSum += g.BlackElo
}

// scanGame projects one game into (position, continuation) pairs and folds
// the ones matching hash into m. The pairing is bounded by both the token
// count and the hash count, guarding against rows whose columns disagree.
func scanGame(m map[string]*agg, g *db.Game, hash uint64) {
	tokens := g.Tokens()
	n := len(tokens)
	if len(g.Fens)-1 < n {
		n = len(g.Fens) - 1
	}
	for i := 0; i < n; i++ {
		if g.Fens[i] != hash {
			continue
		}
		uci := tokens[i]
		if uci == "" {
			continue
		}
		a := m[uci]
		if a == nil {
			a = &agg{}
			m[uci] = a
		}
		a.add(g)
	}
}

const aggregateWorkers = 4

// Aggregate scans the query and returns the continuation rows for hash,
// sorted by count descending and truncated to limit. Row groups are
// aggregated in parallel and merged.
func Aggregate(ctx context.Context, q db.Query, hash uint64, limit int) ([]Row, error) {
	const batchSize = 256

	batches := make(chan []db.Game, aggregateWorkers)
	maps := make([]map[string]*agg, aggregateWorkers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < aggregateWorkers; w++ {
		w := w
		maps[w] = make(map[string]*agg)
		g.Go(func() error {
			for batch := range batches {
				for i := range batch {
					scanGame(maps[w], &batch[i], hash)
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(batches)
		batch := make([]db.Game, 0, batchSize)
		err := q.ForEach(func(game *db.Game) error {
			batch = append(batch, *game)
			if len(batch) == batchSize {
				select {
				case batches <- batch:
				case <-gctx.Done():
					return gctx.Err()
				}
				batch = make([]db.Game, 0, batchSize)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(batch) > 0 {
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := maps[0]
	for _, m := range maps[1:] {
		for uci, a := range m {
			dst := merged[uci]
			if dst == nil {
				merged[uci] = a
				continue
			}
			dst.c += a.c
			dst.w += a.w
			dst.d += a.d
			dst.b += a.b
			dst.wEloSum += a.wEloSum
			dst.bEloSum += a.bEloSum
		}
	}
	return rowsFromAggs(merged, limit), nil
}

func rowsFromAggs(m map[string]*agg, limit int) []Row {
	rows := make([]Row, 0, len(m))
	for uci, a := range m {
		rows = append(rows, Row{
			UCI:         uci,
			Count:       a.c,
			White:       a.w,
			Draw:        a.d,
			Black:       a.b,
			AvgWhiteElo: int(a.wEloSum / int64(a.c)),
			AvgBlackElo: int(a.bEloSum / int64(a.c)),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].UCI < rows[j].UCI
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
