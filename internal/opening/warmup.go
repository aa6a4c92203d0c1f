package opening

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	pgn "github.com/freeeve/pgn/v3"
	"github.com/klauspost/compress/zstd"

	"github.com/fachess/fachess/internal/chesskit"
	"github.com/fachess/fachess/internal/db"
	"github.com/fachess/fachess/internal/meta"
	"github.com/fachess/fachess/internal/task"
)

const warmupShards = 16

// WarmupOptions tunes the bulk cache build.
type WarmupOptions struct {
	MinGames int    // positions reached by fewer games are not persisted
	TempDir  string // shard spill directory, defaults to the system temp dir
}

// spillRec is one (position, continuation) occurrence routed to a shard.
type spillRec struct {
	Hash uint64
	UCI  string
	Res  string
	WElo int64
	BElo int64
}

type shardWriter struct {
	path string
	f    *os.File
	zw   *zstd.Encoder
	enc  *gob.Encoder
}

func newShardWriter(dir string) (*shardWriter, error) {
	f, err := os.CreateTemp(dir, "warmup-shard-*.zst")
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &shardWriter{path: f.Name(), f: f, zw: zw, enc: gob.NewEncoder(zw)}, nil
}

func (w *shardWriter) close() error {
	if err := w.zw.Close(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

func (w *shardWriter) discard() {
	w.zw.Close()
	w.f.Close()
	os.Remove(w.path)
}

// Warmup pre-builds the durable cache for the active dataset: one pass over
// the games spills (position, continuation) records into hash-routed shard
// files, each shard is aggregated on its own, and the resulting tree is
// persisted breadth-first from the start position. Positions already cached
// are skipped, so an interrupted run resumes where it left off. Returns the
// number of positions persisted.
func (s *Service) Warmup(ctx context.Context, report task.Reporter, opts WarmupOptions) (int, error) {
	if s.store == nil {
		return 0, errors.New("warmup requires a metadata store")
	}
	ds := s.mgr.Active()
	if ds.InMemory() {
		return 0, fmt.Errorf("dataset %q has no file backing", ds.Name)
	}
	if ds.Dirty() {
		return 0, fmt.Errorf("dataset %q has unsaved changes", ds.Name)
	}
	if opts.MinGames <= 0 {
		opts.MinGames = 5
	}
	dir := opts.TempDir
	if dir == "" {
		dir = os.TempDir()
	}

	paths, err := s.spill(ctx, ds, dir)
	defer func() {
		for _, p := range paths {
			os.Remove(p)
		}
	}()
	if err != nil {
		return 0, err
	}

	// Aggregating shard by shard keeps peak memory proportional to the
	// busiest shard, not the whole position set.
	stats := make(map[uint64][]Row)
	for _, p := range paths {
		if err := loadShard(p, s.moveLimit, stats); err != nil {
			return 0, err
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
	}
	s.log.Info().Int("positions", len(stats)).Str("dataset", ds.Name).Msg("warmup aggregation done")

	return s.persistTree(ctx, report, ds.Path, stats, opts.MinGames)
}

// spill streams the dataset once and routes every occurrence to its shard by
// position hash.
func (s *Service) spill(ctx context.Context, ds *db.Dataset, dir string) ([]string, error) {
	writers := make([]*shardWriter, 0, warmupShards)
	discardAll := func() {
		for _, w := range writers {
			w.discard()
		}
	}
	for i := 0; i < warmupShards; i++ {
		w, err := newShardWriter(dir)
		if err != nil {
			discardAll()
			return nil, err
		}
		writers = append(writers, w)
	}

	err := ds.Query().ForEach(func(g *db.Game) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		tokens := g.Tokens()
		n := len(tokens)
		if len(g.Fens)-1 < n {
			n = len(g.Fens) - 1
		}
		for i := 0; i < n; i++ {
			if tokens[i] == "" {
				continue
			}
			rec := spillRec{
				Hash: g.Fens[i],
				UCI:  tokens[i],
				Res:  g.Result,
				WElo: g.WhiteElo,
				BElo: g.BlackElo,
			}
			if err := writers[rec.Hash%warmupShards].enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		discardAll()
		return nil, err
	}

	paths := make([]string, 0, warmupShards)
	for _, w := range writers {
		if cerr := w.close(); cerr != nil && err == nil {
			err = cerr
		}
		paths = append(paths, w.path)
	}
	return paths, err
}

// loadShard aggregates one shard file into the shared stats map.
func loadShard(path string, limit int, stats map[uint64][]Row) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	aggs := make(map[uint64]map[string]*agg)
	dec := gob.NewDecoder(zr)
	for {
		var rec spillRec
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		m := aggs[rec.Hash]
		if m == nil {
			m = make(map[string]*agg)
			aggs[rec.Hash] = m
		}
		a := m[rec.UCI]
		if a == nil {
			a = &agg{}
			m[rec.UCI] = a
		}
		a.add(&db.Game{Result: rec.Res, WhiteElo: rec.WElo, BlackElo: rec.BElo})
	}

	for hash, m := range aggs {
		stats[hash] = rowsFromAggs(m, limit)
	}
	return nil
}

// persistTree walks the aggregated opening tree breadth-first and stores
// every position that enough games reach. Cancellation lands between
// positions; everything persisted so far stays.
func (s *Service) persistTree(ctx context.Context, report task.Reporter, path string, stats map[uint64][]Row, minGames int) (int, error) {
	type node struct {
		hash uint64
		pos  *pgn.GameState
	}
	start := node{hash: chesskit.StartingHash(), pos: pgn.NewStartingPosition()}
	queue := []node{start}
	visited := map[uint64]bool{start.hash: true}
	persisted, processed := 0, 0

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return persisted, ctx.Err()
		default:
		}
		n := queue[0]
		queue = queue[1:]
		processed++
		if report != nil {
			report(processed, 0)
		}

		rows := stats[n.hash]
		total := 0
		for _, r := range rows {
			total += r.Count
		}
		if total < minGames {
			continue
		}

		exists, err := s.store.HasOpeningCache(ctx, path, n.hash)
		if err != nil {
			return persisted, err
		}
		if !exists {
			payload, err := json.Marshal(rows)
			if err != nil {
				return persisted, err
			}
			if err := s.store.SaveOpeningCache(ctx, path, n.hash, meta.CacheEntry{Stats: payload}); err != nil {
				return persisted, err
			}
			persisted++
		}

		for _, row := range rows {
			child := chesskit.Clone(n.pos)
			if child == nil {
				continue
			}
			if err := chesskit.ApplyUCI(child, row.UCI); err != nil {
				continue
			}
			h := chesskit.Hash(child)
			if visited[h] {
				continue
			}
			visited[h] = true
			queue = append(queue, node{hash: h, pos: child})
		}
	}
	return persisted, nil
}
