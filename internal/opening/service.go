package opening

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fachess/fachess/internal/chesskit"
	"github.com/fachess/fachess/internal/db"
	"github.com/fachess/fachess/internal/event"
	"github.com/fachess/fachess/internal/meta"
)

// Positions reached by this many games or fewer are dead ends: their
// children are not worth a scan and come back empty immediately.
const lowVolumeCutoff = 10

// Service answers "what was played here and how did it go" for the current
// position against the active view. Lookups go volatile cache, then durable
// cache, then a full scan; the service never surfaces an error to callers,
// it logs and returns an empty result instead.
type Service struct {
	log       zerolog.Logger
	mgr       *db.Manager
	store     *meta.Store // nil when running without a metadata database
	cache     *Cache
	moveLimit int
}

func NewService(log zerolog.Logger, mgr *db.Manager, store *meta.Store, cacheEntries, moveLimit int) *Service {
	if moveLimit <= 0 {
		moveLimit = 20
	}
	return &Service{
		log:       log,
		mgr:       mgr,
		store:     store,
		cache:     NewCache(cacheEntries),
		moveLimit: moveLimit,
	}
}

// Bind drops the volatile tier whenever the view or dataset changes, and
// the durable tier when a dataset file is rewritten on disk.
func (s *Service) Bind(bus *event.Bus) {
	bus.Subscribe(func(ev event.Event) {
		switch e := ev.(type) {
		case event.FilterChanged, event.DatasetChanged:
			s.cache.Clear()
		case event.DatasetSaved:
			s.cache.Clear()
			if s.store == nil {
				return
			}
			n, err := s.store.InvalidateOpeningCache(context.Background(), e.Path)
			if err != nil {
				s.log.Warn().Err(err).Str("path", e.Path).Msg("opening cache: invalidation failed")
				return
			}
			if n > 0 {
				s.log.Info().Int64("entries", n).Str("path", e.Path).Msg("opening cache invalidated")
			}
		}
	})
}

// Cache exposes the volatile tier, mainly for tests.
func (s *Service) Cache() *Cache { return s.cache }

// persistable reports whether durable caching applies: the view must cover
// the whole dataset and the file on disk must match what was scanned.
func (s *Service) persistable(view *db.View, ds *db.Dataset) bool {
	return s.store != nil && view.Whole() && !ds.InMemory() && !ds.Dirty()
}

// Stats returns the continuation rows for the position reached by line, a
// sequence of UCI moves from the start position. Illegal suffixes of the
// line are ignored, matching how the hasher treats malformed rows.
func (s *Service) Stats(ctx context.Context, line []string) Result {
	view, err := s.mgr.ActiveView()
	if err != nil {
		s.log.Error().Err(err).Msg("opening stats: no view")
		return Result{}
	}
	ds := s.mgr.Active()

	hashes, kept := chesskit.HashLine(line)
	hash := hashes[len(hashes)-1]
	key := Key{FilterID: view.FilterID, Hash: hash}

	if res, ok := s.cache.Get(key); ok {
		return res
	}

	// A parent nobody plays past makes every child a dead end.
	if len(hashes) >= 2 {
		parentKey := Key{FilterID: view.FilterID, Hash: hashes[len(hashes)-2]}
		if parent, ok := s.cache.Get(parentKey); ok && !parent.Synthesized && parent.Total() <= lowVolumeCutoff {
			res := Result{}
			s.cache.Put(key, res)
			return res
		}
	}

	if s.persistable(view, ds) {
		entry, err := s.store.GetOpeningCache(ctx, ds.Path, hash)
		if err == nil {
			var rows []Row
			if err := json.Unmarshal(entry.Stats, &rows); err != nil {
				s.log.Warn().Err(err).Uint64("hash", hash).Msg("opening cache: bad payload")
			} else {
				res := Result{Rows: rows, Eval: entry.EngineEval}
				s.cache.Put(key, res)
				return res
			}
		} else if err != meta.ErrCacheMiss {
			s.log.Warn().Err(err).Uint64("hash", hash).Msg("opening cache: read failed")
		}
	}

	rows, err := Aggregate(ctx, view.Query, hash, s.moveLimit)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error().Err(err).Uint64("hash", hash).Msg("opening stats: scan failed")
		}
		return Result{}
	}

	if len(rows) == 0 {
		res := s.synthesize(kept)
		s.cache.Put(key, res)
		return res
	}

	res := Result{Rows: rows}
	s.cache.Put(key, res)

	if s.persistable(view, ds) {
		payload, err := json.Marshal(rows)
		if err == nil {
			err = s.store.SaveOpeningCache(ctx, ds.Path, hash, meta.CacheEntry{Stats: payload})
		}
		if err != nil {
			s.log.Warn().Err(err).Uint64("hash", hash).Msg("opening cache: write failed")
		}
	}
	return res
}

// synthesize builds zero-count rows from the legal moves so the explorer
// always has something to render in an empty corner of the tree.
func (s *Service) synthesize(line []string) Result {
	pos, err := chesskit.ReplayLine(strings.Join(line, " "))
	if err != nil {
		return Result{Synthesized: true}
	}
	moves := chesskit.LegalUCIMoves(pos)
	rows := make([]Row, 0, len(moves))
	for _, uci := range moves {
		rows = append(rows, Row{UCI: uci})
	}
	return Result{Rows: rows, Synthesized: true}
}

// AttachEval records an engine evaluation for the position reached by line,
// in both tiers when they hold the position.
func (s *Service) AttachEval(ctx context.Context, line []string, eval string) {
	view, err := s.mgr.ActiveView()
	if err != nil {
		return
	}
	ds := s.mgr.Active()
	hashes, _ := chesskit.HashLine(line)
	hash := hashes[len(hashes)-1]

	s.cache.SetEval(Key{FilterID: view.FilterID, Hash: hash}, eval)
	if s.persistable(view, ds) {
		if err := s.store.SetOpeningEval(ctx, ds.Path, hash, eval); err != nil {
			s.log.Warn().Err(err).Uint64("hash", hash).Msg("opening cache: eval write failed")
		}
	}
}
