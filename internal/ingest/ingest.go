// Package ingest converts PGN collections into columnar dataset files,
// hashing every position along each game's main line.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/freeeve/pgn/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fachess/fachess/internal/chesskit"
	"github.com/fachess/fachess/internal/db"
)

// Options configures a conversion run.
type Options struct {
	MaxGames  int // stop after N games (0 = unlimited)
	Workers   int // row-building goroutines (default 4)
	LinePlies int // plies kept in the short line column (default 12)
	Logger    zerolog.Logger
	Progress  func(games int64, perSec float64) // called roughly every 2s
}

// Result summarizes a conversion run.
type Result struct {
	Games   int64
	Skipped int64
	Elapsed time.Duration
}

// Convert streams the PGN file at inPath into a new dataset at outPath.
// Cancellation is checked between games; the partial output file is
// discarded on error or cancellation.
func Convert(ctx context.Context, inPath, outPath string, opts Options) (Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.LinePlies <= 0 {
		opts.LinePlies = db.DefaultLinePlies
	}
	log := opts.Logger

	writer, err := db.NewWriter[db.Game](outPath)
	if err != nil {
		return Result{}, err
	}

	startTime := time.Now()
	var skipped int64
	var nextID atomic.Int64

	parser := pgn.Games(inPath)
	games := make(chan *pgn.Game, opts.Workers)
	rows := make(chan db.Game, opts.Workers)

	g, gctx := errgroup.WithContext(ctx)

	// Feeder: pulls parsed games, honors the game cap and cancellation
	// between games.
	g.Go(func() error {
		defer close(games)
		count := 0
		stopped := false
		for game := range parser.Games {
			select {
			case <-gctx.Done():
				if !stopped {
					parser.Stop()
					stopped = true
				}
				return gctx.Err()
			default:
			}
			if opts.MaxGames > 0 && count >= opts.MaxGames {
				parser.Stop()
				break
			}
			count++
			select {
			case games <- game:
			case <-gctx.Done():
				if !stopped {
					parser.Stop()
				}
				return gctx.Err()
			}
		}
		return parser.Err()
	})

	// Row builders: replay each main line, hashing every position.
	var builders errgroup.Group
	for i := 0; i < opts.Workers; i++ {
		builders.Go(func() error {
			for game := range games {
				row, ok := buildRow(game, nextID.Add(1), opts.LinePlies)
				if !ok {
					atomic.AddInt64(&skipped, 1)
					continue
				}
				select {
				case rows <- row:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		err := builders.Wait()
		close(rows)
		return err
	})

	// Writer: single consumer, periodic progress.
	var written int64
	g.Go(func() error {
		lastLog := time.Now()
		for row := range rows {
			if err := writer.Write(row); err != nil {
				return err
			}
			written++
			if time.Since(lastLog) > 2*time.Second {
				elapsed := time.Since(startTime)
				gps := float64(written) / elapsed.Seconds()
				log.Info().
					Int64("games", written).
					Int64("skipped", atomic.LoadInt64(&skipped)).
					Float64("games_per_sec", gps).
					Msg("convert progress")
				if opts.Progress != nil {
					opts.Progress(written, gps)
				}
				lastLog = time.Now()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		writer.Abort()
		return Result{Games: written, Skipped: skipped, Elapsed: time.Since(startTime)}, err
	}
	if err := writer.Close(); err != nil {
		return Result{}, err
	}

	res := Result{Games: written, Skipped: skipped, Elapsed: time.Since(startTime)}
	log.Info().
		Int64("games", res.Games).
		Int64("skipped", res.Skipped).
		Dur("elapsed", res.Elapsed).
		Float64("games_per_sec", float64(res.Games)/res.Elapsed.Seconds()).
		Msg("convert complete")
	return res, nil
}

// buildRow replays one game's main line. An invalid move ends the recorded
// line at the last legal ply; the game is still emitted. Games with no legal
// plies at all are skipped.
func buildRow(game *pgn.Game, id int64, linePlies int) (db.Game, bool) {
	pos := pgn.NewStartingPosition()
	fens := make([]uint64, 1, len(game.Moves)+1)
	fens[0] = chesskit.StartingHash()
	tokens := make([]string, 0, len(game.Moves))

	for _, mv := range game.Moves {
		uci := chesskit.MoveToUCI(mv)
		if err := pgn.ApplyMove(pos, mv); err != nil {
			break
		}
		tokens = append(tokens, uci)
		fens = append(fens, chesskit.Hash(pos))
	}
	if len(tokens) == 0 {
		return db.Game{}, false
	}

	short := tokens
	if len(short) > linePlies {
		short = short[:linePlies]
	}

	result := game.Tags["Result"]
	switch result {
	case db.ResultWhiteWins, db.ResultBlackWins, db.ResultDraw:
	default:
		result = db.ResultUnknown
	}
	date := game.Tags["Date"]
	if date == "" {
		date = db.UnknownDate
	}

	return db.Game{
		ID:       id,
		White:    game.Tags["White"],
		Black:    game.Tags["Black"],
		WhiteElo: parseRating(game.Tags["WhiteElo"]),
		BlackElo: parseRating(game.Tags["BlackElo"]),
		Result:   result,
		Date:     date,
		Event:    game.Tags["Event"],
		Site:     game.Tags["Site"],
		Line:     strings.Join(short, " "),
		FullLine: strings.Join(tokens, " "),
		Fens:     fens,
	}, true
}

// parseRating tolerates the junk rating tags found in the wild.
func parseRating(s string) int64 {
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	r, err := strconv.ParseInt(s, 10, 64)
	if err != nil || r < 0 {
		return 0
	}
	return r
}

// CountGames pre-counts games in a plain-text PGN by scanning for Event
// headers. Compressed inputs return 0 (unknown); the count is only a
// progress hint.
func CountGames(path string) (int, error) {
	if strings.HasSuffix(path, ".zst") {
		return 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	prefix := []byte("[Event ")
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if bytes.HasPrefix(scanner.Bytes(), prefix) {
			count++
		}
	}
	return count, scanner.Err()
}
