package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fachess/fachess/internal/db"
)

// Puzzle is the row schema of a tactical-puzzle dataset.
type Puzzle struct {
	ID       int64  `parquet:"id"`
	SourceID string `parquet:"source_id"` // id in the upstream collection
	FEN      string `parquet:"fen"`
	Moves    string `parquet:"moves"` // UCI solution line, first move is the opponent's
	Rating   int64  `parquet:"rating"`
	Themes   string `parquet:"themes"`
}

// ConvertPuzzles converts a lichess-style puzzle CSV
// (PuzzleId,FEN,Moves,Rating,...,Themes,...) into a puzzle dataset.
func ConvertPuzzles(ctx context.Context, inPath, outPath string, opts Options) (Result, error) {
	f, err := os.Open(inPath)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	writer, err := db.NewWriter[Puzzle](outPath)
	if err != nil {
		return Result{}, err
	}

	startTime := time.Now()
	var written, skipped int64

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	first := true
	for {
		select {
		case <-ctx.Done():
			writer.Abort()
			return Result{Games: written, Skipped: skipped}, ctx.Err()
		default:
		}

		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		if first {
			first = false
			if strings.EqualFold(record[0], "PuzzleId") {
				continue
			}
		}
		if len(record) < 4 {
			skipped++
			continue
		}
		if opts.MaxGames > 0 && written >= int64(opts.MaxGames) {
			break
		}

		written++
		p := Puzzle{
			ID:       written,
			SourceID: record[0],
			FEN:      record[1],
			Moves:    record[2],
			Rating:   parseRating(record[3]),
		}
		if len(record) > 7 {
			p.Themes = record[7]
		}
		if err := writer.Write(p); err != nil {
			writer.Abort()
			return Result{Games: written, Skipped: skipped}, err
		}
	}

	if err := writer.Close(); err != nil {
		return Result{}, err
	}
	res := Result{Games: written, Skipped: skipped, Elapsed: time.Since(startTime)}
	opts.Logger.Info().Int64("puzzles", res.Games).Int64("skipped", res.Skipped).
		Dur("elapsed", res.Elapsed).Msg("puzzle convert complete")
	return res, nil
}
