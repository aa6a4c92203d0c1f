package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fachess/fachess/internal/ingest"
	"github.com/fachess/fachess/internal/logx"
)

func newConvertCmd() *cobra.Command {
	var (
		maxGames int
		workers  int
		puzzles  bool
	)
	cmd := &cobra.Command{
		Use:   "convert INPUT OUTPUT",
		Short: "convert a PGN archive (.pgn or .pgn.zst) or puzzle CSV to a dataset file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logx.New(logLevel)
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			opts := ingest.Options{
				MaxGames: maxGames,
				Workers:  workers,
				Logger:   logger,
				Progress: func(games int64, perSec float64) {
					logger.Info().Int64("games", games).Float64("games_per_sec", perSec).Msg("converting")
				},
			}

			var res ingest.Result
			var err error
			if puzzles {
				res, err = ingest.ConvertPuzzles(ctx, args[0], args[1], opts)
			} else {
				res, err = ingest.Convert(ctx, args[0], args[1], opts)
			}
			if err != nil {
				return err
			}
			logger.Info().
				Int64("games", res.Games).
				Int64("skipped", res.Skipped).
				Dur("elapsed", res.Elapsed).
				Str("output", args[1]).
				Msg("conversion done")
			return nil
		},
	}
	cmd.Flags().IntVar(&maxGames, "max", 0, "stop after N games (0 = unlimited)")
	cmd.Flags().IntVar(&workers, "workers", 4, "row-building goroutines")
	cmd.Flags().BoolVar(&puzzles, "puzzles", false, "input is a lichess-style puzzle CSV")
	return cmd
}
