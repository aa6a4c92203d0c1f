package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fachess/fachess/internal/config"
	"github.com/fachess/fachess/internal/db"
	"github.com/fachess/fachess/internal/event"
	"github.com/fachess/fachess/internal/logx"
	"github.com/fachess/fachess/internal/meta"
	"github.com/fachess/fachess/internal/opening"
)

func newWarmupCmd() *cobra.Command {
	var minGames int
	cmd := &cobra.Command{
		Use:   "warmup DATASET",
		Short: "pre-build the durable opening cache for a dataset file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logx.New(logLevel)
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			paths, err := config.ResolvePaths()
			if err != nil {
				return err
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if minGames <= 0 {
				minGames = cfg.WarmupMin
			}

			store, err := meta.Open(paths.MetaDB, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			mgr := db.NewManager(logger, event.NewBus(), cfg.SampleLimit)
			name, err := mgr.Load(args[0])
			if err != nil {
				return err
			}
			if err := mgr.SetActive(name); err != nil {
				return err
			}

			svc := opening.NewService(logger, mgr, store, cfg.CacheEntries, cfg.StatsMoves)
			report := func(current, total int) {
				if current%1000 == 0 {
					logger.Info().Int("positions", current).Msg("warming")
				}
			}
			persisted, err := svc.Warmup(ctx, report, opening.WarmupOptions{MinGames: minGames})
			if err != nil {
				return err
			}
			logger.Info().Int("persisted", persisted).Str("dataset", name).Msg("warmup done")
			return nil
		},
	}
	cmd.Flags().IntVar(&minGames, "min", 0, "minimum games for a position to be cached (default from config)")
	return cmd
}
