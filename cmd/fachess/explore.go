package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fachess/fachess/internal/config"
	"github.com/fachess/fachess/internal/db"
	"github.com/fachess/fachess/internal/eco"
	"github.com/fachess/fachess/internal/event"
	"github.com/fachess/fachess/internal/logx"
	"github.com/fachess/fachess/internal/meta"
	"github.com/fachess/fachess/internal/opening"
)

func newExploreCmd() *cobra.Command {
	var (
		line    string
		ecoPath string
		white   string
		minElo  int64
	)
	cmd := &cobra.Command{
		Use:   "explore DATASET",
		Short: "print continuation statistics for a position in a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logx.New(logLevel)
			ctx := context.Background()

			paths, err := config.ResolvePaths()
			if err != nil {
				return err
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			store, err := meta.Open(paths.MetaDB, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			bus := event.NewBus()
			mgr := db.NewManager(logger, bus, cfg.SampleLimit)
			name, err := mgr.Load(args[0])
			if err != nil {
				return err
			}
			if err := mgr.SetActive(name); err != nil {
				return err
			}

			criteria := db.Criteria{White: white, MinElo: minElo}
			if !criteria.Empty() {
				view, err := mgr.Filter(criteria)
				if err != nil {
					return err
				}
				logger.Info().Int("games", view.Count).Msg("filter applied")
			}

			svc := opening.NewService(logger, mgr, store, cfg.CacheEntries, cfg.StatsMoves)
			svc.Bind(bus)

			moves := strings.Fields(line)
			res := svc.Stats(ctx, moves)

			if ecoPath != "" {
				ecoDB := eco.NewDatabase()
				if err := ecoDB.LoadFile(ecoPath); err != nil {
					return err
				}
				o, ply := ecoDB.Classify(moves)
				if o.Code != "" {
					fmt.Printf("%s %s (ply %d)\n\n", o.Code, o.Name, ply)
				} else {
					fmt.Printf("%s\n\n", o.Name)
				}
			}

			if res.Synthesized {
				fmt.Println("no games reach this position; legal moves:")
			}
			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "move\tgames\twhite\tdraw\tblack\tavg w\tavg b")
			for _, row := range res.Rows {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
					row.UCI, row.Count, row.White, row.Draw, row.Black,
					row.AvgWhiteElo, row.AvgBlackElo)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&line, "line", "", "UCI moves from the start position, space separated")
	cmd.Flags().StringVar(&ecoPath, "eco", "", "classification file for opening names")
	cmd.Flags().StringVar(&white, "white", "", "filter: white player substring")
	cmd.Flags().Int64Var(&minElo, "min-elo", 0, "filter: minimum rating of either side")
	return cmd
}
