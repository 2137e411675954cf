package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/famomatic/streamgate/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <user-id>",
		Short: "Show recent playback starts for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.History.Enabled {
				return errors.New("config: history is disabled")
			}

			store, err := history.Open(cfg.History.DBPath)
			if err != nil {
				return fmt.Errorf("open history store: %w", err)
			}
			defer store.Close()

			events, err := store.RecentForUser(cmd.Context(), args[0], limit)
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}

			rows := make([][]string, 0, len(events))
			for _, ev := range events {
				rows = append(rows, []string{
					ev.StartedAt.Local().Format(time.DateTime),
					string(ev.ContentType),
					strconv.FormatInt(ev.ContentID, 10),
				})
			}
			out := renderTable(
				[]string{"Started", "Type", "ID"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of events to show")
	return cmd
}
