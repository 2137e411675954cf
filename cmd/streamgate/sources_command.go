package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/famomatic/streamgate/internal/catalog"
)

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sources <content-type> <id>",
		Short: "List the catalog sources for a content item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Catalog.Path == "" {
				return errors.New("config: catalog.path must be set")
			}
			cat, err := catalog.LoadFile(cfg.Catalog.Path)
			if err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}

			contentType, err := catalog.ParseContentType(args[0])
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("parse content id %q: %w", args[1], err)
			}
			ref := catalog.ContentRef{Type: contentType, ID: id}

			sources, err := cat.Sources(cmd.Context(), ref)
			if err != nil {
				return fmt.Errorf("sources for %s: %w", ref, err)
			}
			sort.SliceStable(sources, func(i, j int) bool {
				return sources[i].Priority < sources[j].Priority
			})

			rows := make([][]string, 0, len(sources))
			for i, src := range sources {
				rows = append(rows, []string{
					strconv.Itoa(i),
					strconv.Itoa(src.Priority),
					string(src.Format),
					src.Label,
					src.URL,
				})
			}
			out := renderTable(
				[]string{"Index", "Priority", "Format", "Label", "URL"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
