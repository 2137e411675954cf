package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/famomatic/streamgate/internal/catalog"
	"github.com/famomatic/streamgate/internal/token"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "token <content-type> <id>",
		Short: "Mint a capability token for debugging",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			contentType, err := catalog.ParseContentType(args[0])
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("parse content id %q: %w", args[1], err)
			}

			codec, err := token.NewCodec(token.Config{
				Secret:   []byte(cfg.Token.Secret),
				Lifetime: cfg.TokenLifetime(),
			})
			if err != nil {
				return fmt.Errorf("init token codec: %w", err)
			}

			tok, err := codec.Issue(catalog.ContentRef{Type: contentType, ID: id}, userID)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "debug", "User ID to embed in the token")
	return cmd
}
