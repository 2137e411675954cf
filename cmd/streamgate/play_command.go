package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/famomatic/streamgate/client"
	"github.com/famomatic/streamgate/internal/catalog"
)

func newPlayCommand(ctx *commandContext) *cobra.Command {
	var serverURL string
	var userID string
	var tier string

	cmd := &cobra.Command{
		Use:   "play <content-type> <id>",
		Short: "Play a content item through a relay server with mpv",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			contentType, err := catalog.ParseContentType(args[0])
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("parse content id %q: %w", args[1], err)
			}
			ref := catalog.ContentRef{Type: contentType, ID: id}

			server := serverURL
			if server == "" {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				server = cfg.Server.PublicBaseURL
				if server == "" {
					server = "http://" + cfg.Server.Bind
				}
			}

			player := newMPVPlayer()
			ctrl, err := client.New(client.Config{
				ServerURL: server,
				UserID:    userID,
				Player:    player,
				Logger:    playLogger{},
			})
			if err != nil {
				return err
			}
			defer ctrl.Close()

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := ctrl.Start(signalCtx, ref); err != nil {
				return fmt.Errorf("start playback: %w", err)
			}
			if tier != "auto" {
				if err := ctrl.SetTier(client.QualityTier(tier)); err != nil {
					return fmt.Errorf("set tier: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "playing %s via %s (session %s)\n", ref, server, ctrl.SessionID())

			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-signalCtx.Done():
					return nil
				case <-ticker.C:
					if ctrl.State() == client.StateFailed {
						if err := ctrl.Err(); err != nil {
							return err
						}
						return errors.New("playback failed")
					}
				}
			}
		},
	}

	cmd.Flags().StringVarP(&serverURL, "server", "s", "", "Relay server base URL (default: from config)")
	cmd.Flags().StringVarP(&userID, "user", "u", "viewer", "User ID for the token request")
	cmd.Flags().StringVarP(&tier, "tier", "t", "auto", "Quality tier: auto, low, medium or high")
	return cmd
}

// playLogger prints controller diagnostics to the terminal.
type playLogger struct{}

func (playLogger) Infof(format string, args ...any) {
	fmt.Println(color.CyanString(format, args...))
}

func (playLogger) Warnf(format string, args ...any) {
	fmt.Println(color.YellowString(format, args...))
}
