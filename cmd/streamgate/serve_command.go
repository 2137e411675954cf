package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/famomatic/streamgate/internal/catalog"
	"github.com/famomatic/streamgate/internal/history"
	"github.com/famomatic/streamgate/internal/logging"
	"github.com/famomatic/streamgate/internal/relay"
	"github.com/famomatic/streamgate/internal/resolver"
	"github.com/famomatic/streamgate/internal/token"
)

const shutdownGrace = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(cmdCtx context.Context, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	// One serve process per config file.
	lock := flock.New(lockPath(ctx.configPath()))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return errors.New("another streamgate serve instance is already running")
	}
	defer lock.Unlock()

	if cfg.Catalog.Path == "" {
		return errors.New("config: catalog.path must be set for serve")
	}
	cat, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	codec, err := token.NewCodec(token.Config{
		Secret:   []byte(cfg.Token.Secret),
		Lifetime: cfg.TokenLifetime(),
	})
	if err != nil {
		return fmt.Errorf("init token codec: %w", err)
	}

	res, err := resolver.New(resolver.Config{
		Catalog: cat,
		TTL:     cfg.CacheTTL(),
	})
	if err != nil {
		return fmt.Errorf("init resolver: %w", err)
	}

	var recorder history.Recorder = history.Nop{}
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.DBPath)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer store.Close()
		recorder = store
	}

	server, err := relay.New(relay.Config{
		Codec:     codec,
		Resolver:  res,
		Catalog:   cat,
		History:   recorder,
		Logger:    logger,
		ProbeSize: cfg.Server.ProbeSizeKiB * 1024,
	})
	if err != nil {
		return fmt.Errorf("create relay server: %w", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.Bind,
		Handler: server,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay server listening", "bind", cfg.Server.Bind)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-signalCtx.Done():
	}

	logger.Info("relay server shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func lockPath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "streamgate.lock")
}
