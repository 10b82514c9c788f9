package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vignette/internal/app"
	"vignette/internal/config"
	"vignette/internal/server"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the vignette API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("opening database", "path", cfg.DBPath)
			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := server.New(addr, server.Deps{
				Images:      a.Images,
				Derivatives: a.Derivatives,
				Presets:     a.Presets,
				Store:       a.Store,
				Logger:      logger,
			}, server.Options{
				MaxUploadBytes:  cfg.Uploads.MaxUploadBytes,
				MultipartMemory: cfg.Uploads.MultipartMaxMemory,
				StorageName:     a.Backend.Name(),
				CacheName:       a.CacheName(),
				MissingPolicy:   cfg.Generation.MissingPolicy,
			})
			if err != nil {
				return err
			}

			a.Start(ctx)
			return srv.ListenAndServe(ctx)
		},
	}
}

// commandContext falls back to a background context for commands run
// outside Execute, as tests do.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
