package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kurobon/vaultsync/internal/config"
)

const shutdownTimeout = 10 * time.Second

func buildServeCommand() *cobra.Command {
	//nolint:exhaustruct // Minimal Command initialization with required fields only
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control surface",
		Long: `Serve the vault commands over HTTP, push file and command events to
websocket clients on /api/events, expose Prometheus metrics on /metrics and,
when sync.schedule is set, sync every open vault on that schedule.`,
		Args: cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			if addr, _ := command.Flags().GetString("addr"); addr != "" {
				config.Global.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.Global)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	app, err := injectApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Sessions.Close(); err != nil {
			logger.WithError(err).Warn("failed to close sessions")
		}
	}()

	for _, vault := range cfg.Vaults {
		if _, err := app.Server.OpenVault(vault); err != nil {
			logger.WithError(err).WithField("vault", vault).Warn("failed to open vault")
		}
	}

	if err := app.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer app.Scheduler.Stop()
	app.Server.Start(ctx)

	//nolint:exhaustruct // Minimal Server initialization with required fields only
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.Server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Server.Addr).Info("server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
