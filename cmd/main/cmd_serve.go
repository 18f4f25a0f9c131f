package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			actionChan := make(chan string, 1)
			for {
				config, err := requireConfig()
				if err != nil {
					return err
				}
				action, err := runServer(ctx, cmd, config, actionChan)
				if err != nil {
					return err
				}
				if action != actionRestart {
					return nil
				}

				loaded, err := LoadConfig(cfgFile, cmd.Flags())
				if err != nil {
					return err
				}
				activeCfg = &loaded
			}
		},
	}
}

// runServer hosts the API until ctx is cancelled or an action arrives on
// actionChan, and returns that action.
func runServer(ctx context.Context, cmd *cobra.Command, config Config, actionChan chan string) (string, error) {
	logger := newLogger(cmd.ErrOrStderr(), config.Server)
	slog.SetDefault(logger)
	logger.Info("Starting server cycle...")

	app, err := newApp(ctx, config, logger)
	if err != nil {
		return "", err
	}
	defer app.Close()

	server, err := NewServer(app, actionChan)
	if err != nil {
		return "", err
	}

	httpServer := &http.Server{
		Addr:              config.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting API server", slog.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var action string
	select {
	case <-ctx.Done():
		logger.Info("OS signal received, initiating shutdown.")
		action = actionShutdown
	case action = <-actionChan:
	case err = <-serveErr:
		return "", err
	}

	logger.Info("Stopping server", slog.String("action", action))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", slog.String("error", err.Error()))
	}
	logger.Info("HTTP server stopped.")
	return action, nil
}
