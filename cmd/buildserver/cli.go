package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/nixpig/buildworker/internal/buildconfig"
	"github.com/nixpig/buildworker/internal/httpapi"
	"github.com/nixpig/buildworker/internal/jobmanager"
	"github.com/nixpig/buildworker/internal/logging"
	"github.com/spf13/cobra"
)

const httpShutdownTimeout = 5 * time.Second

func rootCmd() *cobra.Command {
	cfg := &serverConfig{}

	c := &cobra.Command{
		Use:          "buildserver",
		Short:        "gRPC server for running game builds on a remote host",
		Example:      "  buildserver --presets buildworker.yaml --debug",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			return runServer(cmd.Context(), cfg)
		},
	}

	c.Flags().StringVar(&cfg.host, "host", "localhost", "gRPC server host to bind")
	c.Flags().Uint16Var(&cfg.port, "port", 8443, "gRPC server port")
	c.Flags().Uint16Var(&cfg.httpPort, "http-port", 8080, "HTTP status port, 0 disables")

	c.Flags().StringVar(
		&cfg.presetsPath,
		"presets",
		"buildworker.yaml",
		"Path to build preset file",
	)

	c.Flags().
		StringVar(&cfg.serverCertPath, "server-cert", "certs/server.crt", "Path to server certificate")

	c.Flags().
		StringVar(&cfg.serverKeyPath, "server-key", "certs/server.key", "Path to server private key")

	c.Flags().
		StringVar(&cfg.caCertPath, "ca-cert", "certs/ca.crt", "Path to CA certificate")

	cfg.log.AddFlags(c.Flags())

	return c
}

func runServer(ctx context.Context, cfg *serverConfig) error {
	logger, err := logging.New(os.Stderr, cfg.log)
	if err != nil {
		return err
	}

	presets, err := buildconfig.Load(cfg.presetsPath)
	if err != nil {
		return err
	}

	controller := jobmanager.NewController(logger, nil)
	history := newHistory(defaultHistoryLimit)

	s := newServer(controller, presets, history, logger, cfg)

	listener, err := net.Listen(
		"tcp",
		net.JoinHostPort(cfg.host, strconv.Itoa(int(cfg.port))),
	)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("gRPC server starting", "addr", listener.Addr().String())
		errCh <- s.start(listener)
	}()

	var httpServer *http.Server

	if cfg.httpPort != 0 {
		httpServer = &http.Server{
			Addr:    net.JoinHostPort(cfg.host, strconv.Itoa(int(cfg.httpPort))),
			Handler: httpapi.NewRouter(history, logger),
		}

		go func() {
			logger.Info("HTTP status server starting", "addr", httpServer.Addr)

			if err := httpServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed", "err", err)
	}

	// Stopping the jobs first ends their output streams, which lets the
	// graceful stop complete.
	controller.Shutdown()
	s.shutdown()

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			httpShutdownTimeout,
		)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown", "err", err)
		}
	}

	return err
}
