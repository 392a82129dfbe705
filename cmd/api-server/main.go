package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/upb/workspace-authz/app"
	"github.com/upb/workspace-authz/config"
	"github.com/upb/workspace-authz/internal/observability"
	"github.com/upb/workspace-authz/routes"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "api-server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", zap.Error(err))
		return err
	}

	listener, err := net.Listen("tcp", cfg.Server.Address())
	if err != nil {
		_ = deps.Close(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Address(), err)
	}

	srv := newServer(cfg, routes.SetupRoutes(deps))
	return serve(ctx, srv, listener, cfg.Server.ShutdownTimeout, deps.Close, logger)
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return observability.NewLogger(observability.LoggerConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		Development: cfg.IsDevelopment(),
	})
}

func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

// serve runs srv until ctx is cancelled, then drains in-flight requests and
// calls closeDeps within shutdownTimeout
func serve(
	ctx context.Context,
	srv *http.Server,
	listener net.Listener,
	shutdownTimeout time.Duration,
	closeDeps func(context.Context) error,
	logger *zap.Logger,
) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", zap.String("addr", listener.Addr().String()))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
		logger.Error("api server stopped unexpectedly", zap.Error(serveErr))
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		serveErr = errors.Join(serveErr, err)
	}
	if err := closeDeps(shutdownCtx); err != nil {
		logger.Error("failed to close dependencies", zap.Error(err))
		serveErr = errors.Join(serveErr, err)
	}

	logger.Info("api server stopped")
	return serveErr
}
