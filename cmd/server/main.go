package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imgclass/internal/bootstrap"
	"imgclass/internal/config"
	"imgclass/internal/logging"
	httptransport "imgclass/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config failed", "err", err)
		os.Exit(1)
	}
	logger := logging.Setup(os.Stdout, cfg.Log.Level)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

// run serves until a shutdown signal arrives or the listener fails. Resources
// are released before it returns, so main may exit straight after.
func run(cfg *config.Config, logger *slog.Logger) error {
	app, err := bootstrap.New(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			logger.Error("close resources failed", "err", closeErr)
		}
	}()

	router := httptransport.NewRouter(app)
	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return waitForShutdown(server, serveErr, quit, logger)
}

// waitForShutdown blocks until a signal or a listener failure. A failed
// listener is returned as an error; a signal triggers a graceful shutdown.
func waitForShutdown(server *http.Server, serveErr <-chan error, quit <-chan os.Signal, logger *slog.Logger) error {
	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err, ok := <-serveErr:
		if ok && err != nil {
			return fmt.Errorf("listen on %s: %w", server.Addr, err)
		}
		return errors.New("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
