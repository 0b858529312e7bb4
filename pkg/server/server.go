package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupbuy-be/pkg/logger"
)

// Run starts the HTTP server and blocks until an interrupt signal or a
// server error, then drains in-flight requests and calls cleanup.
func Run(srv *http.Server, log *logger.Logger, cleanup func(ctx context.Context)) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErr:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Failed to shutdown HTTP server")
	} else {
		log.Info("HTTP server shutdown complete")
	}

	if cleanup != nil {
		cleanup(ctx)
	}
	return nil
}
