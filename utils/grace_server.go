package utils

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

const (
	defaultReadTimeout     = 60 * time.Second
	defaultWriteTimeout    = 90 * time.Second // intake requests may wait on the AI call
	defaultShutdownTimeout = 30 * time.Second
)

// GraceServer serves handler on addr until SIGINT or SIGTERM, then drains
// in-flight requests for up to 30 seconds. Extra cleanup funcs run after the drain.
func GraceServer(addr string, handler http.Handler, onShutdown ...func()) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       defaultReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      defaultWriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	Sugar.Info("shutdown signal received, draining HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	for _, fn := range onShutdown {
		fn()
	}
	if err != nil {
		Sugar.Errorf("HTTP server shutdown error: %v", err)
		return err
	}
	Sugar.Info("HTTP server shutdown complete")
	_ = Logger.Sync()
	return nil
}
