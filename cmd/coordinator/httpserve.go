package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vimsent/lasertag/internal/refereehttp"
)

// netHTTPListenAndServeUntilCancelled runs the referee HTTP server
// until ctx is cancelled, then shuts it down gracefully.
func netHTTPListenAndServeUntilCancelled(ctx context.Context, addr string, refSrv *refereehttp.Server) error {
	srv := &http.Server{Addr: addr, Handler: refSrv.Router()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
