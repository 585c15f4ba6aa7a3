// Package server wires the services onto one chi router and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"lendinglibrary/internal/catalog"
	"lendinglibrary/internal/circulation"
	"lendinglibrary/internal/httpx"
	"lendinglibrary/internal/membership"
	"lendinglibrary/internal/store"
)

// Options tunes the router.
type Options struct {
	Logger *slog.Logger
	// Limiter throttles write requests; nil disables throttling.
	Limiter *rate.Limiter
	// Circulation is passed through to the loan engine.
	Circulation []circulation.Option
}

// NewRouter builds the full HTTP surface on top of st.
func NewRouter(st store.Store, opts Options) (http.Handler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	catalogSvc := catalog.NewService(st, catalog.WithLogger(logger))
	membershipSvc := membership.NewService(st, membership.WithLogger(logger))
	circulationSvc, err := circulation.NewService(st, append([]circulation.Option{circulation.WithLogger(logger)}, opts.Circulation...)...)
	if err != nil {
		return nil, fmt.Errorf("create circulation service: %w", err)
	}

	catalogHandler := catalog.NewHandler(catalogSvc, logger)
	membershipHandler := membership.NewHandler(membershipSvc, logger)
	circulationHandler := circulation.NewHandler(circulationSvc, logger)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(httpx.RequestID)
	r.Use(httpx.AccessLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(httpx.RateLimitWrites(opts.Limiter))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			logger.ErrorContext(r.Context(), "health check failed", "error", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	catalogHandler.Register(r)
	membershipHandler.Register(r, circulationHandler.MemberRoutes)
	circulationHandler.Register(r)

	return r, nil
}

// Run serves handler on addr until ctx is done, then shuts down gracefully
// within shutdownTimeout.
func Run(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("library server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", shutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
