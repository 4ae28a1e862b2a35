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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"roster/internal/documents"
	eventhandler "roster/internal/event/handler"
	"roster/internal/identity"
	jwttoken "roster/internal/jwt_token"
	"roster/internal/platform/config"
	"roster/internal/platform/httpserver"
	"roster/internal/platform/logger"
	"roster/internal/platform/metrics"
	waiverhandler "roster/internal/waiver/handler"
	"roster/pkg/platform/httputil"
	"roster/pkg/platform/middleware/auth"
	"roster/pkg/platform/middleware/request"
	"roster/pkg/platform/middleware/requesttime"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	srv := httpserver.New(cfg.Addr, router(cfg, log, app))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting roster", "addr", cfg.Addr, "store", cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	for _, work := range app.workers {
		g.Go(func() error { return work(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func router(cfg config.Server, log *slog.Logger, app *application) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.Recover(log))
	r.Use(request.Logger(log))
	r.Use(httpserver.Instrument(metrics.New()))
	r.Use(chimiddleware.Timeout(cfg.Registration.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := app.health(r.Context()); err != nil {
			log.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	events := eventhandler.New(app.events, log)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens, log))

		r.Group(func(r chi.Router) {
			if app.limiter != nil {
				r.Use(app.limiter.Mutations)
			}
			events.RegisterPublic(r)
			identity.NewHandler(app.directory, log).Register(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin(log))
			events.RegisterAdmin(r)
			waiverhandler.New(app.catalog, log).Register(r)
			documents.NewHandler(app.documents, log).Register(r)
		})
	})
	return r
}
