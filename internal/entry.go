// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/zettelkasten/internal/api"
	"github.com/starford/zettelkasten/internal/index"
	"github.com/starford/zettelkasten/internal/mcpserver"
	"github.com/starford/zettelkasten/internal/noteservice"
	"github.com/starford/zettelkasten/internal/sse"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.newLogger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := app.open(ctx, logger, broker.PublishZettelEvent)
	if err != nil {
		return err
	}
	defer c.Close()

	var stats api.StatsSource
	if c.db != nil {
		stats = c.db
	}
	apiRouter := api.NewRouter(c.svc, stats, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := os.Stat(c.store.Root()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"store unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Edits made by other processes reach clients through the watcher.
	if c.db != nil {
		g.Go(func() error {
			if err := index.Watch(gCtx, c.db, c.store, c.store.Root(), logger, c.svc.Invalidate); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Open event streams never go idle on their own.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.newLogger()
	slog.SetDefault(logger)

	c, err := app.open(ctx, logger, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	logger.Info("MCP server starting", slog.String("store_path", app.config.Store.Path))
	return mcpserver.New(c.svc, app.version).ServeStdio()
}

// StatusReport summarizes a store for the status command.
type StatusReport struct {
	StorePath string         `json:"store_path"`
	Zettels   int            `json:"zettels"`
	Tags      int            `json:"tags"`
	Sticky    string         `json:"sticky,omitempty"`
	Catalog   *index.Stats   `json:"catalog,omitempty"`
	TagCounts map[string]int `json:"tag_counts"`
}

// Status writes a JSON StatusReport for the configured store to w.
func Status(ctx context.Context, w io.Writer, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(io.Discard)}, opts...))
	if err != nil {
		return err
	}
	c, err := app.open(ctx, app.newLogger(), nil)
	if err != nil {
		return err
	}
	defer c.Close()

	listing, err := c.svc.List(ctx, noteservice.Query{})
	if err != nil {
		return err
	}
	sticky, err := c.svc.Sticky(ctx)
	if err != nil {
		return err
	}
	counts, err := c.svc.TagCounts(ctx)
	if err != nil {
		return err
	}
	rep := StatusReport{
		StorePath: c.store.Root(),
		Zettels:   listing.Total,
		Tags:      len(counts),
		TagCounts: counts,
	}
	if sticky != nil {
		rep.Sticky = sticky.ID
	}
	if c.db != nil {
		st, err := c.db.Stats()
		if err != nil {
			return err
		}
		rep.Catalog = &st
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
