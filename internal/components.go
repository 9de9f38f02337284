package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/zettelkasten/internal/index"
	"github.com/starford/zettelkasten/internal/noteservice"
	"github.com/starford/zettelkasten/internal/storage"
	"github.com/starford/zettelkasten/internal/tagindex"
)

// components are the long-lived pieces shared by every entry point.
type components struct {
	store *storage.FS
	tags  *tagindex.Index
	db    *index.DB // nil when the catalog is disabled
	svc   *noteservice.Service
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}

// open builds the store, tag index, catalog and service. publish, if non-nil,
// receives every change after the catalog has caught up with it.
func (a *application) open(ctx context.Context, logger *slog.Logger, publish func(kind, id string)) (*components, error) {
	cfg := a.config

	if err := os.MkdirAll(cfg.Store.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	c := &components{
		store: store,
		tags:  tagindex.New(store, tagindex.WithTTL(cfg.Store.TagCacheTTL), tagindex.WithLogger(logger)),
	}

	if cfg.SQLite.Enabled() {
		c.db, err = index.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("init index: %w", err)
		}
		if err := index.Sync(ctx, c.db, store, logger); err != nil {
			logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
	}

	n := &changeFanout{store: store, publish: publish, logger: logger}
	if c.db != nil {
		n.db = c.db
	}
	c.svc = noteservice.NewService(store, c.tags,
		noteservice.WithNotifier(n),
		noteservice.WithLogger(logger),
		noteservice.WithPerPage(cfg.Store.PerPage),
		noteservice.WithRelatedLimit(cfg.Store.RelatedLimit),
	)
	return c, nil
}

func (c *components) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// changeFanout brings the catalog row of a changed record up to date and then
// forwards the change. Refreshing first means the watcher finds the row
// current and stays silent about writes made through the service.
type changeFanout struct {
	db      index.Catalog
	store   storage.Store
	publish func(kind, id string)
	logger  *slog.Logger
}

func (f *changeFanout) PublishZettelEvent(kind, id string) {
	if f.db != nil {
		if _, err := index.Refresh(context.Background(), f.db, f.store, id); err != nil {
			f.logger.Warn("catalog refresh failed", slog.String("id", id), slog.String("error", err.Error()))
		}
	}
	if f.publish != nil {
		f.publish(kind, id)
	}
}
