package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/connreg/internal/config"
	"github.com/zjrosen/connreg/internal/discovery"
	"github.com/zjrosen/connreg/internal/infrastructure/sqlite"
	"github.com/zjrosen/connreg/internal/log"
	"github.com/zjrosen/connreg/internal/notify"
	"github.com/zjrosen/connreg/internal/registry"
	"github.com/zjrosen/connreg/internal/tracing"
	"github.com/zjrosen/connreg/internal/watcher"
)

// registryApp is everything one command needs to talk to the shared registry.
type registryApp struct {
	db      *sqlite.DB
	channel *notify.FileChannel
	tracing *tracing.Provider
	store   *registry.Store
}

// openRegistry opens the database, joins the change-notice channel and
// starts the process-wide store.
func openRegistry(ctx context.Context, c config.Config) (*registryApp, error) {
	tp, err := tracing.NewProvider(c.Tracing.ToTracing())
	if err != nil {
		return nil, fmt.Errorf("creating tracing provider: %w", err)
	}

	db, err := sqlite.NewDB(c.DBPath)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("opening registry database: %w", err)
	}

	channel := notify.NewFileChannel(db.ChangeLog(), watcher.SQLitePaths(db.Path()),
		notify.WithDebounce(c.Notify.Debounce),
		notify.WithPollInterval(c.Notify.PollInterval),
		notify.WithRetain(c.Notify.Retain),
	)

	app := &registryApp{db: db, channel: channel, tracing: tp}

	s := registry.New(db.TreeRepository(), notify.NewNotifier(channel),
		registry.WithTracer(tp.Tracer()),
		registry.WithFilterCacheTTL(c.Search.CacheTTL),
	)
	store, err := registry.Init(ctx, s)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("starting registry: %w", err)
	}
	app.store = store

	if c.Discovery.Enabled {
		provider := discovery.NewFileProvider(c.Discovery.File, c.Discovery.Debounce)
		if err := store.AttachProvider(ctx, provider); err != nil {
			// The registry is still usable without the discovered category.
			log.ErrorErr(log.CatDiscovery, "Discovery unavailable", err, "file", c.Discovery.File)
		}
	}
	return app, nil
}

// Close stops the store and releases the database.
func (a *registryApp) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, registry.Shutdown())
	}
	errs = append(errs, a.channel.Close(), a.db.Close())
	errs = append(errs, a.tracing.Shutdown(context.Background()))
	return errors.Join(errs...)
}

// withRegistry runs fn against a freshly opened registry.
func withRegistry(ctx context.Context, fn func(store *registry.Store) error) error {
	app, err := openRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	runErr := fn(app.store)
	if closeErr := app.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	return runErr
}
