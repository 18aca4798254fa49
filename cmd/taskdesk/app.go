package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/kazz187/taskdesk/internal/config"
	"github.com/kazz187/taskdesk/internal/engine"
	"github.com/kazz187/taskdesk/internal/localstore"
	"github.com/kazz187/taskdesk/internal/remote"
	"github.com/kazz187/taskdesk/internal/storewatch"
	"github.com/kazz187/taskdesk/internal/syncqueue"
	"github.com/kazz187/taskdesk/pkg/clog"
	"github.com/kazz187/taskdesk/pkg/storage"
)

// app owns one engine for the lifetime of a single command.
type app struct {
	env    *config.ClientEnv
	owners config.Directory
	engine *engine.Engine

	closeStore func() error
	cancel     context.CancelFunc
	wg         conc.WaitGroup
}

func setupLogger(env *config.ClientEnv) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}

func openStore(ctx context.Context, env *config.ClientEnv) (storage.Storage, func() error, error) {
	switch env.StoreType {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(env.StoreSQLitePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		s, err := storage.OpenSQLiteStorage(ctx, env.StoreSQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "local", "":
		s, err := storage.NewLocalStorage(env.StoreDir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", env.StoreType)
	}
}

func newApp(ctx context.Context, env *config.ClientEnv) (*app, error) {
	owners, err := config.LoadOwners(env.OwnersFile)
	if err != nil {
		return nil, err
	}
	store, closeStore, err := openStore(ctx, env)
	if err != nil {
		return nil, err
	}
	client := remote.NewClient(remote.Config{
		BaseURL: env.APIBaseURL,
		APIKey:  env.APIKey,
		Timeout: env.HTTPTimeout,
	})
	e := engine.New(localstore.New(store), client, engine.Config{
		CacheTTL:       env.CacheTTL,
		ArchiveAfter:   env.ArchiveAfter,
		MigrationDelay: env.MigrationDelay,
		Sync: syncqueue.Config{
			MaxAttempts:    env.SyncMaxAttempts,
			InitialBackoff: env.SyncInitialBackoff,
			MaxBackoff:     env.SyncMaxBackoff,
		},
	})
	return &app{env: env, owners: owners, engine: e, closeStore: closeStore}, nil
}

// start runs the engine's background work until stop.
func (a *app) start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Go(func() {
		if err := a.engine.Start(ctx); err != nil {
			slog.ErrorContext(ctx, "engine stopped", "error", err)
		}
	})
}

// watchStore invalidates the engine cache when another process rewrites
// the durable store.
func (a *app) watchStore(ctx context.Context) *storewatch.Watcher {
	dir, names := filepath.Join(a.env.StoreDir, "tasks"), []string{"active.json", "archived.json"}
	if a.env.StoreType == "sqlite" {
		base := filepath.Base(a.env.StoreSQLitePath)
		dir, names = filepath.Dir(a.env.StoreSQLitePath), []string{base, base + "-wal"}
	}
	w := storewatch.New(dir, a.engine.InvalidateCache, names...)
	a.wg.Go(func() {
		if err := w.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "store watcher stopped", "error", err)
		}
	})
	return w
}

// stop waits up to wait for queued sync jobs, then shuts the engine down.
func (a *app) stop(wait time.Duration) {
	if wait > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), wait)
		if err := a.engine.Drain(ctx); err != nil {
			slog.Warn("sync queue not drained", "pending", a.engine.Status(context.Background()).Sync.Pending, "error", err)
		}
		cancel()
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if err := a.closeStore(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
}
