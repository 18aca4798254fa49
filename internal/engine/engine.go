// Package engine is the local-first task cache. Reads and writes are served
// from the durable local store and an in-memory snapshot; every mutation is
// reconciled with the remote task service in the background.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/kazz187/taskdesk/internal/eventbus"
	"github.com/kazz187/taskdesk/internal/localstore"
	"github.com/kazz187/taskdesk/internal/remote"
	"github.com/kazz187/taskdesk/internal/syncqueue"
	"github.com/kazz187/taskdesk/internal/task"
)

const (
	DefaultCacheTTL       = 5 * time.Second
	DefaultArchiveAfter   = 24 * time.Hour
	DefaultMigrationDelay = 1500 * time.Millisecond
)

// RemoteClient is the remote task service as seen by the engine.
type RemoteClient interface {
	ListTasks(ctx context.Context, q remote.Query) ([]task.Task, error)
	Summary(ctx context.Context) (task.Summary, error)
	CreateTask(ctx context.Context, t task.Task) error
	PatchTask(ctx context.Context, id string, fields map[string]any) error
	ImportTasks(ctx context.Context, tasks []task.Task, merge bool) error
}

type Config struct {
	CacheTTL       time.Duration
	ArchiveAfter   time.Duration
	MigrationDelay time.Duration
	Sync           syncqueue.Config
}

func (c Config) withDefaults() Config {
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.ArchiveAfter <= 0 {
		c.ArchiveAfter = DefaultArchiveAfter
	}
	if c.MigrationDelay < 0 {
		c.MigrationDelay = 0
	} else if c.MigrationDelay == 0 {
		c.MigrationDelay = DefaultMigrationDelay
	}
	if c.Sync.Retryable == nil {
		c.Sync.Retryable = remote.IsRetryable
	}
	return c
}

type Option func(*Engine)

// WithClock replaces time.Now. Tests use it to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithEventBus(bus *eventbus.Bus) Option {
	return func(e *Engine) {
		e.bus = bus
	}
}

type Engine struct {
	store  *localstore.Store
	remote RemoteClient
	cfg    Config
	now    func() time.Time
	bus    *eventbus.Bus
	queue  *syncqueue.Queue

	// mu serializes read-modify-write cycles on the store and guards the
	// cache fields.
	mu       sync.Mutex
	cache    []task.Task
	cachedAt time.Time

	migrationAttempted atomic.Bool
	running            atomic.Bool
}

func New(store *localstore.Store, client RemoteClient, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		remote: client,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bus == nil {
		e.bus = eventbus.New()
	}
	e.queue = syncqueue.New(e.cfg.Sync,
		syncqueue.WithEventBus(e.bus),
		syncqueue.WithOnSettled(func(syncqueue.Job, error) {
			e.InvalidateCache()
		}),
	)
	return e
}

// Start runs the sync worker and schedules the one-time migration. It
// blocks until ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	defer e.running.Store(false)

	wg := conc.NewWaitGroup()
	wg.Go(func() {
		if err := e.queue.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "sync worker stopped", "error", err)
		}
	})
	wg.Go(func() {
		timer := time.NewTimer(e.cfg.MigrationDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			_ = e.EnsureMigrated(ctx)
		}
	})
	wg.Wait()
	return nil
}

// Drain waits for every queued sync job to settle.
func (e *Engine) Drain(ctx context.Context) error {
	return e.queue.Drain(ctx)
}

func (e *Engine) Bus() *eventbus.Bus {
	return e.bus
}

type Status struct {
	Sync               syncqueue.Status `json:"sync"`
	CachedTasks        int              `json:"cachedTasks"`
	CachedAt           time.Time        `json:"cachedAt,omitzero"`
	Migrated           bool             `json:"migrated"`
	MigrationAttempted bool             `json:"migrationAttempted"`
}

func (e *Engine) Status(ctx context.Context) Status {
	e.mu.Lock()
	cached, cachedAt := len(e.cache), e.cachedAt
	e.mu.Unlock()
	return Status{
		Sync:               e.queue.Status(),
		CachedTasks:        cached,
		CachedAt:           cachedAt,
		Migrated:           e.store.Migrated(ctx),
		MigrationAttempted: e.migrationAttempted.Load(),
	}
}

// InvalidateCache drops the in-memory snapshot so the next remote read goes
// over the network.
func (e *Engine) InvalidateCache() {
	e.mu.Lock()
	e.cache = nil
	e.cachedAt = time.Time{}
	e.mu.Unlock()
	e.bus.PublishNew(eventbus.CacheInvalidated, "", "", nil)
}

func (e *Engine) cacheFresh() ([]task.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cachedAt.IsZero() || e.now().Sub(e.cachedAt) >= e.cfg.CacheTTL {
		return nil, false
	}
	return task.CloneAll(e.cache), true
}

func (e *Engine) setCache(tasks []task.Task) {
	e.mu.Lock()
	e.cache = task.CloneAll(tasks)
	if e.cache == nil {
		e.cache = []task.Task{}
	}
	e.cachedAt = e.now()
	e.mu.Unlock()
}

// cacheUpsertLocked mirrors a local write into a populated cache.
func (e *Engine) cacheUpsertLocked(t task.Task) {
	if e.cachedAt.IsZero() {
		return
	}
	for i := range e.cache {
		if e.cache[i].ID == t.ID {
			e.cache[i] = t.Clone()
			return
		}
	}
	e.cache = append(e.cache, t.Clone())
}

func (e *Engine) cacheRemoveLocked(ids map[string]bool) {
	if e.cachedAt.IsZero() {
		return
	}
	kept := e.cache[:0]
	for _, t := range e.cache {
		if !ids[t.ID] {
			kept = append(kept, t)
		}
	}
	e.cache = kept
}
