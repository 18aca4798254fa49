package engine

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/kazz187/taskdesk/internal/eventbus"
	"github.com/kazz187/taskdesk/internal/remote"
	"github.com/kazz187/taskdesk/internal/task"
	"github.com/kazz187/taskdesk/pkg/clog"
)

// Source tells where a fetch result came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
	SourceLocal  Source = "local"
)

// Result is the outcome of a remote-authoritative read. Err carries the
// remote failure when Source is SourceLocal.
type Result[T any] struct {
	Value  T
	Source Source
	Err    error
}

type Filters struct {
	IncludeDone bool
	Client      string
	Owner       string
	Status      string
	// Force skips the cache for the unfiltered read.
	Force bool
}

func (f Filters) query() remote.Query {
	return remote.Query{
		IncludeDone: f.IncludeDone,
		Client:      f.Client,
		Owner:       f.Owner,
		Status:      f.Status,
	}
}

// FetchTasks reads tasks from the remote service after making sure the
// one-time migration had its chance. An unfiltered read is served from the
// cache within its TTL and refreshes it otherwise. When the remote is
// unreachable the durable active list is returned, unfiltered.
func (e *Engine) FetchTasks(ctx context.Context, f Filters) Result[[]task.Task] {
	_ = e.EnsureMigrated(ctx)

	q := f.query()
	if q.IsZero() && !f.Force {
		if tasks, ok := e.cacheFresh(); ok {
			return Result[[]task.Task]{Value: tasks, Source: SourceCache}
		}
	}

	tasks, err := e.remote.ListTasks(ctx, q)
	if err != nil {
		slog.WarnContext(ctx, "remote task list unavailable, serving local tasks", "error", err)
		e.mu.Lock()
		local := e.store.Active(ctx)
		e.mu.Unlock()
		return Result[[]task.Task]{Value: local, Source: SourceLocal, Err: err}
	}
	if q.IsZero() {
		e.setCache(tasks)
	}
	return Result[[]task.Task]{Value: tasks, Source: SourceRemote}
}

// FetchSummary asks the remote service for the due-date summary and falls
// back to computing it from the durable active list.
func (e *Engine) FetchSummary(ctx context.Context) Result[task.Summary] {
	s, err := e.remote.Summary(ctx)
	if err == nil {
		return Result[task.Summary]{Value: s, Source: SourceRemote}
	}
	slog.WarnContext(ctx, "remote summary unavailable, computing locally", "error", err)
	e.mu.Lock()
	local := e.store.Active(ctx)
	e.mu.Unlock()
	return Result[task.Summary]{Value: task.Summarize(local, e.now()), Source: SourceLocal, Err: err}
}

// EnsureMigrated pushes pre-existing local tasks to the remote service once.
// Only the first call in the engine's lifetime does any work; later and
// concurrent calls return nil immediately. A failed import leaves the
// persisted flag unset so the next process tries again.
func (e *Engine) EnsureMigrated(ctx context.Context) error {
	if !e.migrationAttempted.CompareAndSwap(false, true) {
		return nil
	}
	if e.store.Migrated(ctx) {
		return nil
	}

	e.mu.Lock()
	tasks := e.store.Active(ctx)
	e.mu.Unlock()

	if len(tasks) == 0 {
		if err := e.store.SetMigrated(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to persist migration flag", "error", err)
		}
		return nil
	}

	ctx = clog.ForkContext(ctx)
	clog.AddAttribute(ctx, "job", jobImport)
	if err := e.remote.ImportTasks(ctx, tasks, true); err != nil {
		slog.WarnContext(ctx, "task migration failed", "count", len(tasks), "error", err)
		return err
	}
	if err := e.store.SetMigrated(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to persist migration flag", "error", err)
	}
	slog.InfoContext(ctx, "migrated local tasks", "count", len(tasks))
	e.bus.PublishNew(eventbus.MigrationCompleted, "", "", map[string]string{"count": strconv.Itoa(len(tasks))})
	e.InvalidateCache()
	return nil
}
