package engine

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/kazz187/taskdesk/internal/eventbus"
	"github.com/kazz187/taskdesk/internal/task"
	"github.com/kazz187/taskdesk/pkg/cerr"
)

const (
	jobCreate = "create"
	jobPatch  = "patch"
	jobImport = "import"
)

// CreateTask stores a new task built from in and schedules its remote
// creation.
func (e *Engine) CreateTask(ctx context.Context, in task.Input) task.Task {
	e.mu.Lock()
	t := task.New(in, e.now())
	active := e.store.Active(ctx)
	active = append(active, t)
	e.persistActive(ctx, active)
	e.cacheUpsertLocked(t)
	e.mu.Unlock()

	snapshot := t.Clone()
	e.queue.Enqueue(jobCreate, t.ID, func(ctx context.Context) error {
		return e.remote.CreateTask(ctx, snapshot)
	})
	return t.Clone()
}

// AddSubtask creates a task under parentID. The parent is not required to
// exist.
func (e *Engine) AddSubtask(ctx context.Context, parentID string, in task.Input) task.Task {
	in.ParentID = parentID
	return e.CreateTask(ctx, in)
}

// UpdateTask merges p into the active task id. It reports false, leaving the
// store untouched, when no such task exists.
func (e *Engine) UpdateTask(ctx context.Context, id string, p task.Patch) (task.Task, bool) {
	return e.mutate(ctx, id, func(task.Task) (task.Patch, bool) {
		return p, true
	})
}

func (e *Engine) MarkDone(ctx context.Context, id string) (task.Task, bool) {
	return e.SetDone(ctx, id, true)
}

// SetDone moves a task to done, or back to new when done is false.
func (e *Engine) SetDone(ctx context.Context, id string, done bool) (task.Task, bool) {
	status := task.StatusNew
	if done {
		status = task.StatusDone
	}
	return e.UpdateTask(ctx, id, task.Patch{Status: &status})
}

// Attach appends a to the task's attachments and schedules a remote
// replacement of the whole list.
func (e *Engine) Attach(ctx context.Context, id string, a task.Attachment) (task.Attachment, bool) {
	_, ok := e.mutate(ctx, id, func(t task.Task) (task.Patch, bool) {
		attachments := append(append([]task.Attachment{}, t.Attachments...), a)
		return task.Patch{Attachments: &attachments}, true
	})
	if !ok {
		return task.Attachment{}, false
	}
	return a, true
}

// mutate applies the patch built from the current record of id, persists
// it and schedules the remote update. build may abort by returning false.
func (e *Engine) mutate(ctx context.Context, id string, build func(task.Task) (task.Patch, bool)) (task.Task, bool) {
	e.mu.Lock()
	active := e.store.Active(ctx)
	idx := indexOf(active, id)
	if idx < 0 {
		e.mu.Unlock()
		return task.Task{}, false
	}
	p, ok := build(active[idx].Clone())
	if !ok {
		e.mu.Unlock()
		return task.Task{}, false
	}
	updated := p.Apply(active[idx], e.now())
	active[idx] = updated
	e.persistActive(ctx, active)
	e.cacheUpsertLocked(updated)
	e.mu.Unlock()

	e.enqueuePatch(updated.ID, p.Fields(updated))
	return updated.Clone(), true
}

// RestoreTask moves an archived task back to the active list as new.
func (e *Engine) RestoreTask(ctx context.Context, id string) (task.Task, bool) {
	e.mu.Lock()
	archived := e.store.Archived(ctx)
	idx := indexOf(archived, id)
	if idx < 0 {
		e.mu.Unlock()
		return task.Task{}, false
	}
	status := task.StatusNew
	p := task.Patch{Status: &status, ClearDeletedAt: true}
	restored := p.Apply(archived[idx], e.now())

	archived = append(archived[:idx], archived[idx+1:]...)
	active := append(e.store.Active(ctx), restored)
	e.persistArchived(ctx, archived)
	e.persistActive(ctx, active)
	e.cacheUpsertLocked(restored)
	e.mu.Unlock()

	e.enqueuePatch(restored.ID, p.Fields(restored))
	return restored.Clone(), true
}

// ArchiveSweep moves tasks completed more than ArchiveAfter ago into the
// archive and returns how many moved. Nothing is written when none qualify.
func (e *Engine) ArchiveSweep(ctx context.Context) int {
	e.mu.Lock()
	now := e.now()
	cutoff := now.Add(-e.cfg.ArchiveAfter)
	active := e.store.Active(ctx)

	kept := make([]task.Task, 0, len(active))
	var swept []task.Task
	p := task.Patch{DeletedAt: &now}
	for _, t := range active {
		if t.IsDone() && t.DoneAt != nil && t.DoneAt.Before(cutoff) {
			swept = append(swept, p.Apply(t, now))
			continue
		}
		kept = append(kept, t)
	}
	if len(swept) == 0 {
		e.mu.Unlock()
		return 0
	}

	ids := make(map[string]bool, len(swept))
	for _, t := range swept {
		ids[t.ID] = true
	}
	e.persistArchived(ctx, append(e.store.Archived(ctx), swept...))
	e.persistActive(ctx, kept)
	e.cacheRemoveLocked(ids)
	e.mu.Unlock()

	for _, t := range swept {
		e.enqueuePatch(t.ID, p.Fields(t))
	}
	slog.InfoContext(ctx, "archived completed tasks", "count", len(swept))
	e.bus.PublishNew(eventbus.ArchiveSwept, "", "", map[string]string{"count": strconv.Itoa(len(swept))})
	return len(swept)
}

// AllTasks returns the cached snapshot when one is populated, otherwise the
// durable active list.
func (e *Engine) AllTasks(ctx context.Context) []task.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.cachedAt.IsZero() {
		return task.CloneAll(e.cache)
	}
	return e.store.Active(ctx)
}

func (e *Engine) ArchivedTasks(ctx context.Context) []task.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Archived(ctx)
}

func (e *Engine) GetTask(ctx context.Context, id string) (task.Task, bool) {
	tasks := e.AllTasks(ctx)
	if idx := indexOf(tasks, id); idx >= 0 {
		return tasks[idx], true
	}
	return task.Task{}, false
}

// ListTasks applies task.ListTasks to AllTasks, defaulting opts.Now to the
// engine clock.
func (e *Engine) ListTasks(ctx context.Context, opts task.ListOptions) []task.Task {
	if opts.Now.IsZero() {
		opts.Now = e.now()
	}
	return task.ListTasks(e.AllTasks(ctx), opts)
}

// enqueuePatch schedules a partial update. When the remote has no record of
// id, because its create was dropped, the full local record is sent instead.
func (e *Engine) enqueuePatch(id string, fields map[string]any) {
	e.queue.Enqueue(jobPatch, id, func(ctx context.Context) error {
		err := e.remote.PatchTask(ctx, id, fields)
		if !cerr.IsCode(err, cerr.NotFound) {
			return err
		}
		t, ok := e.localRecord(ctx, id)
		if !ok {
			return err
		}
		slog.WarnContext(ctx, "task missing on remote, sending full record", "task_id", id)
		return e.remote.CreateTask(ctx, t)
	})
}

// localRecord looks id up in the active list, then the archive.
func (e *Engine) localRecord(ctx context.Context, id string) (task.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, tasks := range [][]task.Task{e.store.Active(ctx), e.store.Archived(ctx)} {
		if idx := indexOf(tasks, id); idx >= 0 {
			return tasks[idx], true
		}
	}
	return task.Task{}, false
}

func (e *Engine) persistActive(ctx context.Context, tasks []task.Task) {
	if err := e.store.SetActive(ctx, tasks); err != nil {
		slog.ErrorContext(ctx, "failed to persist active tasks", "error", err)
	}
}

func (e *Engine) persistArchived(ctx context.Context, tasks []task.Task) {
	if err := e.store.SetArchived(ctx, tasks); err != nil {
		slog.ErrorContext(ctx, "failed to persist archived tasks", "error", err)
	}
}

func indexOf(tasks []task.Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
