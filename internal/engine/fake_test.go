package engine

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskdesk/internal/localstore"
	"github.com/kazz187/taskdesk/internal/remote"
	"github.com/kazz187/taskdesk/internal/syncqueue"
	"github.com/kazz187/taskdesk/internal/task"
	"github.com/kazz187/taskdesk/pkg/cerr"
	"github.com/kazz187/taskdesk/pkg/storage"
)

var (
	errRemoteDown    = cerr.NewError(cerr.Unavailable, "remote unreachable", errors.New("connection refused"))
	errRemoteMissing = cerr.NewError(cerr.NotFound, "PATCH failed", &remote.StatusError{StatusCode: http.StatusNotFound})
)

type patchCall struct {
	ID     string
	Fields map[string]any
}

type fakeRemote struct {
	mu        sync.Mutex
	err       error
	tasks     []task.Task
	summary   task.Summary
	lists     []remote.Query
	summaries int
	creates   []task.Task
	patches   []patchCall
	imports   [][]task.Task
	// patchErr, when set, is returned by PatchTask instead of recording it.
	patchErr error
	// importGate, when set, blocks ImportTasks until closed.
	importGate chan struct{}
}

func (f *fakeRemote) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeRemote) ListTasks(_ context.Context, q remote.Query) ([]task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, q)
	if f.err != nil {
		return nil, f.err
	}
	return task.CloneAll(f.tasks), nil
}

func (f *fakeRemote) Summary(context.Context) (task.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries++
	if f.err != nil {
		return task.Summary{}, f.err
	}
	return f.summary, nil
}

func (f *fakeRemote) CreateTask(_ context.Context, t task.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.creates = append(f.creates, t)
	return nil
}

func (f *fakeRemote) PatchTask(_ context.Context, id string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.patchErr != nil {
		return f.patchErr
	}
	f.patches = append(f.patches, patchCall{ID: id, Fields: fields})
	return nil
}

func (f *fakeRemote) ImportTasks(_ context.Context, tasks []task.Task, _ bool) error {
	f.mu.Lock()
	gate := f.importGate
	f.imports = append(f.imports, task.CloneAll(tasks))
	err := f.err
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeRemote) counts() (lists, creates, patches, imports int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lists), len(f.creates), len(f.patches), len(f.imports)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	engine  *Engine
	remote  *fakeRemote
	clock   *fakeClock
	store   *localstore.Store
	storage *storage.MemoryStorage
}

func testConfig() Config {
	return Config{
		MigrationDelay: time.Hour,
		Sync: syncqueue.Config{
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, storage.NewMemoryStorage(), testConfig())
}

func newFixtureWith(t *testing.T, s *storage.MemoryStorage, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		remote:  &fakeRemote{},
		clock:   newFakeClock(),
		store:   localstore.New(s),
		storage: s,
	}
	f.engine = New(f.store, f.remote, cfg, WithClock(f.clock.Now))
	return f
}

// start runs the engine until the test ends.
func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.engine.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.engine.Drain(ctx))
}
