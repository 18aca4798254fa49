package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskdesk/internal/config"
	"github.com/kazz187/taskdesk/internal/engine"
	"github.com/kazz187/taskdesk/internal/localstore"
	"github.com/kazz187/taskdesk/internal/remote"
	"github.com/kazz187/taskdesk/internal/syncqueue"
	"github.com/kazz187/taskdesk/internal/task"
	"github.com/kazz187/taskdesk/internal/task/repositoryimpl"
	"github.com/kazz187/taskdesk/pkg/storage"
)

const testAPIKey = "secret"

var testNow = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

type testServer struct {
	url  string
	repo task.Repository
	// down makes every request answer 503.
	down atomic.Bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := repositoryimpl.NewYAMLRepository(storage.NewMemoryStorage())
	ts := NewTaskServer(repo)
	ts.now = func() time.Time { return testNow }
	env := &config.ServerConfig{ServerEnv: config.ServerEnv{APIKey: testAPIKey}}
	handler := NewServer(env, ts).Handler()
	s := &testServer{repo: repo}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	s.url = srv.URL
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.url+path, reader)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (s *testServer) list(t *testing.T, query string) []string {
	t.Helper()
	code, body := s.do(t, http.MethodGet, "/api/tasks"+query, nil)
	require.Equal(t, http.StatusOK, code, string(body))
	var resp listTasksResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	ids := make([]string, 0, len(resp.Tasks))
	for _, tk := range resp.Tasks {
		ids = append(ids, tk.ID)
	}
	return ids
}

func seed(t *testing.T, repo task.Repository, tasks ...task.Task) {
	t.Helper()
	for i := range tasks {
		require.NoError(t, repo.Create(context.Background(), &tasks[i]))
	}
}

func TestServer_Auth(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.url + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(s.url + "/api/tasks")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, s.url+"/api/tasks", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_UnknownRoute(t *testing.T) {
	s := newTestServer(t)
	code, body := s.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"code":"not_found","message":"not found"}`, string(body))
}

func TestTaskServer_ListFilters(t *testing.T) {
	s := newTestServer(t)
	deleted := testNow
	seed(t, s.repo,
		task.Task{ID: "a", Title: "A", Status: task.StatusNew, ClientName: "Acme Corp", OwnerID: "o1", CreatedAt: testNow},
		task.Task{ID: "b", Title: "B", Status: task.StatusDone, ClientName: "acme corp", CreatedAt: testNow.Add(time.Second), UpdatedAt: testNow},
		task.Task{ID: "c", Title: "C", Status: task.StatusNew, ClientName: "Globex", OwnerID: "o2", CreatedAt: testNow.Add(2 * time.Second)},
		task.Task{ID: "d", Title: "D", Status: task.StatusNew, DeletedAt: &deleted, CreatedAt: testNow.Add(3 * time.Second)},
	)

	assert.Equal(t, []string{"a", "c"}, s.list(t, ""))
	assert.Equal(t, []string{"a", "b", "c"}, s.list(t, "?include_done=true"))
	assert.Equal(t, []string{"b"}, s.list(t, "?status=done"))
	assert.Equal(t, []string{"a", "b"}, s.list(t, "?include_done=true&client=ACME%20CORP"))
	assert.Equal(t, []string{"c"}, s.list(t, "?owner=o2"))

	code, _ := s.do(t, http.MethodGet, "/api/tasks?status=blocked", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTaskServer_CreateAndPatch(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/api/tasks", map[string]any{"id": "t1", "title": "  ", "status": "new"})
	require.Equal(t, http.StatusCreated, code, string(body))
	var created task.Task
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, task.DefaultTitle, created.Title)
	assert.Empty(t, created.Priority)

	code, body = s.do(t, http.MethodPost, "/api/tasks", map[string]any{"id": "t1", "title": "dup"})
	assert.Equal(t, http.StatusConflict, code, string(body))

	at := testNow.Add(time.Hour)
	code, body = s.do(t, http.MethodPatch, "/api/tasks/t1", map[string]any{
		"title":     "Filed",
		"status":    "done",
		"updatedAt": at,
	})
	require.Equal(t, http.StatusOK, code, string(body))

	got, err := s.repo.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Filed", got.Title)
	assert.True(t, got.IsDone())
	require.NotNil(t, got.DoneAt)
	assert.True(t, got.DoneAt.Equal(at))
	assert.True(t, got.UpdatedAt.Equal(at))

	code, body = s.do(t, http.MethodPatch, "/api/tasks/missing", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"code":"not_found","message":"task not found"}`, string(body))
}

func TestTaskServer_Import(t *testing.T) {
	s := newTestServer(t)
	seed(t, s.repo,
		task.Task{ID: "a", Title: "old", Status: task.StatusNew, CreatedAt: testNow, UpdatedAt: testNow},
		task.Task{ID: "b", Title: "keep", Status: task.StatusNew, CreatedAt: testNow, UpdatedAt: testNow.Add(time.Hour)},
	)

	code, body := s.do(t, http.MethodPost, "/api/tasks/import", remote.ImportRequest{
		Merge: true,
		Tasks: []task.Task{
			{ID: "a", Title: "new", Status: task.StatusNew, CreatedAt: testNow, UpdatedAt: testNow.Add(time.Minute)},
			{ID: "b", Title: "stale", Status: task.StatusNew, CreatedAt: testNow, UpdatedAt: testNow},
			{ID: "c", Title: "fresh", Status: task.StatusNew, CreatedAt: testNow, UpdatedAt: testNow},
		},
	})
	require.Equal(t, http.StatusOK, code, string(body))
	assert.JSONEq(t, `{"imported":2,"skipped":1,"removed":0}`, string(body))

	a, err := s.repo.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "new", a.Title)
	b, err := s.repo.Get(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "keep", b.Title)

	code, body = s.do(t, http.MethodPost, "/api/tasks/import", remote.ImportRequest{
		Tasks: []task.Task{{ID: "c", Title: "only", Status: task.StatusNew, CreatedAt: testNow, UpdatedAt: testNow}},
	})
	require.Equal(t, http.StatusOK, code, string(body))
	assert.JSONEq(t, `{"imported":1,"skipped":0,"removed":2}`, string(body))
	all, err := s.repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "only", all[0].Title)
}

func TestTaskServer_Summary(t *testing.T) {
	s := newTestServer(t)
	due := testNow.Add(-48 * time.Hour)
	seed(t, s.repo, task.Task{ID: "a", Title: "late", Status: task.StatusNew, DueAt: &due, CreatedAt: testNow})

	code, body := s.do(t, http.MethodGet, "/api/tasks/summary", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	var sum task.Summary
	require.NoError(t, json.Unmarshal(body, &sum))
	assert.Equal(t, 1, sum.Overdue)
	assert.Equal(t, 1, sum.TotalOpen)
}

// startEngine runs an engine against s until the test ends.
func startEngine(t *testing.T, s *testServer) *engine.Engine {
	t.Helper()
	client := remote.NewClient(remote.Config{BaseURL: s.url, APIKey: testAPIKey, Timeout: 5 * time.Second})
	e := engine.New(localstore.New(storage.NewMemoryStorage()), client, engine.Config{
		MigrationDelay: time.Hour,
		Sync:           syncqueue.Config{MaxAttempts: 2, InitialBackoff: time.Millisecond},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func drainEngine(t *testing.T, e *engine.Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Drain(ctx))
}

func TestEngineRoundTrip(t *testing.T) {
	s := newTestServer(t)
	e := startEngine(t, s)
	ctx := context.Background()

	tk := e.CreateTask(ctx, task.Input{Title: "Draft motion", ClientName: "Acme"})
	_, ok := e.UpdateTask(ctx, tk.ID, task.Patch{Title: ptr("File motion")})
	require.True(t, ok)
	_, ok = e.MarkDone(ctx, tk.ID)
	require.True(t, ok)

	drainEngine(t, e)
	assert.Equal(t, uint64(3), e.Status(ctx).Sync.Succeeded)

	got, err := s.repo.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "File motion", got.Title)
	assert.True(t, got.IsDone())
	assert.NotNil(t, got.DoneAt)

	res := e.FetchTasks(ctx, engine.Filters{IncludeDone: true, Client: "acme"})
	require.NoError(t, res.Err)
	assert.Equal(t, engine.SourceRemote, res.Source)
	require.Len(t, res.Value, 1)
	assert.Equal(t, tk.ID, res.Value[0].ID)
}

func TestEngineRoundTrip_UpdateRecoversDroppedCreate(t *testing.T) {
	s := newTestServer(t)
	e := startEngine(t, s)
	ctx := context.Background()

	s.down.Store(true)
	tk := e.CreateTask(ctx, task.Input{Title: "Draft motion"})
	drainEngine(t, e)
	_, err := s.repo.Get(ctx, tk.ID)
	require.Error(t, err)

	s.down.Store(false)
	_, ok := e.UpdateTask(ctx, tk.ID, task.Patch{Title: ptr("Final")})
	require.True(t, ok)
	drainEngine(t, e)

	st := e.Status(ctx).Sync
	assert.Equal(t, uint64(1), st.Succeeded)
	assert.Equal(t, uint64(1), st.Failed)

	got, err := s.repo.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "Final", got.Title)
	assert.Equal(t, tk.CreatedAt.Unix(), got.CreatedAt.Unix())
}

func ptr[T any](v T) *T { return &v }
