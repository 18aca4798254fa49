package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kazz187/taskdesk/internal/remote"
	"github.com/kazz187/taskdesk/internal/task"
	"github.com/kazz187/taskdesk/pkg/cerr"
	"github.com/kazz187/taskdesk/pkg/clog"
)

const maxBodySize = 8 << 20

type TaskServer struct {
	repo task.Repository
	now  func() time.Time
}

func NewTaskServer(repo task.Repository) *TaskServer {
	return &TaskServer{repo: repo, now: time.Now}
}

func (s *TaskServer) Routes(r chi.Router) {
	r.Get("/tasks", s.ListTasks)
	r.Get("/tasks/summary", s.Summary)
	r.Post("/tasks", s.CreateTask)
	r.Post("/tasks/import", s.ImportTasks)
	r.Patch("/tasks/{id}", s.PatchTask)
}

type listTasksResponse struct {
	Tasks []task.Task `json:"tasks"`
}

// ListTasks returns active tasks. Done tasks are included only with
// include_done=true or status=done.
func (s *TaskServer) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	includeDone := false
	if v := q.Get("include_done"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "include_done must be a boolean", err)
			return
		}
		includeDone = b
	}
	var status task.Status
	if v := q.Get("status"); v != "" {
		st, ok := task.ParseStatus(v)
		if !ok {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, fmt.Sprintf("unknown status %q", v), nil)
			return
		}
		status = st
	}
	client := strings.TrimSpace(q.Get("client"))
	owner := q.Get("owner")

	all, err := s.repo.List(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	out := make([]task.Task, 0, len(all))
	for _, t := range all {
		switch {
		case t.IsArchived():
		case status != "" && t.Status != status:
		case status == "" && !includeDone && t.IsDone():
		case client != "" && !strings.EqualFold(strings.TrimSpace(t.ClientName), client):
		case owner != "" && t.OwnerID != owner:
		default:
			out = append(out, *t)
		}
	}
	cerr.SetJSONResponse(ctx, listTasksResponse{Tasks: out})
}

func (s *TaskServer) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all, err := s.repo.List(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	tasks := make([]task.Task, 0, len(all))
	for _, t := range all {
		tasks = append(tasks, *t)
	}
	cerr.SetJSONResponse(ctx, task.Summarize(tasks, s.now()))
}

// CreateTask stores the posted record as is, keeping a client supplied id.
func (s *TaskServer) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var t task.Task
	if err := decodeJSON(r, &t); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	now := s.now()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Source == "" {
		t.Source = task.DefaultSource
	}
	t = task.Normalize(t)
	clog.AddAttribute(ctx, "task_id", t.ID)

	if err := s.repo.Create(ctx, &t); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, t)
}

// PatchTask applies a partial update. Updates land in arrival order; the
// body's updatedAt, when present, becomes the record's update time.
func (s *TaskServer) PatchTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	clog.AddAttribute(ctx, "task_id", id)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "failed to read body", err)
		return
	}
	p, err := task.DecodePatch(body)
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid patch body", err)
		return
	}
	var stamp struct {
		UpdatedAt *time.Time `json:"updatedAt"`
	}
	_ = json.Unmarshal(body, &stamp)
	at := s.now()
	if stamp.UpdatedAt != nil && !stamp.UpdatedAt.IsZero() {
		at = *stamp.UpdatedAt
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	updated := p.Apply(*current, at)
	if err := s.repo.Update(ctx, &updated); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, updated)
}

type importResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Removed  int `json:"removed"`
}

// ImportTasks bulk loads tasks. With merge an existing record is replaced
// only by a strictly newer one; without merge the stored set becomes exactly
// the posted set.
func (s *TaskServer) ImportTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req remote.ImportRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	existing, err := s.repo.List(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	byID := make(map[string]*task.Task, len(existing))
	for _, t := range existing {
		byID[t.ID] = t
	}

	var resp importResponse
	incoming := make(map[string]bool, len(req.Tasks))
	for _, t := range req.Tasks {
		if t.ID == "" {
			resp.Skipped++
			continue
		}
		t = task.Normalize(t)
		incoming[t.ID] = true
		cur, ok := byID[t.ID]
		switch {
		case !ok:
			err = s.repo.Create(ctx, &t)
		case !req.Merge || t.UpdatedAt.After(cur.UpdatedAt):
			err = s.repo.Update(ctx, &t)
		default:
			resp.Skipped++
			continue
		}
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		byID[t.ID] = &t
		resp.Imported++
	}
	if !req.Merge {
		ids := make([]string, 0, len(existing))
		for _, t := range existing {
			if !incoming[t.ID] {
				ids = append(ids, t.ID)
			}
		}
		slices.Sort(ids)
		for _, id := range ids {
			if err := s.repo.Delete(ctx, id); err != nil {
				cerr.SetJSONError(ctx, err)
				return
			}
			resp.Removed++
		}
	}
	clog.AddAttributes(ctx, map[string]any{"imported": resp.Imported, "skipped": resp.Skipped})
	cerr.SetJSONResponse(ctx, resp)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid request body", err)
	}
	return nil
}
