package repositoryimpl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/taskdesk/internal/task"
	"github.com/kazz187/taskdesk/pkg/cerr"
	"github.com/kazz187/taskdesk/pkg/storage"
)

const tasksPrefix = "tasks"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

var _ task.Repository = (*YAMLRepository)(nil)

// record is the on-disk shape. The opaque template reference is kept as its
// JSON text.
type record struct {
	task.Task   `yaml:",inline"`
	TemplateRef string `yaml:"template_ref,omitempty"`
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", tasksPrefix, id)
}

func marshal(t *task.Task) ([]byte, error) {
	data, err := yaml.Marshal(record{Task: *t, TemplateRef: string(t.TemplateRef)})
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal task: %w", err))
	}
	return data, nil
}

func unmarshal(data []byte) (*task.Task, error) {
	var r record
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal task: %w", err))
	}
	t := r.Task
	if r.TemplateRef != "" {
		t.TemplateRef = json.RawMessage(r.TemplateRef)
	}
	return &t, nil
}

func (r *YAMLRepository) Create(ctx context.Context, t *task.Task) error {
	exists, err := r.storage.Exists(ctx, path(t.ID))
	if err != nil {
		return cerr.WrapStorage(cerr.StorageWrite, "task", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "task already exists", nil)
	}
	return r.write(ctx, t)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorage(cerr.StorageRead, "task", err)
	}
	return unmarshal(data)
}

// List returns every stored task ordered by creation time. Unreadable
// records are skipped.
func (r *YAMLRepository) List(ctx context.Context) ([]*task.Task, error) {
	paths, err := r.storage.List(ctx, tasksPrefix)
	if err != nil {
		return nil, cerr.WrapStorage(cerr.StorageList, "tasks", err)
	}
	sort.Strings(paths)

	all := make([]*task.Task, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable task", "path", p, "error", err)
			continue
		}
		t, err := unmarshal(data)
		if err != nil {
			slog.WarnContext(ctx, "skipping corrupt task", "path", p, "error", err)
			continue
		}
		all = append(all, t)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all, nil
}

func (r *YAMLRepository) Update(ctx context.Context, t *task.Task) error {
	exists, err := r.storage.Exists(ctx, path(t.ID))
	if err != nil {
		return cerr.WrapStorage(cerr.StorageWrite, "task", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return r.write(ctx, t)
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorage(cerr.StorageDelete, "task", err)
	}
	return nil
}

func (r *YAMLRepository) write(ctx context.Context, t *task.Task) error {
	data, err := marshal(t)
	if err != nil {
		return err
	}
	if err := r.storage.Write(ctx, path(t.ID), data); err != nil {
		return cerr.WrapStorage(cerr.StorageWrite, "task", err)
	}
	return nil
}
