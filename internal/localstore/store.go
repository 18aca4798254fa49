// Package localstore keeps the engine's durable state as keyed JSON blobs:
// the active list, the archive and the migration flag.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kazz187/taskdesk/internal/task"
	"github.com/kazz187/taskdesk/pkg/storage"
)

const (
	KeyActive   = "tasks/active.json"
	KeyArchived = "tasks/archived.json"
	KeyMigrated = "tasks/migrated.json"
)

type Store struct {
	storage storage.Storage
}

func New(s storage.Storage) *Store {
	return &Store{storage: s}
}

// GetOrDefault decodes the blob under key. A missing, unreadable or corrupt
// blob yields fallback.
func GetOrDefault[T any](ctx context.Context, s *Store, key string, fallback T) T {
	data, err := s.storage.Read(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "failed to read local store", "key", key, "error", err)
		}
		return fallback
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		slog.WarnContext(ctx, "corrupt local store entry", "key", key, "error", err)
		return fallback
	}
	return v
}

func (s *Store) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.storage.Write(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *Store) Active(ctx context.Context) []task.Task {
	return s.tasks(ctx, KeyActive)
}

func (s *Store) Archived(ctx context.Context) []task.Task {
	return s.tasks(ctx, KeyArchived)
}

func (s *Store) SetActive(ctx context.Context, tasks []task.Task) error {
	return s.Set(ctx, KeyActive, nonNil(tasks))
}

func (s *Store) SetArchived(ctx context.Context, tasks []task.Task) error {
	return s.Set(ctx, KeyArchived, nonNil(tasks))
}

func (s *Store) Migrated(ctx context.Context) bool {
	return GetOrDefault(ctx, s, KeyMigrated, false)
}

func (s *Store) SetMigrated(ctx context.Context) error {
	return s.Set(ctx, KeyMigrated, true)
}

func (s *Store) tasks(ctx context.Context, key string) []task.Task {
	tasks := GetOrDefault(ctx, s, key, []task.Task{})
	for i := range tasks {
		tasks[i] = task.Normalize(tasks[i])
	}
	return nonNil(tasks)
}

func nonNil(tasks []task.Task) []task.Task {
	if tasks == nil {
		return []task.Task{}
	}
	return tasks
}
