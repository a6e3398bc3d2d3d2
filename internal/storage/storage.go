package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"task-api/internal/config"
	"task-api/internal/models"
)

// Store is the document-store surface the task manager runs against.
// Lookups by id return (nil, nil) when the task does not exist.
type Store interface {
	Insert(ctx context.Context, task models.NewTask) (*models.Task, error)
	InsertMany(ctx context.Context, tasks []models.NewTask) ([]models.Task, error)
	FindByID(ctx context.Context, id string) (*models.Task, error)
	FindByIDAndUpdate(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error)
	FindByIDAndDelete(ctx context.Context, id string) (*models.Task, error)
	FindIn(ctx context.Context, ids []string) ([]models.Task, error)
	UpdateMany(ctx context.Context, ids []string, completed bool) (models.UpdateSummary, error)
	DeleteMany(ctx context.Context, ids []string) (models.DeleteSummary, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the backend named by cfg.Driver and, when
// cfg.AutoMigrate is set, ensures the tasks table or collection exists.
func Open(ctx context.Context, cfg config.Store) (Store, error) {
	var (
		s   Store
		err error
	)

	switch cfg.Driver {
	case config.DriverSQLite, config.DriverSQLite3:
		if dir := filepath.Dir(cfg.SQLite.Path); cfg.SQLite.Path != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		s, err = NewSQLiteStorage(ctx, cfg.Driver, cfg.SQLite.Path)
	case config.DriverMongo:
		s, err = NewMongoStorage(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
	case config.DriverArango:
		s, err = NewArangoStorage(ctx, cfg.Arango)
	case config.DriverMemory:
		s = NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// MemoryStorage keeps tasks in a map. Used by taskctl dry runs and tests.
type MemoryStorage struct {
	tasks map[string]models.Task
	mu    sync.Mutex
}

var _ Store = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tasks: make(map[string]models.Task),
	}
}

func (m *MemoryStorage) newTask(t models.NewTask) models.Task {
	now := time.Now().UTC()
	return models.Task{
		ID:          primitive.NewObjectID().Hex(),
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (m *MemoryStorage) Insert(_ context.Context, t models.NewTask) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task := m.newTask(t)
	m.tasks[task.ID] = task
	return &task, nil
}

func (m *MemoryStorage) InsertMany(_ context.Context, ts []models.NewTask) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make([]models.Task, 0, len(ts))
	for _, t := range ts {
		task := m.newTask(t)
		m.tasks[task.ID] = task
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (m *MemoryStorage) FindByID(_ context.Context, id string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	return &task, nil
}

func (m *MemoryStorage) FindByIDAndUpdate(_ context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	if patch.IsEmpty() {
		return &task, nil
	}

	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Completed != nil {
		task.Completed = *patch.Completed
	}
	task.UpdatedAt = time.Now().UTC()
	m.tasks[id] = task

	return &task, nil
}

func (m *MemoryStorage) FindByIDAndDelete(_ context.Context, id string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	delete(m.tasks, id)
	return &task, nil
}

func (m *MemoryStorage) FindIn(_ context.Context, ids []string) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make([]models.Task, 0, len(ids))
	for _, id := range lo.Uniq(ids) {
		if task, ok := m.tasks[id]; ok {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

func (m *MemoryStorage) UpdateMany(_ context.Context, ids []string, completed bool) (models.UpdateSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := models.UpdateSummary{Acknowledged: true}
	now := time.Now().UTC()
	for _, id := range lo.Uniq(ids) {
		task, ok := m.tasks[id]
		if !ok {
			continue
		}
		summary.MatchedCount++
		if task.Completed == completed {
			continue
		}
		task.Completed = completed
		task.UpdatedAt = now
		m.tasks[id] = task
		summary.ModifiedCount++
	}
	return summary, nil
}

func (m *MemoryStorage) DeleteMany(_ context.Context, ids []string) (models.DeleteSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := models.DeleteSummary{Acknowledged: true}
	for _, id := range lo.Uniq(ids) {
		if _, ok := m.tasks[id]; ok {
			delete(m.tasks, id)
			summary.DeletedCount++
		}
	}
	return summary, nil
}

func (m *MemoryStorage) Migrate(context.Context) error { return nil }

func (m *MemoryStorage) Ping(context.Context) error { return nil }

func (m *MemoryStorage) Close() error { return nil }
