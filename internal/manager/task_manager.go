package manager

import (
	"context"

	"task-api/internal/errorx"
	"task-api/internal/logger"
	"task-api/internal/models"
	"task-api/internal/validate"
)

// Storage is the document-store surface TaskManager needs. Lookups by id
// return (nil, nil) for a missing task.
type Storage interface {
	Insert(ctx context.Context, task models.NewTask) (*models.Task, error)
	InsertMany(ctx context.Context, tasks []models.NewTask) ([]models.Task, error)
	FindByID(ctx context.Context, id string) (*models.Task, error)
	FindByIDAndUpdate(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error)
	FindByIDAndDelete(ctx context.Context, id string) (*models.Task, error)
	FindIn(ctx context.Context, ids []string) ([]models.Task, error)
	UpdateMany(ctx context.Context, ids []string, completed bool) (models.UpdateSummary, error)
	DeleteMany(ctx context.Context, ids []string) (models.DeleteSummary, error)
	Ping(ctx context.Context) error
}

// BulkMode selects how UpdateTasks treats a heterogeneous batch.
type BulkMode string

const (
	// BulkModeSequential applies items one by one in input order and stops at
	// the first failure. Items already applied stay applied.
	BulkModeSequential BulkMode = "sequential"
	// BulkModeStaged validates every item and resolves every id before the
	// first write, so a bad item or missing id rejects the batch untouched.
	BulkModeStaged BulkMode = "staged"
)

type Option func(*TaskManager)

func WithBulkMode(mode BulkMode) Option {
	return func(tm *TaskManager) {
		tm.mode = mode
	}
}

// TaskManager validates task payloads and runs single and bulk operations
// against the store. It holds no state between calls besides the store handle.
type TaskManager struct {
	storage Storage
	mode    BulkMode
}

func NewTaskManager(storage Storage, opts ...Option) *TaskManager {
	tm := &TaskManager{
		storage: storage,
		mode:    BulkModeSequential,
	}
	for _, o := range opts {
		o(tm)
	}
	return tm
}

func (tm *TaskManager) Mode() BulkMode {
	return tm.mode
}

// Ping reports whether the store answers.
func (tm *TaskManager) Ping(ctx context.Context) error {
	return tm.storage.Ping(ctx)
}

// CreateTask validates a task object and inserts it.
func (tm *TaskManager) CreateTask(ctx context.Context, raw []byte) (task *models.Task, err error) {
	ctx, op := startOp(ctx, opCreate)
	defer func() { op.end(err, 1) }()

	f, err := validate.ParseObject(raw)
	if err != nil {
		return nil, err
	}
	t, err := validate.NewTask(f)
	if err != nil {
		return nil, err
	}

	task, err = tm.storage.Insert(ctx, t)
	if err != nil {
		return nil, errorx.StoreError(err, "failed to create task")
	}

	taskDescLength.Observe(float64(len(t.Description)))
	logger.Debug(ctx, "task created", "taskID", task.ID)
	return task, nil
}

func (tm *TaskManager) GetTask(ctx context.Context, id string) (task *models.Task, err error) {
	ctx, op := startOp(ctx, opGet)
	defer func() { op.end(err, 1) }()

	task, err = tm.storage.FindByID(ctx, id)
	if err != nil {
		return nil, errorx.StoreError(err, "failed to get task")
	}
	if task == nil {
		return nil, notFound(id)
	}
	return task, nil
}

// UpdateTask applies a partial update. The allowlist is checked before the
// store is touched, so a disallowed field wins over a missing id.
func (tm *TaskManager) UpdateTask(ctx context.Context, id string, raw []byte) (task *models.Task, err error) {
	ctx, op := startOp(ctx, opUpdate)
	defer func() { op.end(err, 1) }()

	f, err := validate.ParseObject(raw)
	if err != nil {
		return nil, err
	}
	return tm.applyUpdate(ctx, id, f)
}

func (tm *TaskManager) DeleteTask(ctx context.Context, id string) (task *models.Task, err error) {
	ctx, op := startOp(ctx, opDelete)
	defer func() { op.end(err, 1) }()

	task, err = tm.storage.FindByIDAndDelete(ctx, id)
	if err != nil {
		return nil, errorx.StoreError(err, "failed to delete task")
	}
	if task == nil {
		return nil, notFound(id)
	}

	logger.Debug(ctx, "task deleted", "taskID", id)
	return task, nil
}

// applyUpdate runs the allowlist check, the schema check and the store
// update for one target.
func (tm *TaskManager) applyUpdate(ctx context.Context, id string, f validate.Fields) (*models.Task, error) {
	if err := validate.CheckAllowed(f); err != nil {
		return nil, err
	}
	patch, err := validate.Patch(f)
	if err != nil {
		return nil, err
	}

	task, err := tm.storage.FindByIDAndUpdate(ctx, id, patch)
	if err != nil {
		return nil, errorx.StoreError(err, "failed to update task")
	}
	if task == nil {
		return nil, notFound(id)
	}
	if patch.Description != nil {
		taskDescLength.Observe(float64(len(*patch.Description)))
	}
	return task, nil
}

func notFound(id string) error {
	return errorx.NotFoundErrorf("task %s not found", id)
}
