package manager

import (
	"context"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"task-api/internal/errorx"
	"task-api/internal/logger"
	"task-api/internal/models"
	"task-api/internal/validate"
)

// CreateTasks validates every task object of the batch before a single
// insert. One invalid item rejects the batch and nothing is written.
func (tm *TaskManager) CreateTasks(ctx context.Context, raw []byte) (tasks []models.Task, err error) {
	ctx, op := startBulkOp(ctx, opCreateMany)
	n := 0
	defer func() { op.end(err, n) }()

	ts, err := validate.NewTasks(raw)
	if err != nil {
		return nil, err
	}
	n = len(ts)
	if n == 0 {
		return []models.Task{}, nil
	}

	tasks, err = tm.storage.InsertMany(ctx, ts)
	if err != nil {
		return nil, errorx.StoreError(err, "failed to create tasks")
	}

	for _, t := range ts {
		taskDescLength.Observe(float64(len(t.Description)))
	}
	logger.Info(ctx, "tasks created", "count", len(tasks))
	return tasks, nil
}

// GetTasks returns the tasks among ids that exist, in no particular order.
func (tm *TaskManager) GetTasks(ctx context.Context, ids []string) (tasks []models.Task, err error) {
	ctx, op := startBulkOp(ctx, opGetMany)
	defer func() { op.end(err, len(ids)) }()

	tasks, err = tm.storage.FindIn(ctx, ids)
	if err != nil {
		return nil, errorx.StoreError(err, "failed to get tasks")
	}
	return tasks, nil
}

// UpdateTasks applies a heterogeneous batch of {id, ...fields} items and
// returns the updated tasks in input order. See BulkMode for failure
// semantics; neither mode rolls back writes already made.
func (tm *TaskManager) UpdateTasks(ctx context.Context, raw []byte) (tasks []models.Task, err error) {
	ctx, op := startBulkOp(ctx, opUpdateMany)
	n := 0
	defer func() { op.end(err, n) }()

	items, err := validate.ParseArray(raw)
	if err != nil {
		return nil, err
	}
	n = len(items)

	if tm.mode == BulkModeStaged {
		return tm.updateStaged(ctx, items)
	}
	return tm.updateSequential(ctx, items)
}

func (tm *TaskManager) updateSequential(ctx context.Context, items []gjson.Result) ([]models.Task, error) {
	tasks := make([]models.Task, 0, len(items))
	for i, item := range items {
		id, f, err := validate.SplitID(item)
		if err != nil {
			return nil, tm.abort(ctx, errorx.WithIndex(err, i), i)
		}

		task, err := tm.applyUpdate(ctx, id, f)
		if err != nil {
			return nil, tm.abort(ctx, errorx.WithIndex(err, i), i)
		}
		tasks = append(tasks, *task)
	}
	return tasks, nil
}

type stagedUpdate struct {
	id    string
	patch models.TaskPatch
}

func (tm *TaskManager) updateStaged(ctx context.Context, items []gjson.Result) ([]models.Task, error) {
	staged := make([]stagedUpdate, 0, len(items))
	for i, item := range items {
		id, f, err := validate.SplitID(item)
		if err != nil {
			return nil, errorx.WithIndex(err, i)
		}
		if err := validate.CheckAllowed(f); err != nil {
			return nil, errorx.WithIndex(err, i)
		}
		patch, err := validate.Patch(f)
		if err != nil {
			return nil, errorx.WithIndex(err, i)
		}
		staged = append(staged, stagedUpdate{id: id, patch: patch})
	}

	ids := lo.Map(staged, func(s stagedUpdate, _ int) string { return s.id })
	found, err := tm.storage.FindIn(ctx, ids)
	if err != nil {
		return nil, errorx.StoreError(err, "failed to resolve tasks")
	}
	known := lo.SliceToMap(found, func(t models.Task) (string, struct{}) { return t.ID, struct{}{} })
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return nil, notFound(id)
		}
	}

	tasks := make([]models.Task, 0, len(staged))
	for i, s := range staged {
		task, err := tm.storage.FindByIDAndUpdate(ctx, s.id, s.patch)
		if err != nil {
			return nil, tm.abort(ctx, errorx.StoreError(err, "failed to update task"), i)
		}
		if task == nil {
			// Deleted by a concurrent request after it was resolved.
			return nil, tm.abort(ctx, notFound(s.id), i)
		}
		tasks = append(tasks, *task)
	}
	return tasks, nil
}

// abort logs a bulk update that stopped after applied items were written.
func (tm *TaskManager) abort(ctx context.Context, err error, applied int) error {
	if applied > 0 {
		logger.Warn(ctx, "bulk update aborted, earlier items stay applied",
			"applied", applied, "mode", string(tm.mode), "error", err.Error())
	}
	return err
}

// CompleteTasks sets completed on every listed task with one batch update.
// The update object must be exactly {completed: bool}.
func (tm *TaskManager) CompleteTasks(ctx context.Context, raw []byte) (summary models.UpdateSummary, err error) {
	ctx, op := startBulkOp(ctx, opUpdateComplete)
	n := 0
	defer func() { op.end(err, n) }()

	ids, f, err := validate.CompletedTuple(raw)
	if err != nil {
		return models.UpdateSummary{}, err
	}
	completed, err := validate.OnlyCompleted(f)
	if err != nil {
		return models.UpdateSummary{}, err
	}
	n = len(ids)

	summary, err = tm.storage.UpdateMany(ctx, ids, completed)
	if err != nil {
		return models.UpdateSummary{}, errorx.StoreError(err, "failed to update tasks")
	}

	logger.Info(ctx, "tasks completion updated",
		"completed", completed, "matched", summary.MatchedCount, "modified", summary.ModifiedCount)
	return summary, nil
}

// DeleteTasks removes every listed task with one batch delete. Unknown ids
// are ignored.
func (tm *TaskManager) DeleteTasks(ctx context.Context, ids []string) (summary models.DeleteSummary, err error) {
	ctx, op := startBulkOp(ctx, opDeleteMany)
	defer func() { op.end(err, len(ids)) }()

	summary, err = tm.storage.DeleteMany(ctx, ids)
	if err != nil {
		return models.DeleteSummary{}, errorx.StoreError(err, "failed to delete tasks")
	}

	logger.Info(ctx, "tasks deleted", "requested", len(ids), "deleted", summary.DeletedCount)
	return summary, nil
}
