package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"task-api/internal/logger"
	"task-api/internal/models"
)

const taskColumns = "id, description, completed, created_at, updated_at"

type SQLiteStorage struct {
	db *sql.DB
}

var _ Store = (*SQLiteStorage)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteStorage opens dbPath with the given database/sql driver:
// "sqlite" (modernc, pure Go) or "sqlite3" (mattn, cgo).
func NewSQLiteStorage(ctx context.Context, driver, dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "connect to sqlite database")
	}

	logger.Info(ctx, "sqlite database opened", "driver", driver, "path", dbPath)
	return &SQLiteStorage{db: db}, nil
}

// Migrate creates the tasks table if it does not exist yet.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	createTasksTable := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`

	if _, err := s.db.ExecContext(ctx, createTasksTable); err != nil {
		return errors.Wrap(err, "create table tasks")
	}
	return nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func newSQLiteTask(t models.NewTask, now time.Time) models.Task {
	return models.Task{
		ID:          uuid.NewString(),
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func insertTask(ctx context.Context, q queryer, task models.Task) error {
	query := `
	INSERT INTO tasks (id, description, completed, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		task.ID, task.Description, task.Completed, task.CreatedAt, task.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) Insert(ctx context.Context, t models.NewTask) (*models.Task, error) {
	task := newSQLiteTask(t, time.Now().UTC())
	if err := insertTask(ctx, s.db, task); err != nil {
		return nil, errors.Wrap(err, "insert task")
	}
	return &task, nil
}

// InsertMany writes every task in one transaction: all or nothing.
func (s *SQLiteStorage) InsertMany(ctx context.Context, ts []models.NewTask) ([]models.Task, error) {
	tasks := make([]models.Task, 0, len(ts))
	now := time.Now().UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range ts {
			task := newSQLiteTask(t, now)
			if err := insertTask(ctx, tx, task); err != nil {
				return err
			}
			tasks = append(tasks, task)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "insert tasks")
	}
	return tasks, nil
}

func findByID(ctx context.Context, q queryer, id string) (*models.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE id = ?"

	var task models.Task
	err := q.QueryRowContext(ctx, query, id).Scan(
		&task.ID, &task.Description, &task.Completed, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (s *SQLiteStorage) FindByID(ctx context.Context, id string) (*models.Task, error) {
	task, err := findByID(ctx, s.db, id)
	if err != nil {
		return nil, errors.Wrapf(err, "find task %s", id)
	}
	return task, nil
}

// FindByIDAndUpdate applies the fields set in patch and returns the task as
// it is after the update. An empty patch is a plain lookup.
func (s *SQLiteStorage) FindByIDAndUpdate(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	if patch.IsEmpty() {
		return s.FindByID(ctx, id)
	}

	query := `
	UPDATE tasks
	SET description = COALESCE(?, description), completed = COALESCE(?, completed), updated_at = ?
	WHERE id = ?`

	var description sql.NullString
	if patch.Description != nil {
		description = sql.NullString{String: *patch.Description, Valid: true}
	}
	var completed sql.NullBool
	if patch.Completed != nil {
		completed = sql.NullBool{Bool: *patch.Completed, Valid: true}
	}

	var task *models.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, query, description, completed, time.Now().UTC(), id)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return nil
		}
		task, err = findByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "update task %s", id)
	}
	return task, nil
}

func (s *SQLiteStorage) FindByIDAndDelete(ctx context.Context, id string) (*models.Task, error) {
	var task *models.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		task, err = findByID(ctx, tx, id)
		if err != nil || task == nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "delete task %s", id)
	}
	return task, nil
}

// FindIn returns the tasks whose id is in ids. Unknown ids are skipped.
func (s *SQLiteStorage) FindIn(ctx context.Context, ids []string) ([]models.Task, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return []models.Task{}, nil
	}

	tasks := []models.Task{}
	for _, chunk := range lo.Chunk(ids, maxInArgs) {
		in, args := inClause(chunk)
		query := "SELECT " + taskColumns + " FROM tasks WHERE id IN " + in + " ORDER BY created_at"

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, errors.Wrap(err, "find tasks")
		}
		found, err := scanTasks(rows)
		rows.Close()
		if err != nil {
			return nil, errors.Wrap(err, "scan tasks")
		}
		tasks = append(tasks, found...)
	}
	return tasks, nil
}

// UpdateMany sets completed on every task in ids within one transaction.
// Rows already holding the value count as matched but not modified.
func (s *SQLiteStorage) UpdateMany(ctx context.Context, ids []string, completed bool) (models.UpdateSummary, error) {
	summary := models.UpdateSummary{Acknowledged: true}
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return summary, nil
	}

	now := time.Now().UTC()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, chunk := range lo.Chunk(ids, maxInArgs) {
			in, args := inClause(chunk)

			var matched int64
			err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE id IN "+in, args...).Scan(&matched)
			if err != nil {
				return err
			}

			query := "UPDATE tasks SET completed = ?, updated_at = ? WHERE completed != ? AND id IN " + in
			result, err := tx.ExecContext(ctx, query, append([]any{completed, now, completed}, args...)...)
			if err != nil {
				return err
			}
			modified, err := result.RowsAffected()
			if err != nil {
				return err
			}
			summary.MatchedCount += matched
			summary.ModifiedCount += modified
		}
		return nil
	})
	if err != nil {
		return models.UpdateSummary{}, errors.Wrap(err, "update tasks")
	}
	return summary, nil
}

func (s *SQLiteStorage) DeleteMany(ctx context.Context, ids []string) (models.DeleteSummary, error) {
	summary := models.DeleteSummary{Acknowledged: true}
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return summary, nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, chunk := range lo.Chunk(ids, maxInArgs) {
			in, args := inClause(chunk)
			result, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id IN "+in, args...)
			if err != nil {
				return err
			}
			deleted, err := result.RowsAffected()
			if err != nil {
				return err
			}
			summary.DeletedCount += deleted
		}
		return nil
	})
	if err != nil {
		return models.DeleteSummary{}, errors.Wrap(err, "delete tasks")
	}
	return summary, nil
}

func (s *SQLiteStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// maxInArgs keeps every IN list below SQLite's bound parameter limit, which
// is 999 on older builds.
const maxInArgs = 500

// inClause renders "(?, ?, ...)" for ids along with the matching args.
func inClause(ids []string) (string, []any) {
	args := lo.Map(ids, func(id string, _ int) any { return id })
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ") + ")", args
}

// scanTasks drains rows; callers close them.
func scanTasks(rows *sql.Rows) ([]models.Task, error) {
	tasks := []models.Task{}
	for rows.Next() {
		var task models.Task
		err := rows.Scan(
			&task.ID, &task.Description, &task.Completed, &task.CreatedAt, &task.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
