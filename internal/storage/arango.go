package storage

import (
	"context"
	"time"

	arangoDriver "github.com/arangodb/go-driver"
	arangoHTTP "github.com/arangodb/go-driver/http"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"task-api/internal/config"
	"task-api/internal/logger"
	"task-api/internal/models"
)

type arangoTask struct {
	Key         string    `json:"_key,omitempty"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (d arangoTask) task() models.Task {
	return models.Task{
		ID:          d.Key,
		Description: d.Description,
		Completed:   d.Completed,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// ArangoStorage stores tasks as documents keyed by _key. Every operation,
// batches included, is a single AQL query.
type ArangoStorage struct {
	client     arangoDriver.Client
	db         arangoDriver.Database
	collection string
}

var _ Store = (*ArangoStorage)(nil)

// NewArangoStorage connects and opens cfg.Database, creating it when missing.
func NewArangoStorage(ctx context.Context, cfg config.Arango) (*ArangoStorage, error) {
	conn, err := arangoHTTP.NewConnection(arangoHTTP.ConnectionConfig{
		Endpoints: cfg.Endpoints,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create arango connection")
	}

	client, err := arangoDriver.NewClient(arangoDriver.ClientConfig{
		Connection:     conn,
		Authentication: arangoDriver.BasicAuthentication(cfg.User, cfg.Password),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create arango client")
	}

	exists, err := client.DatabaseExists(ctx, cfg.Database)
	if err != nil {
		return nil, errors.Wrap(err, "check arango database")
	}

	var db arangoDriver.Database
	if exists {
		db, err = client.Database(ctx, cfg.Database)
	} else {
		db, err = client.CreateDatabase(ctx, cfg.Database, &arangoDriver.CreateDatabaseOptions{})
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open arango database %s", cfg.Database)
	}

	logger.Info(ctx, "arango connected", "database", cfg.Database, "collection", cfg.Collection)
	return &ArangoStorage{client: client, db: db, collection: cfg.Collection}, nil
}

func (a *ArangoStorage) Migrate(ctx context.Context) error {
	exist, err := a.db.CollectionExists(ctx, a.collection)
	if err != nil {
		return errors.Wrap(err, "check collection")
	}
	if exist {
		return nil
	}
	_, err = a.db.CreateCollection(ctx, a.collection, nil)
	return errors.Wrapf(err, "create collection %s", a.collection)
}

func (a *ArangoStorage) Ping(ctx context.Context) error {
	_, err := a.client.Version(ctx)
	return err
}

// Close is a no-op: the HTTP connection holds no session.
func (a *ArangoStorage) Close() error {
	return nil
}

func (a *ArangoStorage) bind(vars map[string]interface{}) map[string]interface{} {
	vars["@collection"] = a.collection
	return vars
}

func readAll[T any](ctx context.Context, cursor arangoDriver.Cursor) ([]T, error) {
	defer cursor.Close()

	out := []T{}
	for {
		var doc T
		_, err := cursor.ReadDocument(ctx, &doc)
		if arangoDriver.IsNoMoreDocuments(err) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
}

func (a *ArangoStorage) queryTasks(ctx context.Context, aql string, vars map[string]interface{}) ([]models.Task, error) {
	cursor, err := a.db.Query(ctx, aql, a.bind(vars))
	if err != nil {
		return nil, err
	}
	docs, err := readAll[arangoTask](ctx, cursor)
	if err != nil {
		return nil, err
	}
	return lo.Map(docs, func(d arangoTask, _ int) models.Task { return d.task() }), nil
}

func (a *ArangoStorage) queryOne(ctx context.Context, aql string, vars map[string]interface{}) (*models.Task, error) {
	tasks, err := a.queryTasks(ctx, aql, vars)
	if err != nil || len(tasks) == 0 {
		return nil, err
	}
	return &tasks[0], nil
}

func newArangoTask(t models.NewTask, now time.Time) arangoTask {
	return arangoTask{
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (a *ArangoStorage) Insert(ctx context.Context, t models.NewTask) (*models.Task, error) {
	task, err := a.queryOne(ctx, `INSERT @doc INTO @@collection RETURN NEW`, map[string]interface{}{
		"doc": newArangoTask(t, time.Now().UTC()),
	})
	if err != nil {
		return nil, errors.Wrap(err, "insert task")
	}
	return task, nil
}

func (a *ArangoStorage) InsertMany(ctx context.Context, ts []models.NewTask) ([]models.Task, error) {
	if len(ts) == 0 {
		return []models.Task{}, nil
	}

	now := time.Now().UTC()
	docs := lo.Map(ts, func(t models.NewTask, _ int) arangoTask { return newArangoTask(t, now) })

	tasks, err := a.queryTasks(ctx, `
		FOR d IN @docs
			INSERT d INTO @@collection
			RETURN NEW
		`, map[string]interface{}{
		"docs": docs,
	})
	if err != nil {
		return nil, errors.Wrap(err, "insert tasks")
	}
	return tasks, nil
}

func (a *ArangoStorage) FindByID(ctx context.Context, id string) (*models.Task, error) {
	task, err := a.queryOne(ctx, `
		FOR d IN @@collection
			FILTER d._key == @key
			RETURN d
		`, map[string]interface{}{
		"key": id,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "find task %s", id)
	}
	return task, nil
}

func (a *ArangoStorage) FindByIDAndUpdate(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	if patch.IsEmpty() {
		return a.FindByID(ctx, id)
	}

	set := map[string]interface{}{"updated_at": time.Now().UTC()}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Completed != nil {
		set["completed"] = *patch.Completed
	}

	task, err := a.queryOne(ctx, `
		FOR d IN @@collection
			FILTER d._key == @key
			UPDATE d WITH @patch IN @@collection
			RETURN NEW
		`, map[string]interface{}{
		"key":   id,
		"patch": set,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "update task %s", id)
	}
	return task, nil
}

func (a *ArangoStorage) FindByIDAndDelete(ctx context.Context, id string) (*models.Task, error) {
	task, err := a.queryOne(ctx, `
		FOR d IN @@collection
			FILTER d._key == @key
			REMOVE d IN @@collection
			RETURN OLD
		`, map[string]interface{}{
		"key": id,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "delete task %s", id)
	}
	return task, nil
}

func (a *ArangoStorage) FindIn(ctx context.Context, ids []string) ([]models.Task, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return []models.Task{}, nil
	}

	tasks, err := a.queryTasks(ctx, `
		FOR d IN @@collection
			FILTER d._key IN @keys
			RETURN d
		`, map[string]interface{}{
		"keys": ids,
	})
	if err != nil {
		return nil, errors.Wrap(err, "find tasks")
	}
	return tasks, nil
}

type arangoUpdateCounts struct {
	Matched  int64 `json:"matched"`
	Modified int64 `json:"modified"`
}

func (a *ArangoStorage) UpdateMany(ctx context.Context, ids []string, completed bool) (models.UpdateSummary, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return models.UpdateSummary{Acknowledged: true}, nil
	}

	cursor, err := a.db.Query(ctx, `
		LET matched = (FOR d IN @@collection FILTER d._key IN @keys RETURN d)
		LET modified = (
			FOR d IN matched
				FILTER d.completed != @completed
				UPDATE d WITH { completed: @completed, updated_at: @now } IN @@collection
				RETURN 1
		)
		RETURN { matched: LENGTH(matched), modified: LENGTH(modified) }
		`, a.bind(map[string]interface{}{
		"keys":      ids,
		"completed": completed,
		"now":       time.Now().UTC(),
	}))
	if err != nil {
		return models.UpdateSummary{}, errors.Wrap(err, "update tasks")
	}

	counts, err := readAll[arangoUpdateCounts](ctx, cursor)
	if err != nil {
		return models.UpdateSummary{}, errors.Wrap(err, "read update counts")
	}
	if len(counts) == 0 {
		return models.UpdateSummary{}, errors.New("update tasks: empty result")
	}
	return models.UpdateSummary{
		Acknowledged:  true,
		MatchedCount:  counts[0].Matched,
		ModifiedCount: counts[0].Modified,
	}, nil
}

func (a *ArangoStorage) DeleteMany(ctx context.Context, ids []string) (models.DeleteSummary, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return models.DeleteSummary{Acknowledged: true}, nil
	}

	cursor, err := a.db.Query(ctx, `
		LET removed = (
			FOR d IN @@collection
				FILTER d._key IN @keys
				REMOVE d IN @@collection
				RETURN 1
		)
		RETURN LENGTH(removed)
		`, a.bind(map[string]interface{}{
		"keys": ids,
	}))
	if err != nil {
		return models.DeleteSummary{}, errors.Wrap(err, "delete tasks")
	}

	counts, err := readAll[int64](ctx, cursor)
	if err != nil {
		return models.DeleteSummary{}, errors.Wrap(err, "read delete count")
	}
	if len(counts) == 0 {
		return models.DeleteSummary{}, errors.New("delete tasks: empty result")
	}
	return models.DeleteSummary{Acknowledged: true, DeletedCount: counts[0]}, nil
}
