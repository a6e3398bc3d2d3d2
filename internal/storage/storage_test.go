package storage

import (
	"context"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-api/internal/config"
	"task-api/internal/models"
)

var ignoreTimestamps = cmpopts.IgnoreFields(models.Task{}, "CreatedAt", "UpdatedAt")

// sqliteDrivers lists the SQLite drivers built into the test binary.
var sqliteDrivers = []string{config.DriverSQLite}

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	stores := map[string]Store{"memory": NewMemoryStorage()}
	for _, driver := range sqliteDrivers {
		s, err := Open(ctx, config.Store{
			Driver:      driver,
			AutoMigrate: true,
			SQLite:      config.SQLite{Path: ":memory:"},
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		stores[driver] = s
	}
	return stores
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

func seed(t *testing.T, s Store, descriptions ...string) []models.Task {
	t.Helper()
	ts := lo.Map(descriptions, func(d string, _ int) models.NewTask { return models.NewTask{Description: d} })
	tasks, err := s.InsertMany(context.Background(), ts)
	require.NoError(t, err)
	return tasks
}

func ids(tasks []models.Task) []string {
	return lo.Map(tasks, func(t models.Task, _ int) string { return t.ID })
}

func TestInsertAndFind(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		task, err := s.Insert(ctx, models.NewTask{Description: "Learn to code", Completed: true})
		require.NoError(t, err)
		assert.NotEmpty(t, task.ID)
		assert.False(t, task.CreatedAt.IsZero())

		got, err := s.FindByID(ctx, task.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		if diff := cmp.Diff(*task, *got, ignoreTimestamps); diff != "" {
			t.Errorf("FindByID mismatch (-want +got):\n%s", diff)
		}

		missing, err := s.FindByID(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestInsertMany(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		tasks := seed(t, s, "a", "b", "c")
		require.Len(t, tasks, 3)
		assert.Equal(t, []string{"a", "b", "c"}, lo.Map(tasks, func(t models.Task, _ int) string { return t.Description }))
		assert.Len(t, lo.Uniq(ids(tasks)), 3)

		empty, err := s.InsertMany(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestFindByIDAndUpdate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		task := seed(t, s, "Learn to code")[0]

		completed := true
		got, err := s.FindByIDAndUpdate(ctx, task.ID, models.TaskPatch{Completed: &completed})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Completed)
		assert.Equal(t, "Learn to code", got.Description)

		description := "Learn Go"
		got, err = s.FindByIDAndUpdate(ctx, task.ID, models.TaskPatch{Description: &description})
		require.NoError(t, err)
		assert.Equal(t, "Learn Go", got.Description)
		assert.True(t, got.Completed)

		t.Run("empty patch resolves the task", func(t *testing.T) {
			got, err := s.FindByIDAndUpdate(ctx, task.ID, models.TaskPatch{})
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "Learn Go", got.Description)
		})

		t.Run("missing task", func(t *testing.T) {
			got, err := s.FindByIDAndUpdate(ctx, "does-not-exist", models.TaskPatch{Completed: &completed})
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	})
}

func TestFindByIDAndDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		task := seed(t, s, "Learn to code")[0]

		got, err := s.FindByIDAndDelete(ctx, task.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, task.ID, got.ID)

		got, err = s.FindByIDAndDelete(ctx, task.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestFindIn(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		tasks := seed(t, s, "a", "b", "c")

		got, err := s.FindIn(ctx, []string{tasks[0].ID, "missing", tasks[2].ID, tasks[0].ID})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{tasks[0].ID, tasks[2].ID}, ids(got))

		got, err = s.FindIn(ctx, nil)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestUpdateMany(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		tasks := seed(t, s, "a", "b", "c")

		summary, err := s.UpdateMany(ctx, []string{tasks[0].ID, tasks[1].ID, "missing"}, true)
		require.NoError(t, err)
		assert.Equal(t, models.UpdateSummary{Acknowledged: true, MatchedCount: 2, ModifiedCount: 2}, summary)

		got, err := s.FindIn(ctx, ids(tasks))
		require.NoError(t, err)
		completed := lo.FilterMap(got, func(t models.Task, _ int) (string, bool) { return t.ID, t.Completed })
		assert.ElementsMatch(t, []string{tasks[0].ID, tasks[1].ID}, completed)

		t.Run("already set counts as matched only", func(t *testing.T) {
			summary, err := s.UpdateMany(ctx, []string{tasks[0].ID, tasks[2].ID}, true)
			require.NoError(t, err)
			assert.Equal(t, int64(2), summary.MatchedCount)
			assert.Equal(t, int64(1), summary.ModifiedCount)
		})

		t.Run("no ids", func(t *testing.T) {
			summary, err := s.UpdateMany(ctx, nil, true)
			require.NoError(t, err)
			assert.Equal(t, models.UpdateSummary{Acknowledged: true}, summary)
		})
	})
}

func TestDeleteMany(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		tasks := seed(t, s, "a", "b", "c")

		summary, err := s.DeleteMany(ctx, []string{tasks[0].ID, tasks[1].ID, "missing"})
		require.NoError(t, err)
		assert.Equal(t, models.DeleteSummary{Acknowledged: true, DeletedCount: 2}, summary)

		got, err := s.FindIn(ctx, ids(tasks))
		require.NoError(t, err)
		assert.Equal(t, []string{tasks[2].ID}, ids(got))
	})
}

func TestBatchBeyondBindLimit(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		tasks := seed(t, s, "Do Laundry", "Check emails", "Study")

		// More distinct ids than SQLite accepts as bound parameters.
		batch := lo.Times(40000, func(i int) string { return strconv.Itoa(i) })
		batch = append(batch, ids(tasks)...)

		found, err := s.FindIn(ctx, batch)
		require.NoError(t, err)
		assert.ElementsMatch(t, ids(tasks), ids(found))

		updated, err := s.UpdateMany(ctx, batch, true)
		require.NoError(t, err)
		assert.Equal(t, models.UpdateSummary{Acknowledged: true, MatchedCount: 3, ModifiedCount: 3}, updated)

		deleted, err := s.DeleteMany(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, models.DeleteSummary{Acknowledged: true, DeletedCount: 3}, deleted)

		left, err := s.FindIn(ctx, ids(tasks))
		require.NoError(t, err)
		assert.Empty(t, left)
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(ctx, config.Store{Driver: "postgres"})
		assert.Error(t, err)
	})

	t.Run("sqlite file is created with its directory", func(t *testing.T) {
		path := t.TempDir() + "/nested/tasks.db"
		s, err := Open(ctx, config.Store{
			Driver:      config.DriverSQLite,
			AutoMigrate: true,
			SQLite:      config.SQLite{Path: path},
		})
		require.NoError(t, err)
		defer s.Close()

		assert.NoError(t, s.Ping(ctx))
		assert.NoError(t, s.Migrate(ctx))
	})

	t.Run("memory", func(t *testing.T) {
		s, err := Open(ctx, config.Store{Driver: config.DriverMemory})
		require.NoError(t, err)
		assert.IsType(t, &MemoryStorage{}, s)
	})
}
