package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/tidwall/sjson"

	"task-api/internal/config"
	"task-api/internal/errorx"
	"task-api/internal/logger"
	"task-api/internal/manager"
	"task-api/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	command := os.Args[1]
	cmd, ok := commands[command]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printHelp()
		os.Exit(1)
	}

	fs := pflag.NewFlagSet(command, pflag.ExitOnError)
	config.RegisterFlags(fs)
	cmd.flags(fs)
	_ = fs.Parse(os.Args[2:])

	if err := run(fs, cmd.run); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	flags func(fs *pflag.FlagSet)
	run   func(ctx context.Context, tm *manager.TaskManager, fs *pflag.FlagSet) (any, error)
}

var commands = map[string]command{
	"add":      {flags: addFlags, run: handleAdd},
	"get":      {flags: idFlags, run: handleGet},
	"list":     {flags: idsFlags, run: handleList},
	"update":   {flags: updateFlags, run: handleUpdate},
	"complete": {flags: completeFlags, run: handleComplete},
	"delete":   {flags: idsFlags, run: handleDelete},
	"load":     {flags: fileFlags, run: handleLoad},
}

func run(fs *pflag.FlagSet, fn func(context.Context, *manager.TaskManager, *pflag.FlagSet) (any, error)) error {
	ctx := context.Background()

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	// Logs go to stderr so stdout stays pipeable JSON.
	logger.SetOutput(os.Stderr)
	if err := logger.Init("taskctl", cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	tm := manager.NewTaskManager(store, manager.WithBulkMode(manager.BulkMode(cfg.Bulk.Mode)))
	out, err := fn(ctx, tm, fs)
	if err != nil {
		return describe(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// describe folds the error body of a validation failure into the message.
func describe(err error) error {
	e, ok := errorx.As(err)
	if !ok || e.Type != errorx.ErrorTypeInvalidArgument {
		return err
	}
	body, _ := json.Marshal(e)
	return fmt.Errorf("%w %s", err, body)
}

func addFlags(fs *pflag.FlagSet) {
	fs.String("desc", "", "Task description")
	fs.Bool("completed", false, "Create the task already completed")
}

func idFlags(fs *pflag.FlagSet) {
	fs.String("id", "", "Task ID")
}

func idsFlags(fs *pflag.FlagSet) {
	fs.StringSlice("id", nil, "Task IDs, repeated or comma-separated")
}

func updateFlags(fs *pflag.FlagSet) {
	fs.String("id", "", "Task ID; omit to apply a batch of {id, ...} items from --file")
	fs.String("desc", "", "New description")
	fs.String("completed", "", "New completed state (true|false)")
	fs.String("file", "", "JSON file with an array of update items")
}

func completeFlags(fs *pflag.FlagSet) {
	idsFlags(fs)
	fs.Bool("completed", true, "Completed state to set")
}

func fileFlags(fs *pflag.FlagSet) {
	fs.String("file", "", "JSON file with an array of tasks")
}

func handleAdd(ctx context.Context, tm *manager.TaskManager, fs *pflag.FlagSet) (any, error) {
	desc, _ := fs.GetString("desc")
	completed, _ := fs.GetBool("completed")

	body, err := sjson.SetBytes([]byte(`{}`), "description", desc)
	if err != nil {
		return nil, err
	}
	if fs.Changed("completed") {
		if body, err = sjson.SetBytes(body, "completed", completed); err != nil {
			return nil, err
		}
	}
	return tm.CreateTask(ctx, body)
}

func handleGet(ctx context.Context, tm *manager.TaskManager, fs *pflag.FlagSet) (any, error) {
	id, _ := fs.GetString("id")
	if id == "" {
		return nil, fmt.Errorf("--id is required")
	}
	return tm.GetTask(ctx, id)
}

func handleList(ctx context.Context, tm *manager.TaskManager, fs *pflag.FlagSet) (any, error) {
	ids, _ := fs.GetStringSlice("id")
	return tm.GetTasks(ctx, ids)
}

func handleUpdate(ctx context.Context, tm *manager.TaskManager, fs *pflag.FlagSet) (any, error) {
	id, _ := fs.GetString("id")
	file, _ := fs.GetString("file")

	if id == "" {
		if file == "" {
			return nil, fmt.Errorf("--id or --file is required")
		}
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		return tm.UpdateTasks(ctx, raw)
	}

	body := []byte(`{}`)
	var err error
	if fs.Changed("desc") {
		desc, _ := fs.GetString("desc")
		if body, err = sjson.SetBytes(body, "description", desc); err != nil {
			return nil, err
		}
	}
	if fs.Changed("completed") {
		v, _ := fs.GetString("completed")
		// Raw so a non-boolean value reaches validation as-is.
		if body, err = sjson.SetRawBytes(body, "completed", []byte(rawScalar(v))); err != nil {
			return nil, err
		}
	}
	return tm.UpdateTask(ctx, id, body)
}

func handleComplete(ctx context.Context, tm *manager.TaskManager, fs *pflag.FlagSet) (any, error) {
	ids, _ := fs.GetStringSlice("id")
	if ids == nil {
		ids = []string{}
	}
	completed, _ := fs.GetBool("completed")

	body, err := sjson.SetBytes([]byte(`[]`), "-1", ids)
	if err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "-1", map[string]bool{"completed": completed}); err != nil {
		return nil, err
	}
	return tm.CompleteTasks(ctx, body)
}

func handleDelete(ctx context.Context, tm *manager.TaskManager, fs *pflag.FlagSet) (any, error) {
	ids, _ := fs.GetStringSlice("id")
	if len(ids) == 1 {
		return tm.DeleteTask(ctx, ids[0])
	}
	return tm.DeleteTasks(ctx, ids)
}

func handleLoad(ctx context.Context, tm *manager.TaskManager, fs *pflag.FlagSet) (any, error) {
	file, _ := fs.GetString("file")
	if file == "" {
		return nil, fmt.Errorf("--file is required")
	}
	if !strings.HasSuffix(file, ".json") {
		return nil, fmt.Errorf("unsupported file format, use .json")
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return tm.CreateTasks(ctx, raw)
}

// rawScalar keeps JSON literals and quotes anything else.
func rawScalar(v string) string {
	switch v {
	case "true", "false", "null":
		return v
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func printHelp() {
	fmt.Println(`Usage: taskctl <command> [flags]

Commands:
  add      --desc="..." [--completed]                  Add new task
  get      --id=ID                                     Show one task
  list     --id=ID[,ID...]                             Show tasks by id
  update   --id=ID [--desc="..."] [--completed=BOOL]   Update one task
  update   --file=FILE                                 Apply a batch of {id, ...} updates
  complete --id=ID[,ID...] [--completed=false]         Set completed on many tasks
  delete   --id=ID[,ID...]                             Delete tasks
  load     --file=FILE                                 Create every task in a JSON array

Every command also accepts the server's store flags (--store.driver,
--store.sqlite.path, --config, ...) and TASKAPI_* environment variables.`)
}
