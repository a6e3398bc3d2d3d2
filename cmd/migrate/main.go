package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/pflag"

	"task-api/internal/config"
	"task-api/internal/logger"
	"task-api/internal/storage"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fs := pflag.NewFlagSet("migrate", pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		logger.Error(ctx, err, "failed to load config")
		os.Exit(1)
	}
	if err := logger.Init("migrate", cfg.Log.Level, cfg.Log.Format); err != nil {
		logger.Error(ctx, err, "failed to init logger")
		os.Exit(1)
	}

	// Open migrates on its own when automigrate is set.
	cfg.Store.AutoMigrate = false
	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		logger.Error(ctx, err, "failed to open store", "driver", cfg.Store.Driver)
		os.Exit(1)
	}
	defer store.Close()

	logger.Info(ctx, "migrating store", "driver", cfg.Store.Driver)
	if err := store.Migrate(ctx); err != nil {
		logger.Error(ctx, err, "migration failed")
		store.Close()
		os.Exit(1)
	}
	logger.Info(ctx, "migration complete")
}
