package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	server "task-api"
	"task-api/internal/config"
	"task-api/internal/logger"
	"task-api/internal/manager"
	"task-api/internal/storage"
	"task-api/internal/tracing"
)

func main() {
	if err := run(); err != nil {
		logger.Error(context.Background(), err, "taskd stopped")
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("taskd", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	if err := logger.Init("taskd", cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup("taskd", cfg.Tracing.Exporter, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error(ctx, err, "failed to flush spans")
		}
	}()

	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info(ctx, "store ready", "driver", cfg.Store.Driver)

	tm := manager.NewTaskManager(store, manager.WithBulkMode(manager.BulkMode(cfg.Bulk.Mode)))
	router := server.NewRouter(tm,
		server.WithCORS(cfg.HTTP.CORSOrigins),
		server.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
	)

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx, "http server starting", "addr", cfg.HTTP.Addr, "bulk_mode", string(tm.Mode()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "shutting down http server")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}
