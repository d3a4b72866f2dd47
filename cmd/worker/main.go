package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/zombar/textengine/internal/config"
	"github.com/zombar/textengine/internal/database"
	"github.com/zombar/textengine/internal/engine"
	"github.com/zombar/textengine/internal/executor"
	"github.com/zombar/textengine/internal/queue"
	"github.com/zombar/textengine/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	var (
		redisAddr   = flag.String("redis", cfg.RedisAddr, "Redis address (env: REDIS_ADDR)")
		concurrency = flag.Int("concurrency", cfg.WorkerConcurrency, "Concurrent jobs (env: WORKER_CONCURRENCY)")
		journalPath = flag.String("journal", cfg.JournalPath, "Attempt journal sqlite path, empty disables (env: JOURNAL_PATH)")
	)
	flag.Parse()

	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)

	if *redisAddr == "" {
		logger.Error("REDIS_ADDR is required for the worker")
		os.Exit(1)
	}

	tp, err := tracing.InitTracer(context.Background(), "textengine-worker", cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
	}

	var opts []executor.Option
	if *journalPath != "" {
		db, err := database.New(*journalPath)
		if err != nil {
			logger.Error("failed to initialize attempt journal", "error", err, "journal_path", *journalPath)
			os.Exit(1)
		}
		defer db.Close()
		opts = append(opts, executor.WithObserver(db))
	}

	eng, err := engine.FromConfig(cfg, logger, opts...)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	worker := queue.NewWorker(queue.WorkerConfig{
		RedisAddr:   *redisAddr,
		Concurrency: *concurrency,
	}, queue.NewHandlers(eng, logger.With("component", "queue")), logger)

	// Run blocks until SIGINT or SIGTERM and shuts down gracefully
	if err := worker.Start(); err != nil {
		logger.Error("worker stopped with error", "error", err)
		os.Exit(1)
	}
}
