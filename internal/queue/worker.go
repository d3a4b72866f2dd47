package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Worker wraps the Asynq server for processing tasks
type Worker struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	concurrency int
	logger      *slog.Logger
}

// WorkerConfig contains configuration for the queue worker
type WorkerConfig struct {
	RedisAddr   string
	Concurrency int
}

// retryDelays are the queue-level delays between whole-job retries. The
// executor already retries individual backend calls inside each run.
var retryDelays = []time.Duration{
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
}

// NewWorker creates a new queue worker running handlers
func NewWorker(cfg WorkerConfig, handlers *Handlers, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	serverCfg := asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          map[string]int{QueueName: 1},
		RetryDelayFunc:  retryDelay,
		ShutdownTimeout: 30 * time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)

			logger.Error("task processing error",
				"task_type", task.Type(),
				"error", err,
				"retry_count", retried,
				"max_retries", maxRetry,
			)
		}),
	}

	mux := asynq.NewServeMux()
	handlers.Register(mux)

	return &Worker{
		server:      asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, serverCfg),
		mux:         mux,
		concurrency: cfg.Concurrency,
		logger:      logger,
	}
}

// Start runs the worker. It blocks until SIGINT or SIGTERM, then waits for
// in-flight tasks up to the shutdown timeout.
func (w *Worker) Start() error {
	w.logger.Info("starting asynq worker",
		"concurrency", w.concurrency,
		"queue", QueueName,
	)

	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("asynq server error: %w", err)
	}
	return nil
}

func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < len(retryDelays) {
		return retryDelays[n]
	}
	return retryDelays[len(retryDelays)-1]
}
