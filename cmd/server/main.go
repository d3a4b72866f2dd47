package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zombar/textengine/internal/api"
	"github.com/zombar/textengine/internal/config"
	"github.com/zombar/textengine/internal/database"
	"github.com/zombar/textengine/internal/engine"
	"github.com/zombar/textengine/internal/executor"
	"github.com/zombar/textengine/internal/llm"
	"github.com/zombar/textengine/internal/metrics"
	"github.com/zombar/textengine/internal/queue"
	"github.com/zombar/textengine/internal/tracing"
	"github.com/zombar/textengine/pkg/logging"
)

const serviceName = "textengine"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	var (
		port        = flag.String("port", cfg.Port, "Server port (env: PORT)")
		journalPath = flag.String("journal", cfg.JournalPath, "Attempt journal sqlite path, empty disables (env: JOURNAL_PATH)")
		provider    = flag.String("provider", string(cfg.LLM.Provider), "Backend provider: ollama or gemini (env: LLM_PROVIDER)")
		model       = flag.String("model", cfg.LLM.Model, "Backend model (env: LLM_MODEL)")
		ollamaURL   = flag.String("ollama-url", cfg.LLM.OllamaURL, "Ollama API URL (env: OLLAMA_URL)")
		redisAddr   = flag.String("redis", cfg.RedisAddr, "Redis address for async jobs, empty disables (env: REDIS_ADDR)")
	)
	flag.Parse()
	cfg.Port, cfg.JournalPath, cfg.RedisAddr = *port, *journalPath, *redisAddr
	cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.OllamaURL = llm.Provider(*provider), *model, *ollamaURL

	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)
	logger.Info("textengine service initializing", "version", "1.0.0")

	tp, err := tracing.InitTracer(context.Background(), serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
	}

	reg := newRegistry()
	execOpts := []executor.Option{executor.WithMetrics(metrics.NewExecutor(serviceName, reg))}
	apiOpts := api.Options{
		Registry:       reg,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	}

	if cfg.JournalPath != "" {
		db, err := database.New(cfg.JournalPath)
		if err != nil {
			logger.Error("failed to initialize attempt journal", "error", err, "journal_path", cfg.JournalPath)
			os.Exit(1)
		}
		defer db.Close()

		execOpts = append(execOpts, executor.WithObserver(db))
		apiOpts.Journal = db
		go maintainJournal(db, metrics.NewDatabase(serviceName, reg), cfg.JournalRetention, logger)
		logger.Info("attempt journal enabled", "journal_path", cfg.JournalPath)
	}

	eng, err := engine.FromConfig(cfg, logger, execOpts...)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	if cfg.RedisAddr != "" {
		client := queue.NewClient(queue.ClientConfig{RedisAddr: cfg.RedisAddr})
		defer client.Close()
		inspector := queue.NewInspector(cfg.RedisAddr)
		defer inspector.Close()

		apiOpts.Jobs = client
		apiOpts.JobStatus = inspector
		logger.Info("async jobs enabled", "redis_addr", cfg.RedisAddr)
	}

	// tracing -> HTTP logging -> handlers, so access log lines carry the
	// server span's ids
	handler := tracing.HTTPMiddleware(serviceName)(
		logging.HTTPLoggingMiddleware(logger)(api.NewHandler(eng, apiOpts)),
	)

	// Write timeout covers a full retry budget plus the backoff waits
	writeTimeout := time.Duration(cfg.Executor.MaxAttempts)*(cfg.Executor.AttemptTimeout+cfg.Executor.MaxDelay) + 30*time.Second
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("textengine service starting",
			"port", cfg.Port,
			"provider", cfg.LLM.Provider,
			"model", cfg.LLM.Model,
			"max_attempts", cfg.Executor.MaxAttempts,
			"base_delay", cfg.Executor.BaseDelay,
			"attempt_timeout", cfg.Executor.AttemptTimeout,
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// newRegistry returns the process registry with runtime collectors attached
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// maintainJournal refreshes the pool gauges and prunes old attempts
func maintainJournal(db *database.DB, m *metrics.Database, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	lastPrune := time.Time{}
	for range ticker.C {
		m.UpdateDBStats(db.Conn())

		if retention <= 0 || time.Since(lastPrune) < time.Hour {
			continue
		}
		lastPrune = time.Now()
		n, err := db.PruneAttempts(context.Background(), time.Now().Add(-retention))
		if err != nil {
			logger.Warn("failed to prune attempt journal", "error", err)
			continue
		}
		if n > 0 {
			logger.Info("pruned attempt journal", "rows", n)
		}
	}
}
