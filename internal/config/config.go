// Package config loads service settings from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/zombar/textengine/internal/apperr"
	"github.com/zombar/textengine/internal/executor"
	"github.com/zombar/textengine/internal/llm"
)

// Config is the full set of service settings
type Config struct {
	Port string

	LLM      llm.Config
	Executor executor.Config
	// RPS limits backend calls per second; zero disables the limiter
	RPS   float64
	Burst int

	// JournalPath is the sqlite attempt journal; empty disables it
	JournalPath      string
	JournalRetention time.Duration

	RedisAddr         string
	WorkerConcurrency int

	LogLevel       string
	LogFormat      string
	OTLPEndpoint   string
	AllowedOrigins []string
}

// Load reads the environment. Files default to ".env"; missing files are
// ignored and variables already set win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, &apperr.ConfigurationError{Key: f, Message: "cannot read env file", Err: err}
		}
	}

	p := parser{}
	cfg := Config{
		Port: getEnv("PORT", "8080"),
		LLM: llm.Config{
			Provider:  llm.Provider(strings.ToLower(getEnv("LLM_PROVIDER", string(llm.ProviderOllama)))),
			Model:     getEnv("LLM_MODEL", ""),
			OllamaURL: getEnv("OLLAMA_URL", llm.DefaultOllamaURL),
			APIKey:    firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")),
		},
		Executor: executor.Config{
			MaxAttempts:    p.getInt("LLM_MAX_ATTEMPTS", executor.DefaultMaxAttempts),
			BaseDelay:      p.getDuration("LLM_BASE_DELAY", executor.DefaultBaseDelay),
			MaxDelay:       p.getDuration("LLM_MAX_DELAY", executor.DefaultMaxDelay),
			AttemptTimeout: p.getDuration("LLM_ATTEMPT_TIMEOUT", executor.DefaultAttemptTimeout),
		},
		RPS:               p.getFloat("LLM_RPS", 0),
		Burst:             p.getInt("LLM_BURST", 1),
		JournalPath:       getEnv("JOURNAL_PATH", ""),
		JournalRetention:  p.getDuration("JOURNAL_RETENTION", 7*24*time.Hour),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		WorkerConcurrency: p.getInt("WORKER_CONCURRENCY", 4),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "json")),
		OTLPEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		AllowedOrigins:    splitList(getEnv("CORS_ORIGINS", "*")),
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.Executor.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.RPS < 0 {
		return Config{}, &apperr.ConfigurationError{Key: "LLM_RPS", Message: "must not be negative"}
	}
	return cfg, nil
}

// Limiter returns the backend rate limiter, or nil when RPS is zero
func (c Config) Limiter() *rate.Limiter {
	if c.RPS <= 0 {
		return nil
	}
	burst := c.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.RPS), burst)
}

// Logger builds the process logger writing to w
func (c Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parser keeps the first malformed value it sees
type parser struct {
	err error
}

func (p *parser) getInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) getFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

// getDuration accepts Go durations ("750ms") and bare integers as milliseconds
func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = &apperr.ConfigurationError{Key: key, Message: fmt.Sprintf("invalid value %q", raw), Err: err}
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
