package engine

import (
	"log/slog"

	"github.com/zombar/textengine/internal/config"
	"github.com/zombar/textengine/internal/executor"
	"github.com/zombar/textengine/internal/llm"
)

// FromConfig builds an Engine for the configured provider. The backend client
// is created on first use, so missing credentials surface from the first call.
func FromConfig(cfg config.Config, logger *slog.Logger, opts ...executor.Option) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	handle := llm.NewHandle(llm.NewFactory(cfg.LLM))
	base := []executor.Option{
		executor.WithLogger(logger.With("component", "executor")),
		executor.WithLimiter(cfg.Limiter()),
	}
	exec, err := executor.New(handle, cfg.Executor, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return New(exec, logger.With("component", "engine")), nil
}
