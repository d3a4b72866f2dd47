package llm

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/zombar/textengine/internal/apperr"
)

// Factory builds a backend client. It is called lazily on first use.
type Factory func(ctx context.Context) (Completer, error)

// Handle is the process-wide backend client. The client is created on the
// first call to Get, reused afterwards and rebuilt after Reset (for example
// when credentials are rotated). Factory errors are not cached.
type Handle struct {
	mu      sync.Mutex
	factory Factory
	client  Completer
}

// NewHandle returns a handle that builds its client with factory
func NewHandle(factory Factory) *Handle {
	return &Handle{factory: factory}
}

// Static returns a handle that always yields c
func Static(c Completer) *Handle {
	return &Handle{client: c, factory: func(context.Context) (Completer, error) { return c, nil }}
}

// Get returns the client, building it if needed
func (h *Handle) Get(ctx context.Context) (Completer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client != nil {
		return h.client, nil
	}
	c, err := h.factory(ctx)
	if err != nil {
		return nil, err
	}
	h.client = c
	return c, nil
}

// Reset drops the cached client so the next Get rebuilds it
func (h *Handle) Reset() {
	h.mu.Lock()
	h.client = nil
	h.mu.Unlock()
}

// Config selects and parameterises a backend
type Config struct {
	Provider  Provider
	Model     string
	OllamaURL string
	APIKey    string
	HTTP      *http.Client
}

// NewFactory returns a Factory for cfg. Missing or invalid settings surface
// as *apperr.ConfigurationError when the client is first needed.
func NewFactory(cfg Config) Factory {
	return func(ctx context.Context) (Completer, error) {
		switch Provider(strings.ToLower(string(cfg.Provider))) {
		case ProviderOllama, "":
			c, err := NewOllama(cfg.OllamaURL, cfg.Model, cfg.HTTP)
			if err != nil {
				return nil, &apperr.ConfigurationError{Key: "OLLAMA_URL", Message: "cannot build ollama client", Err: err}
			}
			return c, nil
		case ProviderGemini:
			if strings.TrimSpace(cfg.APIKey) == "" {
				return nil, &apperr.ConfigurationError{Key: "GEMINI_API_KEY", Message: "api key is not set"}
			}
			c, err := NewGemini(ctx, cfg.APIKey, cfg.Model)
			if err != nil {
				return nil, &apperr.ConfigurationError{Key: "GEMINI_API_KEY", Message: "cannot build gemini client", Err: err}
			}
			return c, nil
		default:
			return nil, &apperr.ConfigurationError{Key: "LLM_PROVIDER", Message: "unknown provider " + string(cfg.Provider)}
		}
	}
}
