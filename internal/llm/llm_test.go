package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ollama/ollama/api"

	"github.com/zombar/textengine/internal/apperr"
)

func TestNewOllama(t *testing.T) {
	tests := []struct {
		name          string
		ollamaURL     string
		model         string
		expectError   bool
		expectedModel string
	}{
		{
			name:          "default values",
			expectedModel: DefaultOllamaModel,
		},
		{
			name:          "custom URL and model",
			ollamaURL:     "http://custom-ollama:11434",
			model:         "llama3.2",
			expectedModel: "llama3.2",
		},
		{
			name:        "invalid URL",
			ollamaURL:   "://invalid-url",
			model:       "test",
			expectError: true,
		},
		{
			name:        "missing host",
			ollamaURL:   "localhost",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewOllama(tt.ollamaURL, tt.model, nil)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client.model != tt.expectedModel {
				t.Errorf("Expected model %s, got %s", tt.expectedModel, client.model)
			}
		})
	}
}

func TestOllamaComplete(t *testing.T) {
	var got api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.ChatResponse{
			Model:   got.Model,
			Message: api.Message{Role: "assistant", Content: "  {\"ok\": true}\n"},
			Done:    true,
		})
	}))
	defer srv.Close()

	client, err := NewOllama(srv.URL, "test-model", srv.Client())
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}

	out, err := client.Complete(context.Background(), Request{
		System:      "be terse",
		User:        "hello",
		Temperature: 0.2,
		JSON:        true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"ok": true}` {
		t.Errorf("unexpected output %q", out)
	}

	if got.Model != "test-model" {
		t.Errorf("expected model test-model, got %s", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hello" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
	if string(got.Format) != `"json"` {
		t.Errorf("expected json format, got %s", got.Format)
	}
	if temp, ok := got.Options["temperature"].(float64); !ok || temp != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", got.Options["temperature"])
	}
	if got.Stream == nil || *got.Stream {
		t.Error("expected non-streaming request")
	}
}

func TestOllamaCompleteEmptyAndErrors(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.ChatResponse{Message: api.Message{Role: "assistant", Content: "   "}, Done: true})
	}))
	defer empty.Close()

	client, _ := NewOllama(empty.URL, "m", empty.Client())
	if _, err := client.Complete(context.Background(), Request{User: "x"}); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer failing.Close()

	client, _ = NewOllama(failing.URL, "m", failing.Client())
	_, err := client.Complete(context.Background(), Request{User: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := apperr.ClassifyBackendError(err); kind != apperr.KindRateLimit {
		t.Errorf("expected rate_limit kind, got %s (%v)", kind, err)
	}
}

func TestHandleLazyAndReset(t *testing.T) {
	calls := 0
	fail := true
	h := NewHandle(func(ctx context.Context) (Completer, error) {
		calls++
		if fail {
			return nil, &apperr.ConfigurationError{Key: "K", Message: "missing"}
		}
		return CompleterFunc(func(context.Context, Request) (string, error) { return "{}", nil }), nil
	})

	if calls != 0 {
		t.Fatal("factory must not run before first use")
	}

	if _, err := h.Get(context.Background()); !apperr.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	fail = false
	c1, err := h.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	c2, _ := h.Get(context.Background())
	if calls != 2 {
		t.Errorf("expected 2 factory calls (error not cached, success cached), got %d", calls)
	}
	if c1.Name() != c2.Name() {
		t.Error("expected the cached client")
	}

	h.Reset()
	if _, err := h.Get(context.Background()); err != nil {
		t.Fatalf("Get after reset: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected rebuild after reset, got %d calls", calls)
	}
}

func TestHandleConcurrentGet(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	h := NewHandle(func(ctx context.Context) (Completer, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return CompleterFunc(func(context.Context, Request) (string, error) { return "{}", nil }), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.Get(context.Background())
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("expected a single build, got %d", calls)
	}
}

func TestNewFactory(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantKey string
	}{
		{"gemini without key", Config{Provider: ProviderGemini}, "GEMINI_API_KEY"},
		{"bad ollama url", Config{Provider: ProviderOllama, OllamaURL: "://nope"}, "OLLAMA_URL"},
		{"unknown provider", Config{Provider: "openai"}, "LLM_PROVIDER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFactory(tt.cfg)(context.Background())
			var cfgErr *apperr.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfgErr.Key != tt.wantKey {
				t.Errorf("expected key %s, got %s", tt.wantKey, cfgErr.Key)
			}
		})
	}

	c, err := NewFactory(Config{Provider: "Ollama", OllamaURL: "http://localhost:11434", Model: "m"})(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Name() != "ollama:m" {
		t.Errorf("unexpected client %s", c.Name())
	}
}
