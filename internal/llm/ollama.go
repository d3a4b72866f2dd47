package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "gpt-oss:20b"
)

// OllamaClient talks to a local or remote Ollama server through its chat API
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllama creates a client for the server at ollamaURL
func NewOllama(ollamaURL, model string, httpClient *http.Client) (*OllamaClient, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	baseURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid Ollama URL %q: scheme and host are required", ollamaURL)
	}

	return &OllamaClient{
		client: api.NewClient(baseURL, httpClient),
		model:  model,
	}, nil
}

func (c *OllamaClient) Name() string { return "ollama:" + c.model }

// Complete sends one non-streaming chat request
func (c *OllamaClient) Complete(ctx context.Context, req Request) (string, error) {
	stream := false
	chat := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Stream:  &stream,
		Options: map[string]any{"temperature": req.Temperature},
	}
	if req.JSON {
		chat.Format = json.RawMessage(`"json"`)
	}

	slog.Debug("ollama request", "model", c.model, "temperature", req.Temperature, "bytes", len(req.System)+len(req.User))

	var response strings.Builder
	err := c.client.Chat(ctx, chat, func(resp api.ChatResponse) error {
		response.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}

	result := strings.TrimSpace(response.String())
	if result == "" {
		return "", ErrEmptyResponse
	}
	slog.Debug("ollama response", "model", c.model, "chars", len(result))
	return result, nil
}
