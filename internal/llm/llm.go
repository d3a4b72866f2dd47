// Package llm wraps the language-model backends behind one completion call
package llm

import (
	"context"
	"errors"
)

// Provider selects a language-model backend
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderGemini Provider = "gemini"
)

// ErrEmptyResponse is returned when the backend answers without any content
var ErrEmptyResponse = errors.New("llm: empty response")

// Request is one completion call
type Request struct {
	System      string
	User        string
	Temperature float64
	JSON        bool // ask the backend for a JSON document
}

// Completer issues a single completion request and returns the raw text.
// Implementations do no retrying; that belongs to the executor.
type Completer interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Name() string { return "func" }

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
