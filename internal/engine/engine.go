// Package engine is the entry point for analysis and rewrite requests. It
// validates input, builds the prompt, runs it through the executor and returns
// the adapted stable result.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/textengine/internal/adapter"
	"github.com/zombar/textengine/internal/apperr"
	"github.com/zombar/textengine/internal/executor"
	"github.com/zombar/textengine/internal/models"
	"github.com/zombar/textengine/internal/prompt"
	"github.com/zombar/textengine/internal/readability"
	"github.com/zombar/textengine/internal/schema"
	"github.com/zombar/textengine/internal/tracing"
)

// MinTextLength is the shortest input, in characters, the engine accepts
const MinTextLength = 10

// Smart mode thresholds on the analysed AI likelihood
const (
	AggressiveThreshold = 70.0
	BalancedThreshold   = 40.0
)

// Engine is safe for concurrent use; it holds no per-call state
type Engine struct {
	exec   *executor.Executor
	logger *slog.Logger
	tracer trace.Tracer
}

// New returns an Engine running requests through exec
func New(exec *executor.Executor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{exec: exec, logger: logger, tracer: tracing.Tracer()}
}

// SmartResult is the outcome of SmartHumanize
type SmartResult struct {
	Analysis models.AnalysisResult `json:"analysis"`
	Rewrite  models.RewriteResult  `json:"rewrite"`
	Mode     models.Mode           `json:"mode"`
}

// Analyze audits text. The readability score is always computed locally and
// originality is always 100 - similarity.
func (e *Engine) Analyze(ctx context.Context, text string) (models.AnalysisResult, error) {
	if err := ValidateText(text, MinTextLength); err != nil {
		return models.AnalysisResult{}, err
	}

	ctx, span := e.tracer.Start(ctx, "engine.analyze", trace.WithAttributes(
		attribute.Int("text.length", len(text)),
	))
	defer span.End()

	p, err := prompt.Analyze(text)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	validated, err := executor.Execute(ctx, e.exec, call(p), schema.AnalysisDecoder{})
	if err != nil {
		span.RecordError(err)
		return models.AnalysisResult{}, err
	}

	result := adapter.Analysis(validated)
	applyReadability(&result, text)
	adapter.Normalize(&result)

	span.SetAttributes(
		attribute.Int("analysis.schema_version", result.SchemaVersion),
		attribute.Float64("analysis.ai_likelihood", result.AILikelihood),
		attribute.Int("analysis.flags", len(result.Flags)),
	)
	e.logger.InfoContext(ctx, "analysis completed",
		"schema_version", result.SchemaVersion,
		"ai_likelihood", result.AILikelihood,
		"similarity", result.SimilarityScore,
		"readability", result.ReadabilityScore,
		"flags", len(result.Flags),
	)
	return result, nil
}

// Humanize rewrites text in mode. Unknown modes fall back to the default mode.
func (e *Engine) Humanize(ctx context.Context, text string, mode models.Mode) (models.RewriteResult, error) {
	if err := ValidateText(text, MinTextLength); err != nil {
		return models.RewriteResult{}, err
	}

	p, err := prompt.Rewrite(text, mode)
	if err != nil {
		return models.RewriteResult{}, err
	}

	ctx, span := e.tracer.Start(ctx, "engine.humanize", trace.WithAttributes(
		attribute.Int("text.length", len(text)),
		attribute.String("rewrite.mode", string(p.Mode)),
		attribute.Float64("rewrite.temperature", p.Temperature),
	))
	defer span.End()

	validated, err := executor.Execute(ctx, e.exec, call(p), schema.RewriteDecoder{})
	if err != nil {
		span.RecordError(err)
		return models.RewriteResult{}, err
	}

	result := adapter.Rewrite(validated, p.Mode)
	e.logger.InfoContext(ctx, "rewrite completed",
		"mode", p.Mode,
		"ai_score_before", result.AIScoreBefore,
		"ai_score_after", result.AIScoreAfter,
		"changes", len(result.Changes),
	)
	return result, nil
}

// SmartHumanize analyses text first, picks the mode from its AI likelihood
// and then rewrites. The two calls run one after the other.
func (e *Engine) SmartHumanize(ctx context.Context, text string) (SmartResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.smart_humanize")
	defer span.End()

	analysis, err := e.Analyze(ctx, text)
	if err != nil {
		return SmartResult{}, err
	}

	mode := SelectMode(analysis.AILikelihood)
	span.SetAttributes(attribute.String("rewrite.mode", string(mode)))

	rewrite, err := e.Humanize(ctx, text, mode)
	if err != nil {
		return SmartResult{}, err
	}
	return SmartResult{Analysis: analysis, Rewrite: rewrite, Mode: mode}, nil
}

// SelectMode maps an AI likelihood onto a rewrite mode
func SelectMode(aiLikelihood float64) models.Mode {
	switch {
	case aiLikelihood >= AggressiveThreshold:
		return models.ModeAggressive
	case aiLikelihood >= BalancedThreshold:
		return models.ModeBalanced
	default:
		return models.ModeNatural
	}
}

// ValidateText rejects blank text and text shorter than minLen characters
func ValidateText(text string, minLen int) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return &apperr.ValidationError{Field: "text", Message: "must not be empty"}
	}
	if n := utf8.RuneCountInString(trimmed); n < minLen {
		return &apperr.ValidationError{
			Field:   "text",
			Message: fmt.Sprintf("must be at least %d characters, got %d", minLen, n),
		}
	}
	return nil
}

// applyReadability replaces whatever the backend estimated with the local score
func applyReadability(r *models.AnalysisResult, text string) {
	rd := readability.Analyze(text)
	r.ReadabilityScore = rd.Score
	r.ReadabilityLevel = rd.Level
	r.WordCount = rd.Words
	r.SentenceCount = rd.Sentences
}

func call(p prompt.Prompt) executor.Call {
	return executor.Call{
		Operation:   string(p.Operation),
		System:      p.System,
		User:        p.User,
		Temperature: p.Temperature,
	}
}
