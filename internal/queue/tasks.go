package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/textengine/internal/apperr"
	"github.com/zombar/textengine/internal/engine"
	"github.com/zombar/textengine/internal/executor"
	"github.com/zombar/textengine/internal/models"
)

// Engine is the part of *engine.Engine the task handlers run
type Engine interface {
	Analyze(ctx context.Context, text string) (models.AnalysisResult, error)
	Humanize(ctx context.Context, text string, mode models.Mode) (models.RewriteResult, error)
	SmartHumanize(ctx context.Context, text string) (engine.SmartResult, error)
}

// Handlers runs queued jobs against an Engine
type Handlers struct {
	engine Engine
	logger *slog.Logger
}

// NewHandlers returns task handlers backed by eng
func NewHandlers(eng Engine, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{engine: eng, logger: logger}
}

// Register attaches every task type to mux
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeAnalyze, h.HandleAnalyze)
	mux.HandleFunc(TypeHumanize, h.HandleHumanize)
}

// HandleAnalyze processes a TypeAnalyze task
func (h *Handlers) HandleAnalyze(ctx context.Context, t *asynq.Task) error {
	var payload AnalyzePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := startTaskSpan(ctx, TypeAnalyze, payload.TraceID, payload.SpanID, payload.EnqueuedAt,
		attribute.String("request_id", payload.RequestID),
		attribute.Int("text.length", len(payload.Text)),
	)
	defer span.End()
	ctx = executor.WithRequestID(ctx, payload.RequestID)

	result, err := h.engine.Analyze(ctx, payload.Text)
	if err != nil {
		return h.fail(ctx, span, t, payload.RequestID, err)
	}
	return h.complete(ctx, span, t, payload.RequestID, result)
}

// HandleHumanize processes a TypeHumanize task
func (h *Handlers) HandleHumanize(ctx context.Context, t *asynq.Task) error {
	var payload HumanizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := startTaskSpan(ctx, TypeHumanize, payload.TraceID, payload.SpanID, payload.EnqueuedAt,
		attribute.String("request_id", payload.RequestID),
		attribute.Int("text.length", len(payload.Text)),
		attribute.String("rewrite.mode", string(payload.Mode)),
		attribute.Bool("rewrite.smart", payload.Smart),
	)
	defer span.End()
	ctx = executor.WithRequestID(ctx, payload.RequestID)

	if payload.Smart {
		result, err := h.engine.SmartHumanize(ctx, payload.Text)
		if err != nil {
			return h.fail(ctx, span, t, payload.RequestID, err)
		}
		return h.complete(ctx, span, t, payload.RequestID, result)
	}

	result, err := h.engine.Humanize(ctx, payload.Text, models.ParseMode(string(payload.Mode)))
	if err != nil {
		return h.fail(ctx, span, t, payload.RequestID, err)
	}
	return h.complete(ctx, span, t, payload.RequestID, result)
}

func (h *Handlers) complete(ctx context.Context, span trace.Span, t *asynq.Task, requestID string, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	// Tasks built outside a server have no result writer.
	if rw := t.ResultWriter(); rw != nil {
		if _, err := rw.Write(data); err != nil {
			return fmt.Errorf("failed to write task result: %w", err)
		}
	}

	span.SetStatus(codes.Ok, "")
	h.logger.InfoContext(ctx, "task completed",
		"task_type", t.Type(),
		"request_id", requestID,
		"result_bytes", len(data),
	)
	return nil
}

// fail decides whether the queue should retry. Input and configuration
// problems never get better on their own.
func (h *Handlers) fail(ctx context.Context, span trace.Span, t *asynq.Task, requestID string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	retry := Retryable(err)
	h.logger.WarnContext(ctx, "task failed",
		"task_type", t.Type(),
		"request_id", requestID,
		"code", apperr.CodeOf(err),
		"retryable", retry,
		"error", err,
	)
	if !retry {
		return fmt.Errorf("%s: %w: %w", t.Type(), err, asynq.SkipRetry)
	}
	return fmt.Errorf("%s: %w", t.Type(), err)
}

// Retryable reports whether a failed job is worth another queue-level attempt
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case apperr.IsValidation(err), apperr.IsConfiguration(err):
		return false
	case errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

// startTaskSpan continues the enqueuing trace when the payload carries one
func startTaskSpan(ctx context.Context, taskType, traceHex, spanHex string, enqueuedAt int64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	var queueWaitTime time.Duration
	if enqueuedAt > 0 {
		queueWaitTime = time.Since(time.Unix(0, enqueuedAt))
	}

	if remote, ok := remoteSpanContext(traceHex, spanHex); ok {
		ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
	}

	attrs = append(attrs,
		attribute.String("task.type", taskType),
		attribute.Float64("queue.wait_time_seconds", queueWaitTime.Seconds()),
		attribute.Int64("enqueued_at", enqueuedAt),
	)
	ctx, span := otel.Tracer("textengine").Start(ctx, "asynq.task.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	)

	retried, _ := asynq.GetRetryCount(ctx)
	span.AddEvent("task_processing_started", trace.WithAttributes(
		attribute.Float64("wait_time_seconds", queueWaitTime.Seconds()),
		attribute.Int("retry_count", retried),
	))
	return ctx, span
}

func remoteSpanContext(traceHex, spanHex string) (trace.SpanContext, bool) {
	if traceHex == "" || spanHex == "" {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanID, err := trace.SpanIDFromHex(spanHex)
	if err != nil {
		return trace.SpanContext{}, false
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}), true
}
