// Package executor issues backend completion calls and owns the retry loop.
// Every attempt is sanitized and decoded; any failure (network, empty
// payload, parse, schema) is retried the same way with doubling backoff.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/zombar/textengine/internal/apperr"
	"github.com/zombar/textengine/internal/llm"
	"github.com/zombar/textengine/internal/metrics"
	"github.com/zombar/textengine/internal/sanitize"
	"github.com/zombar/textengine/internal/schema"
	"github.com/zombar/textengine/internal/tracing"
)

// Attempt describes one finished backend attempt
type Attempt struct {
	RequestID string
	Operation string
	Index     int // 1-based
	Kind      apperr.Kind
	Delay     time.Duration // backoff waited before this attempt
	Latency   time.Duration
	Err       error
	At        time.Time
}

// Observer receives every attempt, successful or not
type Observer interface {
	ObserveAttempt(ctx context.Context, a Attempt)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, a Attempt)

func (f ObserverFunc) ObserveAttempt(ctx context.Context, a Attempt) { f(ctx, a) }

// Sleeper waits d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Call is one logical request: a prompt pair at a fixed temperature
type Call struct {
	Operation   string
	System      string
	User        string
	Temperature float64
}

// Executor runs calls against the backend held by a llm.Handle
type Executor struct {
	cfg      Config
	handle   *llm.Handle
	limiter  *rate.Limiter
	observer Observer
	metrics  *metrics.Executor
	tracer   trace.Tracer
	sleep    Sleeper
	logger   *slog.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithLimiter makes every attempt wait for a token from l
func WithLimiter(l *rate.Limiter) Option { return func(e *Executor) { e.limiter = l } }

// WithObserver registers an attempt observer, such as the attempt journal
func WithObserver(o Observer) Option { return func(e *Executor) { e.observer = o } }

// WithMetrics records attempts in m
func WithMetrics(m *metrics.Executor) Option { return func(e *Executor) { e.metrics = m } }

// WithTracer overrides the tracer
func WithTracer(t trace.Tracer) Option { return func(e *Executor) { e.tracer = t } }

// WithSleeper replaces the backoff wait, mainly for tests
func WithSleeper(s Sleeper) Option { return func(e *Executor) { e.sleep = s } }

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option { return func(e *Executor) { e.logger = l } }

// New returns an Executor for handle with retry policy cfg
func New(handle *llm.Handle, cfg Config, opts ...Option) (*Executor, error) {
	if handle == nil {
		return nil, &apperr.ConfigurationError{Key: "LLM_PROVIDER", Message: "no backend client configured"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}

	e := &Executor{
		cfg:    cfg,
		handle: handle,
		sleep:  sleepContext,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = tracing.Tracer()
	}
	return e, nil
}

// Config returns the retry policy in use
func (e *Executor) Config() Config { return e.cfg }

// Execute runs call until dec accepts a payload or the attempt budget is spent.
//
// The client is resolved first; a ConfigurationError is returned as is and no
// attempt is made. Cancellation of ctx stops the loop between attempts and
// aborts the in-flight attempt, returning ctx.Err(). Otherwise the result is
// either a decoded T or an *apperr.ExhaustedRetriesError wrapping the last
// attempt failure.
func Execute[T any](ctx context.Context, e *Executor, call Call, dec schema.Decoder[T]) (T, error) {
	var zero T

	client, err := e.handle.Get(ctx)
	if err != nil {
		return zero, err
	}

	ctx, span := e.tracer.Start(ctx, "llm.execute", trace.WithAttributes(
		attribute.String("llm.operation", call.Operation),
		attribute.String("llm.backend", client.Name()),
		attribute.String("llm.schema", dec.Name()),
		attribute.Float64("llm.temperature", call.Temperature),
		attribute.Int("llm.max_attempts", e.cfg.MaxAttempts),
	))
	defer span.End()

	requestID := RequestIDFrom(ctx)
	bo := e.newBackOff()
	var last *apperr.TransientError

	for i := 1; i <= e.cfg.MaxAttempts; i++ {
		var delay time.Duration
		if i > 1 {
			delay = bo.NextBackOff()
			if err := e.sleep(ctx, delay); err != nil {
				span.SetStatus(codes.Error, "canceled")
				return zero, err
			}
		}
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "canceled")
			return zero, err
		}

		start := time.Now()
		val, attemptErr := runAttempt(ctx, e, client, call, dec, i)
		a := Attempt{
			RequestID: requestID,
			Operation: call.Operation,
			Index:     i,
			Delay:     delay,
			Latency:   time.Since(start),
			Err:       attemptErr,
			At:        start,
		}

		var terr *apperr.TransientError
		if attemptErr != nil && !errors.As(attemptErr, &terr) {
			// caller cancellation while the attempt was in flight
			e.record(ctx, a)
			span.SetStatus(codes.Error, attemptErr.Error())
			return zero, attemptErr
		}
		if terr != nil {
			a.Kind = terr.Kind
		}
		e.record(ctx, a)

		if attemptErr == nil {
			span.SetAttributes(attribute.Int("llm.attempts", i))
			if i > 1 {
				e.logger.InfoContext(ctx, "llm call recovered",
					"operation", call.Operation,
					"request_id", requestID,
					"attempts", i,
				)
			}
			return val, nil
		}

		last = terr
		e.logger.WarnContext(ctx, "llm attempt failed",
			"operation", call.Operation,
			"request_id", requestID,
			"attempt", i,
			"max_attempts", e.cfg.MaxAttempts,
			"kind", terr.Kind,
			"error", terr.Err,
		)
	}

	exhausted := &apperr.ExhaustedRetriesError{
		Operation: call.Operation,
		Attempts:  e.cfg.MaxAttempts,
		Last:      last,
	}
	e.metrics.ObserveExhausted(call.Operation)
	span.SetAttributes(attribute.Int("llm.attempts", e.cfg.MaxAttempts))
	span.RecordError(exhausted)
	span.SetStatus(codes.Error, "retries exhausted")
	e.logger.ErrorContext(ctx, "llm call failed", "operation", call.Operation, "request_id", requestID, "error", exhausted)
	return zero, exhausted
}

// runAttempt performs one backend call. Attempt failures come back as
// *apperr.TransientError; anything else means the caller gave up.
func runAttempt[T any](ctx context.Context, e *Executor, client llm.Completer, call Call, dec schema.Decoder[T], index int) (T, error) {
	var zero T

	ctx, span := e.tracer.Start(ctx, "llm.attempt", trace.WithAttributes(
		attribute.String("llm.operation", call.Operation),
		attribute.Int("llm.attempt", index),
	))
	defer span.End()

	fail := func(kind apperr.Kind, err error) (T, error) {
		span.SetAttributes(attribute.String("llm.failure_kind", string(kind)))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		return zero, apperr.Transient(kind, err)
	}

	attemptCtx := ctx
	if e.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		defer cancel()
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(attemptCtx); err != nil {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			return fail(apperr.KindRateLimit, fmt.Errorf("rate limiter: %w", err))
		}
	}

	raw, err := client.Complete(attemptCtx, llm.Request{
		System:      call.System,
		User:        call.User,
		Temperature: call.Temperature,
		JSON:        true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if errors.Is(err, llm.ErrEmptyResponse) {
			return fail(apperr.KindEmptyPayload, err)
		}
		if attemptCtx.Err() != nil {
			return fail(apperr.KindTimeout, fmt.Errorf("attempt exceeded %s: %w", e.cfg.AttemptTimeout, err))
		}
		return fail(apperr.ClassifyBackendError(err), err)
	}

	if strings.TrimSpace(raw) == "" {
		return fail(apperr.KindEmptyPayload, llm.ErrEmptyResponse)
	}
	payload := sanitize.Sanitize(raw)
	span.SetAttributes(
		attribute.Int("llm.response_bytes", len(raw)),
		attribute.Int("llm.payload_bytes", len(payload)),
	)

	val, err := dec.Decode([]byte(payload))
	if err != nil {
		if apperr.IsSchemaViolation(err) {
			return fail(apperr.KindSchema, err)
		}
		return fail(apperr.KindParse, err)
	}
	return val, nil
}

func (e *Executor) record(ctx context.Context, a Attempt) {
	outcome := "ok"
	switch {
	case a.Kind != "":
		outcome = string(a.Kind)
	case a.Err != nil:
		outcome = "canceled"
	}
	e.metrics.ObserveAttempt(a.Operation, outcome, a.Latency, a.Delay)
	if e.observer != nil {
		e.observer.ObserveAttempt(ctx, a)
	}
}

// newBackOff returns base, 2*base, 4*base... without jitter
func (e *Executor) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = e.cfg.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
