package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zombar/textengine/internal/models"
)

// TestTraceContextPropagation_Enqueue tests that trace context is captured when enqueuing tasks
func TestTraceContextPropagation_Enqueue(t *testing.T) {
	tp := tracesdk.NewTracerProvider()
	tracer := tp.Tracer("test")

	tests := []struct {
		name    string
		enqueue func(ctx context.Context, c *Client) error
	}{
		{
			name: "EnqueueAnalyze",
			enqueue: func(ctx context.Context, c *Client) error {
				_, err := c.EnqueueAnalyze(ctx, "req-1", "Sample text for analysis")
				return err
			},
		},
		{
			name: "EnqueueHumanize",
			enqueue: func(ctx context.Context, c *Client) error {
				_, err := c.EnqueueHumanize(ctx, "req-1", "Sample text to rewrite", models.ModeNatural, false)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, span := tracer.Start(context.Background(), "test-operation")
			defer span.End()

			parent := span.SpanContext()
			if !parent.IsValid() {
				t.Fatal("Parent span context is invalid")
			}

			fake := &fakeEnqueuer{}
			if err := tt.enqueue(ctx, newClient(fake, ClientConfig{})); err != nil {
				t.Fatalf("Failed to enqueue: %v", err)
			}

			var payload struct {
				TraceID    string `json:"trace_id"`
				SpanID     string `json:"span_id"`
				EnqueuedAt int64  `json:"enqueued_at"`
			}
			if err := json.Unmarshal(fake.tasks[0].Payload(), &payload); err != nil {
				t.Fatalf("Failed to unmarshal payload: %v", err)
			}

			if payload.TraceID != parent.TraceID().String() {
				t.Errorf("TraceID mismatch: got %s, want %s", payload.TraceID, parent.TraceID().String())
			}
			if payload.SpanID != parent.SpanID().String() {
				t.Errorf("SpanID mismatch: got %s, want %s", payload.SpanID, parent.SpanID().String())
			}
			if payload.EnqueuedAt == 0 {
				t.Error("EnqueuedAt was not set")
			}
		})
	}
}

// TestTraceContextPropagation_Process tests that workers continue the enqueuing trace
func TestTraceContextPropagation_Process(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	_, parent := tp.Tracer("test").Start(context.Background(), "http.request")
	parentCtx := parent.SpanContext()
	parent.End()

	data, _ := json.Marshal(AnalyzePayload{
		RequestID:  "req-t",
		Text:       "Traced text",
		TraceID:    parentCtx.TraceID().String(),
		SpanID:     parentCtx.SpanID().String(),
		EnqueuedAt: time.Now().Add(-2 * time.Second).UnixNano(),
	})

	if err := NewHandlers(&fakeEngine{}, nil).HandleAnalyze(context.Background(), asynq.NewTask(TypeAnalyze, data)); err != nil {
		t.Fatalf("HandleAnalyze: %v", err)
	}

	var processed tracesdk.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "asynq.task.process" {
			processed = s
		}
	}
	if processed == nil {
		t.Fatal("asynq.task.process span was not recorded")
	}
	if processed.SpanContext().TraceID() != parentCtx.TraceID() {
		t.Errorf("TraceID mismatch: got %s, want %s", processed.SpanContext().TraceID(), parentCtx.TraceID())
	}
	if processed.Parent().SpanID() != parentCtx.SpanID() {
		t.Errorf("Parent span mismatch: got %s, want %s", processed.Parent().SpanID(), parentCtx.SpanID())
	}
	if processed.SpanKind() != trace.SpanKindConsumer {
		t.Errorf("Expected consumer span, got %v", processed.SpanKind())
	}

	var wait float64
	for _, kv := range processed.Attributes() {
		if kv.Key == "queue.wait_time_seconds" {
			wait = kv.Value.AsFloat64()
		}
	}
	if wait < 1.5 || wait > 10 {
		t.Errorf("Queue wait time out of range: got %v, expected ~2s", wait)
	}
}

func TestRemoteSpanContext(t *testing.T) {
	tests := []struct {
		name    string
		traceID string
		spanID  string
		ok      bool
	}{
		{"valid", "4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7", true},
		{"missing", "", "", false},
		{"bad trace id", "xyz", "00f067aa0ba902b7", false},
		{"bad span id", "4bf92f3577b34da6a3ce929d0e0e4736", "nothex", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, ok := remoteSpanContext(tt.traceID, tt.spanID)
			if ok != tt.ok {
				t.Fatalf("remoteSpanContext ok = %v, want %v", ok, tt.ok)
			}
			if ok && (!sc.IsRemote() || !sc.IsSampled()) {
				t.Errorf("Expected remote sampled context, got %+v", sc)
			}
		})
	}
}
