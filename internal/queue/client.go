package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/textengine/internal/models"
)

// Task type constants
const (
	TypeAnalyze  = "textengine:analyze"
	TypeHumanize = "textengine:humanize"
)

// QueueName is the single queue both job types are submitted to
const QueueName = "textengine"

// Enqueue defaults
const (
	DefaultMaxRetry  = 2
	DefaultTimeout   = 5 * time.Minute
	DefaultRetention = time.Hour
)

// AnalyzePayload is the payload of an analysis job
type AnalyzePayload struct {
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
	// Tracing and timing fields
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"` // Unix timestamp in nanoseconds
}

// HumanizePayload is the payload of a rewrite job. Smart jobs pick the mode
// from a preceding analysis and ignore Mode; otherwise an empty or unknown
// Mode rewrites in the natural mode.
type HumanizePayload struct {
	RequestID string      `json:"request_id"`
	Text      string      `json:"text"`
	Mode      models.Mode `json:"mode,omitempty"`
	Smart     bool        `json:"smart,omitempty"`
	// Tracing and timing fields
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"`
}

// enqueuer is the part of *asynq.Client the Client needs
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client submits engine jobs to the queue
type Client struct {
	client    enqueuer
	maxRetry  int
	timeout   time.Duration
	retention time.Duration
}

// ClientConfig contains configuration for the queue client
type ClientConfig struct {
	RedisAddr string
	MaxRetry  int
	Timeout   time.Duration
	Retention time.Duration
}

// NewClient creates a new queue client
func NewClient(cfg ClientConfig) *Client {
	return newClient(asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), cfg)
}

func newClient(e enqueuer, cfg ClientConfig) *Client {
	c := &Client{
		client:    e,
		maxRetry:  cfg.MaxRetry,
		timeout:   cfg.Timeout,
		retention: cfg.Retention,
	}
	if c.maxRetry <= 0 {
		c.maxRetry = DefaultMaxRetry
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.retention <= 0 {
		c.retention = DefaultRetention
	}
	return c
}

// EnqueueAnalyze submits an analysis job and returns its job id
func (c *Client) EnqueueAnalyze(ctx context.Context, requestID, text string) (string, error) {
	payload := AnalyzePayload{
		RequestID:  requestID,
		Text:       text,
		EnqueuedAt: time.Now().UnixNano(),
	}
	payload.TraceID, payload.SpanID = traceIDs(ctx)
	return c.enqueue(ctx, TypeAnalyze, requestID, payload)
}

// EnqueueHumanize submits a rewrite job. With smart set the mode is picked
// by the worker from the analysed AI likelihood.
func (c *Client) EnqueueHumanize(ctx context.Context, requestID, text string, mode models.Mode, smart bool) (string, error) {
	payload := HumanizePayload{
		RequestID:  requestID,
		Text:       text,
		Mode:       mode,
		Smart:      smart,
		EnqueuedAt: time.Now().UnixNano(),
	}
	payload.TraceID, payload.SpanID = traceIDs(ctx)
	return c.enqueue(ctx, TypeHumanize, requestID, payload)
}

func (c *Client) enqueue(ctx context.Context, taskType, requestID string, payload any) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}

	taskID := uuid.NewString()
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		span.AddEvent("task_enqueued", trace.WithAttributes(
			attribute.String("task.type", taskType),
			attribute.String("task.id", taskID),
			attribute.String("request_id", requestID),
		))
	}

	task := asynq.NewTask(taskType, payloadBytes, asynq.TaskID(taskID))
	opts := []asynq.Option{
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(c.timeout),
		asynq.Queue(QueueName),
		asynq.Retention(c.retention), // results stay readable for polling
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s task: %w", taskType, err)
	}
	return info.ID, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}

func traceIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
