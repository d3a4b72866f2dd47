package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// ErrJobNotFound is returned when no job with the id is retained
var ErrJobNotFound = errors.New("job not found")

// Job is the pollable status of a queued job
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	State       string          `json:"state"`
	Retried     int             `json:"retried"`
	MaxRetry    int             `json:"max_retry"`
	LastError   string          `json:"last_error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

type taskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	Close() error
}

// Inspector reads job status from the queue backend
type Inspector struct {
	inspector taskInspector
}

// NewInspector creates an inspector over the queue at redisAddr
func NewInspector(redisAddr string) *Inspector {
	return &Inspector{inspector: asynq.NewInspector(asynq.RedisClientOpt{Addr: redisAddr})}
}

// GetJob returns the state of job id, including its result once completed
func (i *Inspector) GetJob(id string) (Job, error) {
	info, err := i.inspector.GetTaskInfo(QueueName, id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, fmt.Errorf("failed to inspect job %s: %w", id, err)
	}
	return jobFromInfo(info), nil
}

// Close closes the inspector connection
func (i *Inspector) Close() error {
	return i.inspector.Close()
}

func jobFromInfo(info *asynq.TaskInfo) Job {
	job := Job{
		ID:        info.ID,
		Type:      info.Type,
		State:     info.State.String(),
		Retried:   info.Retried,
		MaxRetry:  info.MaxRetry,
		LastError: info.LastErr,
	}
	if len(info.Result) > 0 && json.Valid(info.Result) {
		job.Result = json.RawMessage(info.Result)
	}
	if !info.CompletedAt.IsZero() {
		at := info.CompletedAt
		job.CompletedAt = &at
	}
	return job
}
