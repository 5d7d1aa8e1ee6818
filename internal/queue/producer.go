package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// TaskDataField is the field name for the serialized task.
	TaskDataField = "task"

	// EnqueuedAtField is the field name for the enqueue timestamp.
	EnqueuedAtField = "enqueued_at"

	defaultMaxStreamLen = 10000
)

// Producer enqueues tasks onto the task stream.
type Producer struct {
	client       *StreamsClient
	maxStreamLen int64
}

// ProducerConfig holds producer settings.
type ProducerConfig struct {
	MaxStreamLen int64
}

// NewProducer creates a task producer.
func NewProducer(client *StreamsClient, cfg ProducerConfig) *Producer {
	maxLen := cfg.MaxStreamLen
	if maxLen <= 0 {
		maxLen = defaultMaxStreamLen
	}
	return &Producer{client: client, maxStreamLen: maxLen}
}

// Enqueue appends a task to the stream.
func (p *Producer) Enqueue(ctx context.Context, task *Task) (string, error) {
	if task == nil {
		return "", errors.New("task cannot be nil")
	}

	data, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("serialize task: %w", err)
	}

	values := map[string]any{
		TaskDataField:   string(data),
		EnqueuedAtField: time.Now().UTC().Format(time.RFC3339),
	}

	stream := p.client.TaskStream()
	messageID, err := p.client.XAdd(ctx, stream, values)
	if err != nil {
		return "", fmt.Errorf("enqueue %s task: %w", task.Kind, err)
	}
	return messageID, nil
}

// ScheduleResync enqueues a delayed resync task for one project. It
// satisfies the resync engine's scheduler contract.
func (p *Producer) ScheduleResync(ctx context.Context, projectID int64, delay time.Duration) error {
	task := NewProjectResyncTask(projectID, time.Now().UTC().Add(delay))
	_, err := p.Enqueue(ctx, task)
	return err
}

// TrimStream trims the task stream to its maximum length.
func (p *Producer) TrimStream(ctx context.Context) error {
	return p.client.XTrimMaxLen(ctx, p.client.TaskStream(), p.maxStreamLen)
}

// QueueDepth returns the current task stream length.
func (p *Producer) QueueDepth(ctx context.Context) (int64, error) {
	return p.client.XLen(ctx, p.client.TaskStream())
}
