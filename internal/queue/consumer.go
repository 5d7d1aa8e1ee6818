package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultConsumerGroup = "workers"
	defaultBlockTimeout  = 5 * time.Second
	defaultBatchSize     = 10
	defaultClaimMinIdle  = 5 * time.Minute
	maxPendingCheck      = 100
)

// ConsumedTask is a task read from the stream, carrying the message id
// needed to acknowledge it.
type ConsumedTask struct {
	MessageID  string
	Task       *Task
	EnqueuedAt time.Time
}

// ConsumerConfig holds consumer settings.
type ConsumerConfig struct {
	ConsumerGroup string
	ConsumerID    string
	BlockTimeout  time.Duration
	BatchSize     int64
	ClaimMinIdle  time.Duration
}

// Consumer reads tasks from the stream on behalf of a worker.
type Consumer struct {
	client        *StreamsClient
	consumerGroup string
	consumerID    string
	blockTimeout  time.Duration
	batchSize     int64
	claimMinIdle  time.Duration
}

// NewConsumer creates a task consumer.
func NewConsumer(client *StreamsClient, cfg ConsumerConfig) (*Consumer, error) {
	if cfg.ConsumerID == "" {
		return nil, errors.New("consumer ID is required")
	}

	group := cfg.ConsumerGroup
	if group == "" {
		group = defaultConsumerGroup
	}
	blockTimeout := cfg.BlockTimeout
	if blockTimeout <= 0 {
		blockTimeout = defaultBlockTimeout
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	claimMinIdle := cfg.ClaimMinIdle
	if claimMinIdle <= 0 {
		claimMinIdle = defaultClaimMinIdle
	}

	return &Consumer{
		client:        client,
		consumerGroup: group,
		consumerID:    cfg.ConsumerID,
		blockTimeout:  blockTimeout,
		batchSize:     batchSize,
		claimMinIdle:  claimMinIdle,
	}, nil
}

// Initialize creates the consumer group for the task stream.
func (c *Consumer) Initialize(ctx context.Context) error {
	return c.client.CreateConsumerGroup(ctx, c.client.TaskStream(), c.consumerGroup)
}

// Read returns the next batch of tasks. Stale pending messages from
// crashed workers are reclaimed before new ones are read.
func (c *Consumer) Read(ctx context.Context) ([]*ConsumedTask, error) {
	if reclaimed := c.reclaimPending(ctx); len(reclaimed) > 0 {
		return reclaimed, nil
	}

	stream := c.client.TaskStream()
	streams, err := c.client.XReadGroup(
		ctx, c.consumerGroup, c.consumerID, []string{stream, ">"}, c.batchSize, c.blockTimeout,
	)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read from stream %s: %w", stream, err)
	}

	return c.parseStreams(streams), nil
}

// Acknowledge marks a task as processed.
func (c *Consumer) Acknowledge(ctx context.Context, task *ConsumedTask) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}
	return c.client.XAck(ctx, c.client.TaskStream(), c.consumerGroup, task.MessageID)
}

// ConsumerID returns this consumer's identifier.
func (c *Consumer) ConsumerID() string {
	return c.consumerID
}

func (c *Consumer) reclaimPending(ctx context.Context) []*ConsumedTask {
	stream := c.client.TaskStream()

	pending, err := c.client.XPendingExt(ctx, stream, c.consumerGroup, "-", "+", maxPendingCheck)
	if err != nil {
		return nil
	}

	var stale []string
	for _, entry := range pending {
		if entry.Idle >= c.claimMinIdle {
			stale = append(stale, entry.ID)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	claimed, err := c.client.XClaim(ctx, stream, c.consumerGroup, c.consumerID, c.claimMinIdle, stale...)
	if err != nil {
		return nil
	}

	var tasks []*ConsumedTask
	for _, msg := range claimed {
		if task, parseErr := parseMessage(msg); parseErr == nil {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

func (c *Consumer) parseStreams(streams []redis.XStream) []*ConsumedTask {
	var tasks []*ConsumedTask
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			task, err := parseMessage(msg)
			if err != nil {
				// Malformed messages are skipped, not fatal.
				continue
			}
			tasks = append(tasks, task)
		}
	}
	return tasks
}

func parseMessage(msg redis.XMessage) (*ConsumedTask, error) {
	data, ok := msg.Values[TaskDataField].(string)
	if !ok {
		return nil, errors.New("missing task data")
	}

	var task Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}

	consumed := &ConsumedTask{MessageID: msg.ID, Task: &task}
	if raw, has := msg.Values[EnqueuedAtField].(string); has {
		if t, parseErr := time.Parse(time.RFC3339, raw); parseErr == nil {
			consumed.EnqueuedAt = t
		}
	}
	return consumed, nil
}
