// Package queue provides the Redis Streams task queue feeding the
// background workers.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultConnectTimeout = 2 * time.Second
	defaultPrefix         = "folivora"
)

// StreamsConfig holds connection settings for the task queue.
type StreamsConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" json:"-"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX"`
}

// StreamsClient wraps a Redis client with the stream and lease
// operations the task queue needs.
type StreamsClient struct {
	client *redis.Client
	prefix string
}

// NewStreamsClient connects to Redis and verifies the connection.
func NewStreamsClient(cfg StreamsConfig) (*StreamsClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewStreamsClientFromRedis(client, cfg.Prefix), nil
}

// NewStreamsClientFromRedis wraps an existing Redis client.
func NewStreamsClientFromRedis(client *redis.Client, prefix string) *StreamsClient {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &StreamsClient{client: client, prefix: prefix}
}

// TaskStream returns the full task stream key.
func (c *StreamsClient) TaskStream() string {
	return c.prefix + ":tasks"
}

// leaseKey returns the full key of a named lease.
func (c *StreamsClient) leaseKey(name string) string {
	return c.prefix + ":lease:" + name
}

// Close closes the underlying Redis client.
func (c *StreamsClient) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *StreamsClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// CreateConsumerGroup creates the worker consumer group if absent.
func (c *StreamsClient) CreateConsumerGroup(ctx context.Context, stream, group string) error {
	err := c.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// XAdd appends a message to a stream.
func (c *StreamsClient) XAdd(ctx context.Context, stream string, values map[string]any) (string, error) {
	return c.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
}

// XReadGroup reads messages for a consumer group.
func (c *StreamsClient) XReadGroup(
	ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration,
) ([]redis.XStream, error) {
	return c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  streams,
		Count:    count,
		Block:    block,
	}).Result()
}

// XAck acknowledges processed messages.
func (c *StreamsClient) XAck(ctx context.Context, stream, group string, ids ...string) error {
	return c.client.XAck(ctx, stream, group, ids...).Err()
}

// XPendingExt returns detailed pending entries for a stream.
func (c *StreamsClient) XPendingExt(
	ctx context.Context, stream, group, start, end string, count int64,
) ([]redis.XPendingExt, error) {
	return c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  start,
		End:    end,
		Count:  count,
	}).Result()
}

// XClaim claims pending messages for this consumer.
func (c *StreamsClient) XClaim(
	ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string,
) ([]redis.XMessage, error) {
	return c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
}

// XLen returns the length of a stream.
func (c *StreamsClient) XLen(ctx context.Context, stream string) (int64, error) {
	return c.client.XLen(ctx, stream).Result()
}

// XTrimMaxLen trims a stream to a maximum length.
func (c *StreamsClient) XTrimMaxLen(ctx context.Context, stream string, maxLen int64) error {
	return c.client.XTrimMaxLen(ctx, stream, maxLen).Err()
}

// AcquireLease takes a named lease for ttl. Returns false when another
// holder has it. Used to keep changelog syncs single-flight across
// workers.
func (c *StreamsClient) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.leaseKey(name), holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	return ok, nil
}

// ReleaseLease releases a named lease if this holder still owns it.
func (c *StreamsClient) ReleaseLease(ctx context.Context, name, holder string) error {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
	return c.client.Eval(ctx, script, []string{c.leaseKey(name)}, holder).Err()
}
