// Package notify fans production events out to Redis Streams so other
// processes can follow a run.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonathan/booksmith/internal/pipeline"
)

// Defaults for RedisConfig.
const (
	DefaultStream = "booksmith:events"
	DefaultMaxLen = 10000
)

// RedisConfig configures a RedisPublisher
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db"`
	Stream   string `json:"stream,omitempty"`
	MaxLen   int64  `json:"max_len,omitempty"`
}

// RedisPublisher appends events to a capped Redis stream.
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisPublisher connects and pings Redis.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = DefaultMaxLen
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisPublisher{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}, nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Publish appends one event. Cover bytes are stripped first.
func (p *RedisPublisher) Publish(ctx context.Context, ev pipeline.ProgressEvent) error {
	values, err := streamValues(ev)
	if err != nil {
		return err
	}
	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to stream: %w", err)
	}
	return nil
}

func streamValues(ev pipeline.ProgressEvent) (map[string]any, error) {
	ev = ev.ForWire()
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]any{
		"session_id": ev.SessionID,
		"type":       string(ev.Type),
		"payload":    string(payload),
		"emitted_at": ev.Time.Format(time.RFC3339Nano),
	}, nil
}
