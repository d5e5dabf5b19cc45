// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package eventsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/camrec/internal/capture"
	"github.com/ManuGH/camrec/internal/metrics"
	"github.com/ManuGH/camrec/internal/resilience"
)

// DefaultChannel is the pub/sub channel lifecycle events are published on.
const DefaultChannel = "camrec:events"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
	Channel  string // pub/sub channel, DefaultChannel when empty
}

// Message is the JSON document published for each lifecycle event.
type Message struct {
	Kind     capture.EventKind `json:"kind"`
	Seq      uint64            `json:"seq"`
	Time     time.Time         `json:"time"`
	State    capture.State     `json:"state"`
	Artifact *capture.Artifact `json:"artifact,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// NewMessage converts a lifecycle event to its published form.
func NewMessage(ev capture.Event) Message {
	m := Message{Kind: ev.Kind, Seq: ev.Seq, Time: ev.Time, State: ev.State, Artifact: ev.Artifact}
	if ev.Err != nil {
		m.Error = ev.Err.Error()
	}
	return m
}

// RedisPublisher publishes lifecycle events on a Redis channel. Publishing
// runs on the dispatcher goroutine with a short timeout; failures are logged
// and counted, never retried. After repeated failures a circuit breaker skips
// publishing until Redis answers a probe again.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	logger  zerolog.Logger
	breaker *resilience.CircuitBreaker

	published atomic.Int64
	failed    atomic.Int64
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis event channel")

	return newRedisPublisher(client, cfg.Channel, logger), nil
}

func newRedisPublisher(client *redis.Client, channel string, logger zerolog.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		timeout: 2 * time.Second,
		logger:  logger,
		breaker: resilience.NewCircuitBreaker("redis_events", 3, 30*time.Second),
	}
}

func (p *RedisPublisher) HandleEvent(ev capture.Event) {
	if !ev.Kind.Lifecycle() {
		return
	}
	data, err := json.Marshal(NewMessage(ev))
	if err != nil {
		p.failed.Add(1)
		p.logger.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("json marshal failed")
		return
	}

	err = p.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		return p.client.Publish(ctx, p.channel, data).Err()
	})
	if err != nil {
		p.failed.Add(1)
		metrics.IncEventPublish("failure")
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			p.logger.Warn().Err(err).Str("channel", p.channel).Msg("redis publish failed")
		}
		return
	}
	p.published.Add(1)
	metrics.IncEventPublish("success")
}

// Counts returns the number of published and failed messages.
func (p *RedisPublisher) Counts() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}

// HealthCheck checks if Redis is available.
func (p *RedisPublisher) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
