// Package redisreporter implements a reporter that publishes the run's
// finish event (and, optionally, each result/bail event) to a Redis
// pub/sub channel, with the same Config/New/Publish/Close shape and
// retry/backoff loop as the other reporter adapters, built on
// github.com/redis/go-redis/v9.
package redisreporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/qunitjs/qtap/log"
	"github.com/qunitjs/qtap/types"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "qtap:finish"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis pub/sub reporter.
type Config struct {
	// Addr is the Redis server address, host:port (required).
	Addr string
	// Channel is the pub/sub channel name (default: qtap:finish).
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
	// PublishIntermediateEvents, if true, also publishes result and
	// bail events as they arrive instead of only the final finish
	// event.
	PublishIntermediateEvents bool
}

// Reporter publishes qtap events via Redis PUBLISH.
type Reporter struct {
	runID  string
	config Config
	client *goredis.Client
	logger *log.Logger
}

// New creates a Redis pub/sub Reporter from cfg. Returns an error if
// cfg.Addr is empty.
func New(runID string, cfg Config, logger *log.Logger) (*Reporter, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis reporter requires an address")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Reporter{
		runID:  runID,
		config: cfg,
		client: goredis.NewClient(&goredis.Options{Addr: cfg.Addr}),
		logger: logger,
	}, nil
}

// Handle implements bus.Subscriber.
func (r *Reporter) Handle(e types.Event) {
	switch e.(type) {
	case types.FinishEvent:
	case types.ResultEvent, types.BailEvent:
		if !r.config.PublishIntermediateEvents {
			return
		}
	default:
		return
	}

	if err := r.publish(context.Background(), e); err != nil {
		r.logger.Error("redis reporter failed", map[string]any{"error": err.Error()})
	}
}

// publish sends e as a JSON PUBLISH to the configured channel,
// retrying with exponential backoff on failure.
func (r *Reporter) publish(ctx context.Context, e types.Event) error {
	body, err := json.Marshal(struct {
		RunID string          `json:"run_id"`
		Type  types.EventType `json:"type"`
		Event types.Event     `json:"event"`
	}{RunID: r.runID, Type: e.EventType(), Event: e})
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	var lastErr error
	attempts := 1 + r.config.Retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("redis: context canceled: %w", err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("redis: context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		publishCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		lastErr = r.client.Publish(publishCtx, r.config.Channel, body).Err()
		cancel()

		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("redis: failed after %d attempts: %w", attempts, lastErr)
}

// Close releases the underlying Redis client connection.
func (r *Reporter) Close() error {
	return r.client.Close()
}
