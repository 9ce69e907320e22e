package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/histx/internal/shared"
)

const (
	// QueueKey is the Redis list events are pushed to.
	QueueKey = "histx:aggregate:queue"
	// AckKeyPrefix prefixes the per-request list the worker acknowledges on.
	AckKeyPrefix = "histx:aggregate:ack:"

	ackOK  = "ok"
	ackTTL = 5 * time.Minute
)

// RedisTrigger pushes events onto [QueueKey] and blocks on the request's ack list.
type RedisTrigger struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisTrigger creates a trigger that waits up to timeout for each ack.
func NewRedisTrigger(client *redis.Client, timeout time.Duration) *RedisTrigger {
	return &RedisTrigger{client: client, timeout: timeout}
}

func (t *RedisTrigger) Trigger(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := t.client.RPush(ctx, QueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue event: %w", err)
	}

	res, err := t.client.BLPop(ctx, t.timeout, AckKeyPrefix+e.RequestID).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: request %s after %s", shared.ErrAckTimeout, e.RequestID, t.timeout)
	}
	if err != nil {
		return fmt.Errorf("failed to wait for ack: %w", err)
	}

	// BLPOP returns [key, value].
	if len(res) == 2 && res[1] != ackOK {
		return fmt.Errorf("aggregate worker failed: %s", res[1])
	}
	return nil
}

// RedisConsumer feeds events from [QueueKey] to a handler and acknowledges each one.
type RedisConsumer struct {
	client  *redis.Client
	handler Handler
	poll    time.Duration
	logger  *log.Logger
}

// NewRedisConsumer creates a consumer that polls the queue every poll interval.
func NewRedisConsumer(client *redis.Client, handler Handler, poll time.Duration, logger *log.Logger) *RedisConsumer {
	if poll <= 0 {
		poll = time.Second
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &RedisConsumer{client: client, handler: handler, poll: poll, logger: logger}
}

// Run processes events until ctx is cancelled.
func (c *RedisConsumer) Run(ctx context.Context) error {
	c.logger.Info("aggregate worker started", "queue", QueueKey)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		res, err := c.client.BLPop(ctx, c.poll, QueueKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read queue: %w", err)
		}
		if len(res) != 2 {
			continue
		}

		if err := c.process(ctx, res[1]); err != nil {
			c.logger.Error("failed to acknowledge event", "error", err)
		}
	}
}

func (c *RedisConsumer) process(ctx context.Context, payload string) error {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		c.logger.Warn("dropping malformed event", "error", err)
		return nil
	}

	ack := ackOK
	if err := c.handler.Handle(ctx, e); err != nil {
		c.logger.Error("aggregate recalculation failed", "user", e.UserID, "error", err)
		ack = err.Error()
	}

	key := AckKeyPrefix + e.RequestID
	pipe := c.client.TxPipeline()
	pipe.RPush(ctx, key, ack)
	pipe.Expire(ctx, key, ackTTL)
	_, err := pipe.Exec(ctx)
	return err
}

type localRequest struct {
	event Event
	ack   chan error
}

// LocalTrigger hands events to a handler running in this process.
type LocalTrigger struct {
	requests chan localRequest
	timeout  time.Duration
}

// NewLocalTrigger creates an in-process trigger with a buffered queue.
func NewLocalTrigger(timeout time.Duration) *LocalTrigger {
	return &LocalTrigger{requests: make(chan localRequest, 64), timeout: timeout}
}

func (t *LocalTrigger) Trigger(ctx context.Context, e Event) error {
	req := localRequest{event: e, ack: make(chan error, 1)}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case t.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: queue full for request %s", shared.ErrAckTimeout, e.RequestID)
	}

	select {
	case err := <-req.ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: request %s after %s", shared.ErrAckTimeout, e.RequestID, t.timeout)
	}
}

// Serve runs h for each queued event until ctx is cancelled.
func (t *LocalTrigger) Serve(ctx context.Context, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-t.requests:
			req.ack <- h.Handle(ctx, req.event)
		}
	}
}
