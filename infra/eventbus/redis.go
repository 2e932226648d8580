package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/amirasaad/autotransfer/pkg/eventbus"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisEventField = "event"

// RedisEventBus carries events over Redis Streams. Each event type has its
// own stream and consumer group; a message whose handlers keep failing is
// moved to the type's DLQ stream and acknowledged.
type RedisEventBus struct {
	client     *redis.Client
	ownsClient bool
	cfg        config.EventBus
	consumer   string
	handlers   *handlerSet
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWithRedis creates a new Redis-backed event bus.
// url: Redis connection URL (e.g., "redis://localhost:6379")
func NewWithRedis(url string, cfg *config.EventBus, logger *slog.Logger) (*RedisEventBus, error) {
	if url == "" {
		return nil, fmt.Errorf("redis event bus: url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis event bus: invalid URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis event bus: connection failed: %w", err)
	}
	bus := NewWithRedisClient(client, cfg, logger)
	bus.ownsClient = true
	return bus, nil
}

// NewWithRedisClient builds the bus on an existing client. The caller keeps
// ownership of client.
func NewWithRedisClient(client *redis.Client, cfg *config.EventBus, logger *slog.Logger) *RedisEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	c := config.EventBus{}
	if cfg != nil {
		c = *cfg
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = defaultPrefix
	}
	if c.DLQRetry <= 0 {
		c.DLQRetry = 3
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 5 * time.Second
	}
	if c.DLQBatchSize <= 0 {
		c.DLQBatchSize = 10
	}
	host, _ := os.Hostname()
	ctx, cancel := context.WithCancel(context.Background())
	bus := &RedisEventBus{
		client:   client,
		cfg:      c,
		consumer: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		handlers: newHandlerSet(),
		logger:   logger.With("component", "redis-event-bus"),
		ctx:      ctx,
		cancel:   cancel,
	}
	if c.DLQRetryInterval > 0 {
		bus.startDLQRetryWorker(ctx)
	}
	return bus
}

// Emit publishes an event to the stream of its type.
func (b *RedisEventBus) Emit(ctx context.Context, event events.Event) error {
	if b.client == nil {
		return fmt.Errorf("redis event bus: client not initialized")
	}
	envBytes, err := encodeEnvelope(event)
	if err != nil {
		b.logger.Error("failed to marshal event", "error", err, "type", event.Type())
		return fmt.Errorf("redis event bus: %w", err)
	}
	stream := streamNameFor(b.cfg.TopicPrefix, events.EventType(event.Type()))
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{redisEventField: string(envBytes)},
	}).Err(); err != nil {
		b.logger.Error("failed to emit event", "error", err, "type", event.Type())
		return fmt.Errorf("redis event bus: emit failed: %w", err)
	}
	b.logger.Debug("event emitted", "type", event.Type(), "stream", stream)
	return nil
}

// Register adds a handler. The first registration for a type creates the
// consumer group and starts its read loop.
func (b *RedisEventBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	if !b.handlers.add(eventType, handler) {
		return
	}
	stream := streamNameFor(b.cfg.TopicPrefix, eventType)
	group := groupNameFor(b.cfg.TopicPrefix, eventType)
	if err := b.client.XGroupCreateMkStream(b.ctx, stream, group, "0").Err(); err != nil &&
		!strings.Contains(err.Error(), "BUSYGROUP") {
		b.logger.Error("failed to create consumer group", "error", err, "stream", stream)
	}
	b.logger.Info("registering handler", "event_type", eventType, "stream", stream, "consumer", b.consumer)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consumeLoop(b.ctx, eventType, stream, group)
	}()
}

func (b *RedisEventBus) consumeLoop(ctx context.Context, eventType events.EventType, stream, group string) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: b.consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    b.cfg.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			b.logger.Error("error reading from stream", "error", err, "stream", stream)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for _, s := range res {
			for _, msg := range s.Messages {
				b.handleMessage(ctx, eventType, stream, group, msg)
			}
		}
	}
}

func (b *RedisEventBus) handleMessage(
	ctx context.Context,
	eventType events.EventType,
	stream, group string,
	msg redis.XMessage,
) {
	log := b.logger.With("stream", stream, "msg_id", msg.ID)
	raw, _ := msg.Values[redisEventField].(string)
	evt, err := decodeEnvelope([]byte(raw))
	if err != nil {
		log.Error("undecodable message", "error", err)
		b.pushToDLQ(ctx, eventType, msg.Values, err)
	} else if err := executeWithRetry(
		ctx, log, evt, b.handlers.get(eventType), msg.ID, b.cfg.DLQRetry,
	); err != nil {
		if ctx.Err() != nil {
			// Left pending; redelivered to this group after restart.
			return
		}
		b.pushToDLQ(ctx, eventType, msg.Values, err)
	}
	if err := b.client.XAck(ctx, stream, group, msg.ID).Err(); err != nil {
		log.Error("failed to acknowledge message", "error", err)
	}
}

// pushToDLQ copies the raw message to the DLQ stream with the failure reason.
func (b *RedisEventBus) pushToDLQ(ctx context.Context, eventType events.EventType, values map[string]any, cause error) {
	dlq := dlqStreamName(b.cfg.TopicPrefix, eventType)
	out := make(map[string]any, len(values)+1)
	for k, v := range values {
		out[k] = v
	}
	out["error"] = cause.Error()
	if err := b.client.XAdd(ctx, &redis.XAddArgs{Stream: dlq, Values: out}).Err(); err != nil {
		b.logger.Error("failed to push to DLQ", "error", err, "stream", dlq)
		return
	}
	b.logger.Warn("event pushed to DLQ", "stream", dlq, "event_type", eventType)
}

// RetryDLQ moves up to DLQBatchSize dead-lettered messages of eventType back
// onto the main stream and returns how many were moved.
func (b *RedisEventBus) RetryDLQ(ctx context.Context, eventType events.EventType) (int, error) {
	dlq := dlqStreamName(b.cfg.TopicPrefix, eventType)
	stream := streamNameFor(b.cfg.TopicPrefix, eventType)
	msgs, err := b.client.XRangeN(ctx, dlq, "-", "+", int64(b.cfg.DLQBatchSize)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis event bus: read dlq: %w", err)
	}
	moved := 0
	for _, msg := range msgs {
		raw, _ := msg.Values[redisEventField].(string)
		if err := b.client.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			Values: map[string]any{redisEventField: raw},
		}).Err(); err != nil {
			return moved, fmt.Errorf("redis event bus: republish: %w", err)
		}
		if err := b.client.XDel(ctx, dlq, msg.ID).Err(); err != nil {
			return moved, fmt.Errorf("redis event bus: trim dlq: %w", err)
		}
		moved++
	}
	return moved, nil
}

func (b *RedisEventBus) startDLQRetryWorker(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.cfg.DLQRetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, t := range []events.EventType{
					events.EventTypeTransactionCompleted,
					events.EventTypeScheduleTick,
				} {
					if n, err := b.RetryDLQ(ctx, t); err != nil {
						b.logger.Error("dlq retry failed", "error", err, "event_type", t)
					} else if n > 0 {
						b.logger.Info("🔁 requeued dead letters", "event_type", t, "count", n)
					}
				}
			}
		}
	}()
}

// Close stops the consumers and, when the bus dialed the client, closes it.
func (b *RedisEventBus) Close() error {
	b.cancel()
	b.wg.Wait()
	if b.ownsClient {
		return b.client.Close()
	}
	return nil
}

var _ eventbus.Bus = (*RedisEventBus)(nil)
