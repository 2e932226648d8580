package eventbus

import (
	"context"
	"crypto/tls"
	"crypto/x509"
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
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// KafkaEventBus carries events over Kafka, one topic per event type.
// Messages whose handlers keep failing go to a per-type DLQ topic which a
// background worker periodically republishes.
type KafkaEventBus struct {
	brokers []string
	writer  *kafka.Writer
	dialer  *kafka.Dialer
	cfg     config.EventBus
	ctx     context.Context

	handlers *handlerSet

	readers    map[events.EventType]*kafka.Reader
	readersMtx sync.Mutex
	topicsMtx  sync.Mutex
	topics     map[string]struct{}

	logger *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWithKafka connects to the comma separated broker list in cfg.KafkaBrokers.
func NewWithKafka(cfg *config.EventBus, logger *slog.Logger) (*KafkaEventBus, error) {
	if cfg == nil {
		return nil, fmt.Errorf("kafka event bus: config is required")
	}
	c := *cfg
	parsedBrokers := parseBrokers(c.KafkaBrokers)
	if len(parsedBrokers) == 0 {
		return nil, fmt.Errorf("kafka event bus: brokers are required")
	}
	if c.GroupID == "" {
		c.GroupID = defaultPrefix
	}
	if strings.TrimSpace(c.TopicPrefix) == "" {
		c.TopicPrefix = defaultPrefix
	}
	if c.DLQBatchSize <= 0 {
		c.DLQBatchSize = 10
	}
	if c.DLQRetryInterval <= 0 {
		c.DLQRetryInterval = 5 * time.Minute
	}
	if c.DLQRetry <= 0 {
		c.DLQRetry = 3
	}
	if logger == nil {
		logger = slog.Default()
	}

	dialer, transport, err := newKafkaDialer(&c)
	if err != nil {
		return nil, err
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(parsedBrokers...),
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
	}
	if transport != nil {
		writer.Transport = transport
	}

	ctx, cancel := context.WithCancel(context.Background())
	bus := &KafkaEventBus{
		brokers:  parsedBrokers,
		writer:   writer,
		dialer:   dialer,
		cfg:      c,
		ctx:      ctx,
		handlers: newHandlerSet(),
		readers:  make(map[events.EventType]*kafka.Reader),
		topics:   make(map[string]struct{}),
		logger:   logger.With("bus", "kafka"),
		cancel:   cancel,
	}

	if err := bus.ping(ctx); err != nil {
		_ = bus.Close()
		return nil, err
	}

	bus.startDLQRetryWorker(ctx)
	logger.Info("🚀 Kafka event bus initialized",
		"group_id", c.GroupID,
		"brokers", parsedBrokers,
		"dlq_retry_interval", c.DLQRetryInterval,
		"tls_enabled", dialer.TLS != nil,
		"sasl_enabled", dialer.SASLMechanism != nil,
	)
	return bus, nil
}

// Close stops background goroutines and closes network resources.
func (b *KafkaEventBus) Close() error {
	if b == nil {
		return nil
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.readersMtx.Lock()
	for _, r := range b.readers {
		_ = r.Close()
	}
	b.readersMtx.Unlock()
	b.wg.Wait()
	if b.writer != nil {
		return b.writer.Close()
	}
	return nil
}

func (b *KafkaEventBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	b.handlers.add(eventType, handler)
	b.ensureConsumer(eventType)
}

// Emit publishes an event keyed by its aggregate id so one account's
// transactions keep their order within a partition.
func (b *KafkaEventBus) Emit(ctx context.Context, event events.Event) error {
	if b == nil || b.writer == nil {
		return fmt.Errorf("kafka event bus: writer not initialized")
	}
	envBytes, err := encodeEnvelope(event)
	if err != nil {
		return fmt.Errorf("kafka event bus: %w", err)
	}
	topic := topicNameFor(b.cfg.TopicPrefix, events.EventType(event.Type()))
	if err := b.ensureTopic(ctx, topic); err != nil {
		return err
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(partitionKey(event)),
		Value: envBytes,
		Time:  time.Now(),
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka event bus: publish failed: %w", err)
	}
	return nil
}

func partitionKey(event events.Event) string {
	switch e := event.(type) {
	case *events.TransactionCompleted:
		return e.AccountID.String()
	case *events.ScheduleTick:
		return e.RuleID.String()
	}
	return event.Type()
}

func (b *KafkaEventBus) ping(ctx context.Context) error {
	conn, err := b.dialer.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return fmt.Errorf("kafka event bus: connection failed: %w", err)
	}
	_ = conn.Close()
	return nil
}

func (b *KafkaEventBus) ensureConsumer(eventType events.EventType) {
	b.readersMtx.Lock()
	defer b.readersMtx.Unlock()
	if _, exists := b.readers[eventType]; exists {
		return
	}
	topic := topicNameFor(b.cfg.TopicPrefix, eventType)
	if err := b.ensureTopic(b.ctx, topic); err != nil {
		b.logger.Error("kafka ensure topic error", "error", err, "event_type", eventType)
		return
	}
	reader := b.newReader(b.cfg.GroupID, topic, time.Second)
	b.readers[eventType] = reader

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consumeLoop(b.ctx, eventType, reader)
	}()
}

func (b *KafkaEventBus) newReader(groupID, topic string, maxWait time.Duration) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.brokers,
		GroupID:     groupID,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     maxWait,
		Dialer:      b.dialer,
	})
}

func (b *KafkaEventBus) consumeLoop(ctx context.Context, eventType events.EventType, reader *kafka.Reader) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if isCanceled(ctx, err) {
				return
			}
			b.logger.Error("kafka consume error", "error", err, "event_type", eventType)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		commit, procErr := b.processKafkaMessage(ctx, eventType, msg)
		if commit {
			if err := reader.CommitMessages(ctx, msg); err != nil {
				b.logger.Error("kafka commit error", "error", err, "topic", msg.Topic, "offset", msg.Offset)
			}
		} else if procErr != nil {
			b.logger.Error("kafka message processing failed; will retry", "error", procErr, "topic", msg.Topic, "offset", msg.Offset)
			time.Sleep(500 * time.Millisecond)
		}
	}
}

// processKafkaMessage reports whether the offset may be committed. Poison
// messages are committed after logging; handler failures are committed only
// once the message is safely in the DLQ.
func (b *KafkaEventBus) processKafkaMessage(
	ctx context.Context,
	eventType events.EventType,
	msg kafka.Message,
) (bool, error) {
	evt, err := decodeEnvelope(msg.Value)
	if err != nil {
		b.logger.Error("failed to decode message", "error", err, "topic", msg.Topic, "offset", msg.Offset)
		return true, nil
	}
	handlers := b.handlers.get(eventType)
	if len(handlers) == 0 {
		b.logger.Warn("no handlers registered for event type", "event_type", eventType)
		return true, nil
	}
	err = executeWithRetry(ctx, b.logger, evt, handlers, fmt.Sprintf("%d", msg.Offset), b.cfg.DLQRetry)
	if err == nil {
		return true, nil
	}
	if isCanceled(ctx, err) {
		return false, nil
	}
	if dlqErr := b.publishToDLQ(ctx, eventType, msg, err); dlqErr != nil {
		return false, dlqErr
	}
	return true, nil
}

// publishToDLQ copies msg to the dead letter topic with the handler error
// in the "error" header.
func (b *KafkaEventBus) publishToDLQ(ctx context.Context, eventType events.EventType, msg kafka.Message, cause error) error {
	dlqTopic := dlqTopicNameFor(b.cfg.TopicPrefix, eventType)
	if err := b.ensureTopic(ctx, dlqTopic); err != nil {
		return err
	}
	if err := b.writer.WriteMessages(ctx, kafka.Message{
		Topic:   dlqTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: []kafka.Header{{Key: "error", Value: []byte(cause.Error())}},
		Time:    time.Now(),
	}); err != nil {
		return fmt.Errorf("kafka event bus: dlq publish failed: %w", err)
	}
	b.logger.Warn("❌ [ERROR] Message dead-lettered", "event_type", eventType, "dlq_topic", dlqTopic, "error", cause)
	return nil
}

func newKafkaDialer(cfg *config.EventBus) (*kafka.Dialer, *kafka.Transport, error) {
	tlsConfig, err := buildKafkaTLSConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	mechanism, err := buildKafkaSASLMechanism(cfg)
	if err != nil {
		return nil, nil, err
	}
	dialer := &kafka.Dialer{
		Timeout:       5 * time.Second,
		TLS:           tlsConfig,
		SASLMechanism: mechanism,
	}
	if tlsConfig == nil && mechanism == nil {
		return dialer, nil, nil
	}
	return dialer, &kafka.Transport{TLS: tlsConfig, SASL: mechanism}, nil
}

func buildKafkaTLSConfig(cfg *config.EventBus) (*tls.Config, error) {
	if !cfg.TLSEnabled {
		return nil, nil
	}
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec
	}
	if caFile := strings.TrimSpace(cfg.TLSCAFile); caFile != "" {
		caBytes, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("kafka event bus: read tls ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("kafka event bus: invalid tls ca file")
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

func buildKafkaSASLMechanism(cfg *config.EventBus) (sasl.Mechanism, error) {
	username := strings.TrimSpace(cfg.SASLUsername)
	password := strings.TrimSpace(cfg.SASLPassword)
	if username == "" && password == "" {
		return nil, nil
	}
	if username == "" || password == "" {
		return nil, fmt.Errorf("kafka event bus: sasl username and password are required")
	}
	return plain.Mechanism{Username: username, Password: password}, nil
}

func (b *KafkaEventBus) ensureTopic(ctx context.Context, topic string) error {
	if topic == "" {
		return fmt.Errorf("kafka event bus: topic is required")
	}
	b.topicsMtx.Lock()
	_, exists := b.topics[topic]
	b.topicsMtx.Unlock()
	if exists {
		return nil
	}

	conn, err := b.dialer.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return fmt.Errorf("kafka event bus: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil && !isTopicAlreadyExists(err) {
		return fmt.Errorf("kafka event bus: create topic failed: %w", err)
	}
	b.topicsMtx.Lock()
	b.topics[topic] = struct{}{}
	b.topicsMtx.Unlock()
	return nil
}

func isTopicAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, kafka.TopicAlreadyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "TOPIC_ALREADY_EXISTS") ||
		strings.Contains(msg, "Topic with this name already exists")
}

func (b *KafkaEventBus) startDLQRetryWorker(ctx context.Context) {
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
					b.retryDLQ(ctx, t)
				}
			}
		}
	}()
}

func (b *KafkaEventBus) retryDLQ(ctx context.Context, eventType events.EventType) {
	reader := b.newReader(b.cfg.GroupID+"-dlq-retry", dlqTopicNameFor(b.cfg.TopicPrefix, eventType), 250*time.Millisecond)
	defer func() { _ = reader.Close() }()

	topic := topicNameFor(b.cfg.TopicPrefix, eventType)
	for i := 0; i < b.cfg.DLQBatchSize; i++ {
		fetchCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		msg, err := reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			return
		}
		if err := b.writer.WriteMessages(ctx, kafka.Message{
			Topic: topic,
			Key:   msg.Key,
			Value: msg.Value,
			Time:  time.Now(),
		}); err != nil {
			b.logger.Error("failed to republish DLQ message", "error", err, "event_type", eventType)
			return
		}
		_ = reader.CommitMessages(ctx, msg)
	}
}

func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

var _ eventbus.Bus = (*KafkaEventBus)(nil)
