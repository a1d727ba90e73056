package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/config"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/metrics"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/store"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/tlsutil"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

const retryBackoff = time.Second

// TraceSink stores decoded traces.
type TraceSink interface {
	CreateTrace(ctx context.Context, t *store.Trace) error
}

// NewSaramaConfig builds the client config shared by consumer and publisher.
func NewSaramaConfig(cfg config.KafkaConfig) (*sarama.Config, error) {
	if len(cfg.Brokers) == 0 {
		return nil, types.NewError(types.ErrValidation, "kafka brokers cannot be empty")
	}
	version := cfg.Version
	if version == "" {
		version = "2.8.0"
	}
	v, err := sarama.ParseKafkaVersion(version)
	if err != nil {
		return nil, types.NewError(types.ErrValidation, "invalid kafka version").WithCause(err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	sc := sarama.NewConfig()
	sc.Version = v
	sc.ClientID = cfg.ClientID
	if sc.ClientID == "" {
		sc.ClientID = "echosys"
	}
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 3
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Return.Errors = true
	sc.Net.DialTimeout = timeout
	sc.Net.ReadTimeout = timeout
	sc.Net.WriteTimeout = timeout
	if cfg.TLS {
		// ServerName 留空，由每个 broker 的拨号地址决定
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = tlsutil.ClientConfig("")
	}
	return sc, nil
}

// Consumer reads trace records from a consumer group into a TraceSink.
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	sink    TraceSink
	logger  *zap.Logger
	metrics *metrics.Collector

	closeOnce sync.Once
}

// NewConsumer connects a consumer group for cfg.Topic.
func NewConsumer(cfg config.KafkaConfig, sink TraceSink, logger *zap.Logger, m *metrics.Collector) (*Consumer, error) {
	if cfg.ConsumerGroup == "" {
		return nil, types.NewError(types.ErrValidation, "kafka consumer group cannot be empty")
	}
	sc, err := NewSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	return newConsumer(group, cfg.Topic, sink, logger, m), nil
}

func newConsumer(group sarama.ConsumerGroup, topic string, sink TraceSink, logger *zap.Logger, m *metrics.Collector) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		group:   group,
		topic:   topic,
		sink:    sink,
		logger:  logger.With(zap.String("component", "kafka_ingest"), zap.String("topic", topic)),
		metrics: m,
	}
}

// Run consumes until ctx is done. Session errors are logged and the
// session is re-joined after a short backoff.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Warn("kafka consumer error", zap.Error(err))
		}
	}()

	c.logger.Info("kafka ingest started")
	for {
		err := c.group.Consume(ctx, []string{c.topic}, c)
		if ctx.Err() != nil {
			c.logger.Info("kafka ingest stopped")
			return ctx.Err()
		}
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return nil
		}
		if err != nil {
			c.logger.Warn("kafka session ended", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff):
		}
	}
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.group.Close() })
	return err
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim implements sarama.ConsumerGroupHandler.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok || msg == nil {
				return nil
			}
			if err := c.handle(ctx, msg); err != nil {
				return err
			}
			session.MarkMessage(msg, "")
		}
	}
}

// handle stores one record. Only store failures are returned; bad records
// are logged and skipped.
func (c *Consumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	trace, kind, err := decode(msg.Value)
	if err != nil {
		c.metrics.RecordTraceSkipped(string(types.GetErrorCode(err)))
		c.logger.Warn("skipping malformed trace record",
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}
	if err := c.sink.CreateTrace(ctx, trace); err != nil {
		return fmt.Errorf("store trace at %d/%d: %w", msg.Partition, msg.Offset, err)
	}
	c.metrics.RecordTraceIngested(string(kind))
	c.logger.Debug("trace ingested", zap.Uint("trace_id", trace.ID), zap.String("type", string(kind)))
	return nil
}

// Publisher writes trace records to the traces topic.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewPublisher connects a synchronous producer.
func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	sc, err := NewSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Publisher{producer: producer, topic: cfg.Topic}, nil
}

// Publish validates and sends one trace. The record key is a fresh UUID.
func (p *Publisher) Publish(ctx context.Context, msg TraceMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := types.DecodeTraceContent(msg.Content); err != nil {
		return err
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode trace message: %w", err)
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(uuid.NewString()),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("publish trace: %w", err)
	}
	return nil
}

// Close closes the producer.
func (p *Publisher) Close() error { return p.producer.Close() }
