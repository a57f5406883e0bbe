package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// maxHandlerAttempts bounds how often one message is handed to the handler
// before it is dead-lettered and committed.
const maxHandlerAttempts = 3

// Handler processes one event.
type Handler func(ctx context.Context, event *Event) error

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterer receives messages the consumer gave up on.
type DeadLetterer interface {
	Publish(ctx context.Context, msg kafka.Message, cause error, group string) error
}

// ConsumerConfig configures a consumer group member for one topic.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int

	// Optional collaborators.
	Idempotency IdempotencyStore
	DLQ         DeadLetterer
	Metrics     *Metrics
}

// Consumer fetches, handles and commits messages one at a time.
type Consumer struct {
	reader  Reader
	topic   string
	group   string
	handler Handler
	dlq     DeadLetterer
	metrics *Metrics
	logger  *slog.Logger
	backoff func(attempt int) time.Duration

	closeOnce sync.Once
}

// NewConsumer builds a consumer over a kafka.Reader.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return NewConsumerWithReader(r, cfg, handler, logger)
}

// NewConsumerWithReader builds a consumer over an existing reader. cfg
// supplies the topic, group and optional collaborators.
func NewConsumerWithReader(r Reader, cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Consumer{
		reader:  r,
		topic:   cfg.Topic,
		group:   cfg.GroupID,
		handler: handler,
		dlq:     cfg.DLQ,
		metrics: cfg.Metrics,
		logger:  logger.With(slog.String("topic", cfg.Topic), slog.String("group", cfg.GroupID)),
		backoff: func(attempt int) time.Duration { return time.Duration(attempt) * 100 * time.Millisecond },
	}
	if cfg.Idempotency != nil {
		c.handler = guard(cfg.Idempotency, handler, c.logger, func(*Event) {
			c.metrics.inc(duplicateVec, c.topic, c.group)
		})
	}
	return c
}

// Start consumes until ctx is canceled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.InfoContext(ctx, "consumer started")
	defer func() {
		if err := c.Close(); err != nil {
			c.logger.Warn("failed to close reader", slog.String("error", err.Error()))
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("consumer stopping")
				return nil
			}
			c.logger.ErrorContext(ctx, "failed to fetch message", slog.String("error", err.Error()))
			if !sleep(ctx, c.backoff(1)) {
				return nil
			}
			continue
		}

		c.process(ctx, msg)
	}
}

// process handles one message and always commits it. Messages that cannot be
// decoded or keep failing go to the DLQ first when one is configured.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	c.metrics.inc(receivedVec, c.topic, c.group)
	msgCtx := extractTraceContext(ctx, msg)
	log := c.logger.With(slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset))

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		log.ErrorContext(msgCtx, "failed to decode event", slog.String("error", err.Error()))
		c.deadLetter(msgCtx, msg, err)
		c.commit(ctx, msg)
		return
	}

	start := time.Now()
	err = c.handle(msgCtx, event, log)
	c.metrics.observeHandle(c.topic, c.group, time.Since(start).Seconds())

	switch {
	case err == nil:
		c.metrics.inc(processedVec, c.topic, c.group)
	case ctx.Err() != nil:
		// Shutting down mid-retry; leave the offset for the next member.
		return
	default:
		c.metrics.inc(failedVec, c.topic, c.group)
		log.ErrorContext(msgCtx, "handler failed after all attempts",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		c.deadLetter(msgCtx, msg, err)
	}
	c.commit(ctx, msg)
}

func (c *Consumer) handle(ctx context.Context, event *Event, log *slog.Logger) error {
	var err error
	for attempt := 1; attempt <= maxHandlerAttempts; attempt++ {
		if err = c.handler(ctx, event); err == nil {
			return nil
		}
		log.WarnContext(ctx, "handler failed",
			slog.String("event_type", event.EventType),
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
		)
		if attempt < maxHandlerAttempts && !sleep(ctx, c.backoff(attempt)) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%d attempts: %w", maxHandlerAttempts, err)
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.group); err != nil {
		c.logger.ErrorContext(ctx, "failed to dead-letter message", slog.String("error", err.Error()))
		return
	}
	c.metrics.inc(dlqVec, c.topic, c.group)
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "failed to commit message",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the reader once.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.reader.Close() })
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
