// Package consumer wraps the franz-go consumer group client.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"secretsportal/internal/platform/config"
)

// Message is one consumed record, decoupled from the client library so
// handlers stay testable.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes consumed messages. Returning an error marks the message
// as failed but does not stop the consumer.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Consumer polls a topic as part of a consumer group and hands each record to
// the handler.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger
}

func New(cfg config.KafkaConfig, handler Handler, logger *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumerGroup(cfg.Group),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Consumer{
		client:  client,
		handler: handler,
		logger:  logger,
	}, nil
}

// EnsureTopic creates the topic if it does not exist yet. Safe to call on
// every startup.
func (c *Consumer) EnsureTopic(ctx context.Context, topic string) error {
	adm := kadm.NewClient(c.client)
	resp, err := adm.CreateTopics(ctx, -1, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

// Run polls until the context is cancelled. Only offsets of successfully
// handled records are committed; a failed record stays uncommitted and comes
// back on the next rebalance or restart.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		handled := c.processFetches(ctx, fetches)
		if len(handled) == 0 {
			continue
		}
		if err := c.client.CommitRecords(ctx, handled...); err != nil {
			c.logger.ErrorContext(ctx, "offset commit failed", "error", err)
		}
	}
}

// processFetches hands records to the handler in partition order and returns
// the records safe to commit. A handler failure stops its partition so the
// failed record and everything after it are redelivered; committing past a
// failure would lose the event for good.
func (c *Consumer) processFetches(ctx context.Context, fetches kgo.Fetches) []*kgo.Record {
	var handled []*kgo.Record
	fetches.EachPartition(func(p kgo.FetchTopicPartition) {
		for _, record := range p.Records {
			msg := &Message{
				Topic:     record.Topic,
				Key:       record.Key,
				Value:     record.Value,
				Timestamp: record.Timestamp,
			}
			if err := c.handler.Handle(ctx, msg); err != nil {
				c.logger.ErrorContext(ctx, "message handling failed, offset withheld for redelivery",
					"topic", record.Topic,
					"partition", record.Partition,
					"offset", record.Offset,
					"key", string(record.Key),
					"error", err,
				)
				return
			}
			handled = append(handled, record)
		}
	})
	return handled
}
