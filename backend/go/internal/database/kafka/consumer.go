package kafka

import (
	"context"
	"errors"
	"time"

	"CaseForAI/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageReader 是 kafka.Reader 中消费者用到的部分。
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler 处理一条消息。返回错误只会被记录，消息仍然会被提交。
type Handler func(ctx context.Context, msg kafka.Message) error

// Consumer 以消费者组方式读取一个主题。
type Consumer struct {
	reader  MessageReader
	logger  *logger.Logger
	backoff time.Duration
}

// NewConsumer 创建读取 topic 的消费者。
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})
	return NewConsumerWithReader(reader, log)
}

// NewConsumerWithReader 使用自定义 reader 创建消费者（测试中使用）。
func NewConsumerWithReader(r MessageReader, log *logger.Logger) *Consumer {
	return &Consumer{reader: r, logger: log, backoff: time.Second}
}

// Run 阻塞地消费消息，直到 ctx 被取消。
// 每条消息按 FetchMessage → handler → CommitMessages 的顺序处理。
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Stopping Kafka consumer...")
				return nil
			}
			c.logger.WithErr(err).Error("Error fetching message from Kafka")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		if err := handler(ctx, msg); err != nil {
			c.logger.WithErr(err).WithPayload(map[string]interface{}{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("Error handling Kafka message")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.WithErr(err).Error("Failed to commit Kafka message")
		}
	}
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
