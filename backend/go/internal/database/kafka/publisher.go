package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CaseForAI/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageWriter 是 kafka.Writer 中发布者用到的部分。
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher 把任意值序列化为 JSON 写入单个主题。
type Publisher struct {
	writer MessageWriter
	topic  string
	logger *logger.Logger
}

// NewPublisher 创建写入 topic 的发布者。
func NewPublisher(brokers []string, topic string, log *logger.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return NewPublisherWithWriter(writer, topic, log)
}

// NewPublisherWithWriter 使用自定义 writer 创建发布者（测试中使用）。
func NewPublisherWithWriter(w MessageWriter, topic string, log *logger.Logger) *Publisher {
	return &Publisher{writer: w, topic: topic, logger: log}
}

// Publish 序列化 value 并以 key 为分区键发送。相同 key 的消息保证顺序。
func (p *Publisher) Publish(ctx context.Context, key string, value interface{}) error {
	msgBytes, err := json.Marshal(value)
	if err != nil {
		p.logger.WithErr(err).Error("Failed to marshal message for Kafka")
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.WithErr(err).WithPayload(map[string]interface{}{"topic": p.topic, "key": key}).Error("Failed to write message to Kafka")
		return fmt.Errorf("failed to write message to kafka topic %s: %w", p.topic, err)
	}
	return nil
}

// Topic 返回目标主题。
func (p *Publisher) Topic() string {
	return p.topic
}

// Close 关闭底层的 writer 连接。
func (p *Publisher) Close() error {
	return p.writer.Close()
}
