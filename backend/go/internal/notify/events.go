package notify

import (
	"context"
	"encoding/json"
	"time"

	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Publisher 发布案件事件，实现见 EventPublisher。
type Publisher interface {
	Publish(ctx context.Context, event models.CaseEvent) error
}

// RawPublisher 是 kafka.Publisher 的接口形式。
type RawPublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// EventPublisher 把案件事件写入 case.event 主题，以案件 ID 作为分区键。
type EventPublisher struct {
	raw RawPublisher
	now func() time.Time
}

// NewEventPublisher 创建一个 EventPublisher。
func NewEventPublisher(raw RawPublisher) *EventPublisher {
	return &EventPublisher{raw: raw, now: time.Now}
}

// Publish 发布一条案件事件，At 为空时填入当前时间。
func (p *EventPublisher) Publish(ctx context.Context, event models.CaseEvent) error {
	if event.At.IsZero() {
		event.At = p.now().UTC()
	}
	return p.raw.Publish(ctx, event.CaseID, event)
}

// Dispatcher 消费 case.event 并推送给对应用户的 websocket 连接。
type Dispatcher struct {
	hub    *Hub
	logger *logger.Logger
}

// NewDispatcher 创建一个 Dispatcher。
func NewDispatcher(hub *Hub, log *logger.Logger) *Dispatcher {
	return &Dispatcher{hub: hub, logger: log}
}

// HandleMessage 是 kafka.Consumer 的消息处理函数。
func (d *Dispatcher) HandleMessage(_ context.Context, msg kafka.Message) error {
	var event models.CaseEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return err
	}
	if event.UserID == 0 {
		return nil
	}
	delivered := d.hub.Send(event.UserID, msg.Value)
	d.logger.WithPayload(map[string]interface{}{
		"type":      event.Type,
		"case_id":   event.CaseID,
		"user_id":   event.UserID,
		"delivered": delivered,
	}).Debug("Case event dispatched")
	return nil
}

// NopPublisher 丢弃所有事件，用于未配置 Kafka 的场景和测试。
type NopPublisher struct{}

// Publish 什么也不做。
func (NopPublisher) Publish(context.Context, models.CaseEvent) error { return nil }

var (
	_ Publisher = (*EventPublisher)(nil)
	_ Publisher = NopPublisher{}
)
