package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"PersonaGen/backend/go/internal/models"

	"github.com/segmentio/kafka-go"
)

// messageWriter 是 *kafka.Writer 中被 TurnPublisher 使用的部分。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TurnPublisher 封装了向 Kafka 发送对话事件的逻辑。
type TurnPublisher struct {
	writer messageWriter
	topic  string
}

// NewTurnPublisher 创建一个新的 TurnPublisher 实例。
func NewTurnPublisher(client *KafkaClient) *TurnPublisher {
	return &TurnPublisher{writer: client.Writer, topic: client.Config.TurnTopic}
}

// PublishTurn 将 TurnEvent 序列化为 JSON 并发送到 Kafka，以档案 ID 作为消息键。
func (p *TurnPublisher) PublishTurn(ctx context.Context, event *models.TurnEvent) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal turn event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.ProfileID),
		Value: jsonData,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// Close 关闭底层的 writer 连接。
func (p *TurnPublisher) Close() error {
	return p.writer.Close()
}
