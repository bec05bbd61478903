package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"PersonaGen/backend/go/internal/config"
	"PersonaGen/backend/go/internal/models"
	"PersonaGen/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// messageReader 是 *kafka.Reader 中被 TurnConsumer 使用的部分。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TurnHandler 处理一条对话事件。返回错误时该消息不会被提交。
type TurnHandler func(ctx context.Context, event *models.TurnEvent) error

// TurnConsumer 从对话事件主题中消费消息并交给 TurnHandler 处理。
type TurnConsumer struct {
	reader messageReader
	logger *logger.Logger
}

// NewTurnConsumer 创建一个属于 groupID 消费组的 TurnConsumer。
func NewTurnConsumer(cfg *config.KafkaConfig, groupID string, log *logger.Logger) (*TurnConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("未配置 Kafka brokers")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: groupID,
		Topic:   cfg.TurnTopic,
	})
	return &TurnConsumer{reader: reader, logger: log}, nil
}

// Run 阻塞消费直到 ctx 被取消。无法解析的消息会被记录并提交，避免反复重投。
func (c *TurnConsumer) Run(ctx context.Context, handle TurnHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		var event models.TurnEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.WithError(models.NewErrorInfo(err, "decode_error")).
				WithField("offset", msg.Offset).
				Error("failed to unmarshal turn event")
		} else if err := handle(ctx, &event); err != nil {
			c.logger.WithError(models.NewErrorInfo(err, "handler_error")).
				WithField("profile_id", event.ProfileID).
				Error("failed to handle turn event")
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.WithError(models.NewErrorInfo(err, "commit_error")).Error("failed to commit message")
		}
	}
}

// Close 关闭底层的 reader 连接。
func (c *TurnConsumer) Close() error {
	return c.reader.Close()
}
