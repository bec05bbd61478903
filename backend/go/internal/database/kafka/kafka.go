package kafka

import (
	"fmt"
	"sync"
	"time"

	"PersonaGen/backend/go/internal/config"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// KafkaClient 持有 Kafka writer 的单例实例。
type KafkaClient struct {
	Writer *kafka.Writer
	Config *config.KafkaConfig
}

var (
	client  *KafkaClient
	once    sync.Once
	initErr error
)

// GetClient 使用单例模式初始化并返回一个 KafkaClient 实例。
// 首次调用时，它会连接到 Kafka 并在对话事件主题不存在时创建它。
func GetClient(cfg *config.KafkaConfig) (*KafkaClient, error) {
	once.Do(func() {
		if len(cfg.Brokers) == 0 {
			initErr = fmt.Errorf("未配置 Kafka brokers")
			return
		}
		if cfg.TurnTopic == "" {
			initErr = fmt.Errorf("未配置 Kafka 对话事件主题")
			return
		}

		if err := ensureTopics(cfg.Brokers[0], cfg.TurnTopic); err != nil {
			initErr = err
			return
		}

		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{}, // 同一档案的事件落在同一分区，保证顺序
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		}

		logrus.WithField("brokers", cfg.Brokers).Info("成功初始化 Kafka 客户端")
		client = &KafkaClient{Writer: writer, Config: cfg}
	})

	return client, initErr
}

// ensureTopics 通过管理连接创建不存在的主题。
func ensureTopics(broker string, topics ...string) error {
	conn, err := kafka.Dial("tcp", broker)
	if err != nil {
		return fmt.Errorf("kafka 初始化连接失败: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("无法读取 Kafka 分区信息: %w", err)
	}
	existing := make(map[string]struct{})
	for _, p := range partitions {
		existing[p.Topic] = struct{}{}
	}

	var toCreate []kafka.TopicConfig
	for _, topic := range topics {
		if _, ok := existing[topic]; !ok {
			toCreate = append(toCreate, kafka.TopicConfig{
				Topic:             topic,
				NumPartitions:     1,
				ReplicationFactor: 1,
			})
		}
	}
	if len(toCreate) == 0 {
		return nil
	}
	if err := conn.CreateTopics(toCreate...); err != nil {
		return fmt.Errorf("自动创建 Kafka 主题失败: %w", err)
	}
	logrus.WithField("count", len(toCreate)).Info("成功创建 Kafka 主题")
	return nil
}

// Close 安全地关闭单例的 Kafka writer。
func (c *KafkaClient) Close() error {
	if c == nil || c.Writer == nil {
		return nil
	}
	if err := c.Writer.Close(); err != nil {
		return fmt.Errorf("关闭 Kafka writer 失败: %w", err)
	}
	return nil
}
