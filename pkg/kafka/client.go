// Package kafka 提供了与写回队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"datapilot-go/internal/config"
	"datapilot-go/pkg/database"
	"datapilot-go/pkg/log"
	"datapilot-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a writeback task.
// This decouples the Kafka consumer from the concrete indexer implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ExampleIndexTask) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceExampleTask 发送一个示例写回任务到 Kafka。
// 写回是尽力而为的增强路径：失败只记录，不影响主请求。
func ProduceExampleTask(task tasks.ExampleIndexTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return producer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(task.TenantID),
			Value: taskBytes,
		},
	)
}

// StartConsumer 启动一个 Kafka 消费者来处理示例写回任务。
func StartConsumer(cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "datapilot-writeback",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		var task tasks.ExampleIndexTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理写回任务: key=%s, tenant=%s", task.ExampleKey, task.TenantID)
		if err := processor.Process(context.Background(), task); err != nil {
			log.Errorf("处理写回任务失败: key=%s, Error: %v", task.ExampleKey, err)
			// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
			attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.ExampleKey)
			attempts, incErr := database.RDB.Incr(context.Background(), attemptsKey).Result()
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			_ = database.RDB.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			if attempts >= 3 {
				log.Errorf("写回任务多次失败(>=3)，提交 offset 终止重试: key=%s", task.ExampleKey)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
		} else {
			_ = database.RDB.Del(context.Background(), fmt.Sprintf("kafka:attempts:%s", task.ExampleKey)).Err()
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}
