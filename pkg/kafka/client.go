// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"companion-go/internal/config"
	"companion-go/pkg/log"
	"companion-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// maxAttempts 是同一任务失败多少次后放弃重试。
const maxAttempts = 3

const retryBackoff = 2 * time.Second

// TaskProcessor 处理从 Kafka 消费到的导出任务。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.TranscriptExportTask) error
}

// Producer 把导出任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProduceExportTask 发送一个导出任务，以用户 ID 作为消息 key。
func (p *Producer) ProduceExportTask(ctx context.Context, task tasks.TranscriptExportTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", task.UserID)),
		Value: taskBytes,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理导出任务，ctx 取消时退出。
// 失败次数记录在 Redis 中，达到上限后提交 offset 放弃该任务。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, rdb *redis.Client) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var task tasks.TranscriptExportTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(ctx, r, m)
			continue
		}

		log.Infof("开始处理导出任务: TaskID=%s, UserID=%d", task.TaskID, task.UserID)
		attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.TaskID)
		// 计数放在 Redis 中，进程重启后重新投递的消息会接着之前的次数
		incr := func() (int64, error) {
			n, err := rdb.Incr(ctx, attemptsKey).Result()
			if err == nil {
				_ = rdb.Expire(ctx, attemptsKey, 24*time.Hour).Err()
			}
			return n, err
		}
		if err := processWithRetry(ctx, processor, task, incr, retryBackoff); err != nil {
			if ctx.Err() != nil {
				// 停机中断，不提交 offset，重启后重新投递
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Errorf("导出任务多次失败(>=%d)，提交 offset 放弃: TaskID=%s, Error: %v", maxAttempts, task.TaskID, err)
		} else {
			log.Infof("导出任务处理成功: TaskID=%s", task.TaskID)
		}
		_ = rdb.Del(ctx, attemptsKey).Err()
		commit(ctx, r, m)
	}
}

// processWithRetry 在当前进程内重试 Process，直到成功、累计次数达到 maxAttempts 或 ctx 结束。
// FetchMessage 不会回退 offset，未提交的消息在本次会话内不会重新投递。
// incr 返回本次是第几次尝试，出错时改用本地计数。
func processWithRetry(ctx context.Context, processor TaskProcessor, task tasks.TranscriptExportTask, incr func() (int64, error), backoff time.Duration) error {
	var local int64
	for {
		local++
		attempt := local
		if n, err := incr(); err == nil {
			attempt = n
		}

		err := processor.Process(ctx, task)
		if err == nil {
			return nil
		}
		log.Warnf("处理导出任务失败: TaskID=%s, 第 %d 次, Error: %v", task.TaskID, attempt, err)
		if attempt >= maxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
}

func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
