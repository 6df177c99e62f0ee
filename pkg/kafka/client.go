// Package kafka 提供了与 Kafka 消息队列交互的功能。
// 问答质量记录先写入 Kafka，再由消费者异步落库，请求路径不直接依赖 MySQL。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"evidence-rag-go/internal/config"
	"evidence-rag-go/internal/model"
	"evidence-rag-go/pkg/log"
	"evidence-rag-go/pkg/retry"
)

// maxAttempts 是单条记录落库的最大尝试次数，超过后提交 offset 放弃。
const maxAttempts = 3

// retryDelay 是同一条消息两次落库尝试之间的初始等待，之后指数增长。
const retryDelay = time.Second

var errNotStored = errors.New("quality record not stored")

// QualityStore 是消费者落库的目标。
type QualityStore interface {
	Append(ctx context.Context, rec model.QualityRecord) error
}

// AttemptCounter 记录每条消息的失败次数，跨消费者实例共享。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// QualityProducer 把质量记录写入 Kafka。
type QualityProducer struct {
	writer *kafka.Writer
}

// Brokers 解析逗号分隔的 broker 列表。
func Brokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewQualityProducer 初始化 Kafka 生产者。
func NewQualityProducer(cfg config.KafkaConfig) *QualityProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(Brokers(cfg.Brokers)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	log.Infof("Kafka 质量记录生产者初始化成功, topic: %s", cfg.Topic)
	return &QualityProducer{writer: w}
}

// Append 发送一条质量记录，以记录 ID 作为消息 key。
func (p *QualityProducer) Append(ctx context.Context, rec model.QualityRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode quality record: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(rec.ID), Value: value}); err != nil {
		return fmt.Errorf("failed to produce quality record: %w", err)
	}
	return nil
}

// Close 刷新并关闭生产者。
func (p *QualityProducer) Close() error {
	return p.writer.Close()
}

// messageReader 是消费循环依赖的 kafka.Reader 子集。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StartConsumer 启动消费者，把质量记录写入 store，直到 ctx 结束。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, store QualityStore, counter AttemptCounter) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  Brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	consume(ctx, r, store, counter, retryDelay)
}

// consume 逐条处理消息。group reader 不会重新投递未提交的消息，
// 因此落库失败的消息在原地重试，最多 maxAttempts 次后提交 offset 继续。
func consume(ctx context.Context, r messageReader, store QualityStore, counter AttemptCounter, delay time.Duration) {
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info("Kafka 消费者已停止")
			} else {
				log.Error("从 Kafka 读取消息失败", err)
			}
			return
		}

		err = retry.Do(ctx, maxAttempts, delay, func(ctx context.Context) error {
			if handleMessage(ctx, store, counter, m) {
				return nil
			}
			return errNotStored
		})
		if err != nil {
			if ctx.Err() != nil {
				// 停机中断重试：不提交，重启后从已提交的 offset 重新消费
				log.Warnf("Kafka 消费者停止, 质量记录未提交: offset %d", m.Offset)
				return
			}
			log.Errorf("质量记录重试 %d 次仍未落库，提交 offset 放弃: offset %d", maxAttempts, m.Offset)
		}
		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// handleMessage 处理一条消息的一次尝试，返回是否应提交 offset。
func handleMessage(ctx context.Context, store QualityStore, counter AttemptCounter, m kafka.Message) bool {
	var rec model.QualityRecord
	if err := json.Unmarshal(m.Value, &rec); err != nil || rec.ID == "" {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析质量记录消息: offset %d, err: %v", m.Offset, err)
		return true
	}

	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	attemptsKey := "kafka:attempts:quality:" + rec.ID
	if err := store.Append(wctx, rec); err != nil {
		log.Errorf("质量记录落库失败: id=%s, err: %v", rec.ID, err)
		attempts, incErr := counter.Incr(ctx, attemptsKey)
		if incErr != nil {
			// 计数不可用时只依赖调用方的本地重试上限
			log.Warnf("失败计数不可用: id=%s, err: %v", rec.ID, incErr)
			return false
		}
		if attempts >= maxAttempts {
			log.Errorf("质量记录多次落库失败(>=%d)，提交 offset 放弃: id=%s", maxAttempts, rec.ID)
			return true
		}
		return false
	}

	_ = counter.Reset(ctx, attemptsKey)
	log.Infof("质量记录已落库: id=%s", rec.ID)
	return true
}
