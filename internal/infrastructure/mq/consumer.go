package mq

import (
	"context"
	"log"

	"cricketledger/internal/config"

	"github.com/IBM/sarama"
)

// MessageHandler 消费回调
// 返回 nil 表示消息处理完毕（包括"重试耗尽已标记失败"的情况），
// 偏移量随之提交；处理逻辑自身的重试在回调内部完成
type MessageHandler func(ctx context.Context, key, value []byte) error

// Consumer Kafka 消费者组封装
// 充值入账 worker 通过它消费 deposit.credit 主题
type Consumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler MessageHandler
}

// NewConsumer 创建 Kafka 消费者组
func NewConsumer(cfg *config.KafkaConfig, topics []string, handler MessageHandler) *Consumer {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	kafkaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, kafkaConfig)
	if err != nil {
		log.Fatalf("创建 Kafka 消费者组失败: %v", err)
	}

	log.Println("Kafka 消费者组创建成功")
	return &Consumer{
		group:   group,
		topics:  topics,
		handler: handler,
	}
}

// Start 启动消费循环，阻塞直到 ctx 取消
func (c *Consumer) Start(ctx context.Context) {
	log.Printf("[Consumer] 开始消费: topics=%v", c.topics)

	go func() {
		for err := range c.group.Errors() {
			log.Printf("[Consumer] 消费者组错误: %v", err)
		}
	}()

	for {
		// Consume 在再均衡后返回，需要循环重新加入
		if err := c.group.Consume(ctx, c.topics, &groupHandler{handler: c.handler}); err != nil {
			log.Printf("[Consumer] 消费失败: %v", err)
		}
		if ctx.Err() != nil {
			log.Println("[Consumer] 收到停止信号，消费退出")
			return
		}
	}
}

// Close 关闭消费者组
func (c *Consumer) Close() error {
	return c.group.Close()
}

// groupHandler 实现 sarama.ConsumerGroupHandler
type groupHandler struct {
	handler MessageHandler
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.handler(session.Context(), msg.Key, msg.Value); err != nil {
			// 回调已经做过有界重试，这里只记录，不阻塞分区
			log.Printf("[Consumer] 消息处理失败: topic=%s, offset=%d, err=%v", msg.Topic, msg.Offset, err)
		}
		session.MarkMessage(msg, "")
	}
	return nil
}
