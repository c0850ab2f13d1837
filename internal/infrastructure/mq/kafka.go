package mq

import (
	"fmt"
	"log"

	"creditengine/internal/config"

	"github.com/IBM/sarama"
)

// HeaderEventType 消息头里的事件类型，消费方按它路由
const HeaderEventType = "event_type"

// Producer 领域事件生产者，封装 sarama 同步生产者
type Producer struct {
	producer sarama.SyncProducer
}

// NewSaramaConfig 生产者配置：等待所有副本确认
func NewSaramaConfig() *sarama.Config {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3                    // 重试次数
	kafkaConfig.Producer.Return.Successes = true          // 返回成功消息
	return kafkaConfig
}

// InitKafka 初始化 Kafka 生产者
func InitKafka(cfg *config.KafkaConfig) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	log.Println("Kafka 生产者创建成功")
	return NewProducer(producer), nil
}

// NewProducer 包装已有的 SyncProducer，测试里传 sarama/mocks
func NewProducer(producer sarama.SyncProducer) *Producer {
	return &Producer{producer: producer}
}

// Send 同步发送一条事件消息
func (p *Producer) Send(topic, key, eventType, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}
	if eventType != "" {
		msg.Headers = []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(eventType)},
		}
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

// Close 关闭 Kafka 生产者
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
