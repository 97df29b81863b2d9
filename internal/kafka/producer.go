// Package kafka 结算结果的 Kafka 消息发布
package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/config"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// HeaderEventType 消息头中的事件类型
const (
	HeaderEventType       = "event-type"
	EventTypeBatchSettled = "settlement.batch_confirmed"
)

// ErrNoBrokers 未配置 broker
var ErrNoBrokers = errors.New("kafka: no brokers configured")

// Producer Kafka 生产者
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg *config.KafkaConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.ClientID = cfg.ClientID

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, err
	}
	return newProducer(producer, cfg.Topic), nil
}

func newProducer(p sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: p, topic: topic}
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.producer.Close()
}

// PublishSettlement 发布批次确认消息，以批次 ID 作为分区键
func (p *Producer) PublishSettlement(ctx context.Context, event *model.SettlementEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.BatchID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(EventTypeBatchSettled)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.Error("failed to publish settlement",
			"batch_id", event.BatchID,
			"tx_hash", event.TxHash,
			"error", err)
		return err
	}

	logger.Debug("settlement published",
		"batch_id", event.BatchID,
		"partition", partition,
		"offset", offset)
	return nil
}

// NoopPublisher 未启用 Kafka 时使用
type NoopPublisher struct{}

// PublishSettlement 丢弃消息
func (NoopPublisher) PublishSettlement(context.Context, *model.SettlementEvent) error {
	return nil
}
