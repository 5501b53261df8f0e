package kafka

import (
	"encoding/json"

	"PPClient/tools/errs"

	"github.com/Shopify/sarama"
)

// Producer 同步生产者；Key 决定分区，同一 key 的记录保持顺序
type Producer struct {
	sp sarama.SyncProducer
}

// NewProducer 连接集群并创建同步生产者
func NewProducer(c Config) (*Producer, error) {
	cfg, err := BuildBaseConfig(c)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("kafka version", "version", c.Version, "err", err)
	}
	sp, err := sarama.NewSyncProducer(c.Brokers, cfg)
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka producer", "brokers", c.Brokers)
	}
	return &Producer{sp: sp}, nil
}

// NewProducerFrom wraps an existing producer, e.g. sarama/mocks in tests.
func NewProducerFrom(sp sarama.SyncProducer) *Producer {
	return &Producer{sp: sp}
}

// SendSync 发送原始字节
func (p *Producer) SendSync(topic, key string, value []byte) (partition int32, offset int64, err error) {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	return p.sp.SendMessage(msg)
}

// SendJSON 把 v 编码为 JSON 后发送
func (p *Producer) SendJSON(topic, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errs.WrapMsg(err, "kafka encode", "topic", topic)
	}
	if _, _, err := p.SendSync(topic, key, b); err != nil {
		return errs.WrapMsg(err, "kafka send", "topic", topic, "key", key)
	}
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.sp == nil {
		return nil
	}
	return p.sp.Close()
}
