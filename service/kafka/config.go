package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

// Config Kafka 连接与 topic 参数
type Config struct {
	Brokers                 []string `yaml:"brokers"`
	GroupID                 string   `yaml:"groupId"`
	Version                 string   `yaml:"version"`            // 例如 2.1.0
	PartitionsPerTopic      int32    `yaml:"partitionsPerTopic"` // Demo: 8
	ReplicationFactor       int16    `yaml:"replicationFactor"`  // 单机=1；生产=3
	ProducerRetries         int      `yaml:"producerRetries"`
	ProducerCompression     string   `yaml:"producerCompression"` // none/snappy/lz4/zstd
	ConsumerInitialOffset   string   `yaml:"initialOffset"`       // newest/oldest
	AutoCreateTopicsOnStart bool     `yaml:"autoCreateTopics"`
}

// DefaultConfig 单机开发用的默认值
func DefaultConfig() Config {
	return Config{
		Brokers:                 []string{"127.0.0.1:9092"},
		GroupID:                 "ppchat-devapi",
		Version:                 sarama.V2_1_0_0.String(),
		PartitionsPerTopic:      8,
		ReplicationFactor:       1,
		ProducerRetries:         5,
		ProducerCompression:     "snappy",
		ConsumerInitialOffset:   "newest",
		AutoCreateTopicsOnStart: true,
	}
}

// BuildBaseConfig 生产者与消费者共用的 sarama 配置
func BuildBaseConfig(c Config) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	if c.Version != "" {
		v, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, err
		}
		cfg.Version = v
	}

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = c.ProducerRetries
	if cfg.Producer.Retry.Max <= 0 {
		cfg.Producer.Retry.Max = 1
	}
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // Key 控制分区
	cfg.Producer.Compression = compression(c.ProducerCompression)

	// Consumer
	switch strings.ToLower(c.ConsumerInitialOffset) {
	case "oldest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	// Net
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg, nil
}

func compression(s string) sarama.CompressionCodec {
	switch strings.ToLower(s) {
	case "snappy":
		return sarama.CompressionSnappy
	case "lz4":
		return sarama.CompressionLZ4
	case "zstd":
		return sarama.CompressionZSTD
	default:
		return sarama.CompressionNone
	}
}
