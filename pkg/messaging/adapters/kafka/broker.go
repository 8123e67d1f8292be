// Package kafka adapts the messaging.Broker/Producer/OffsetConsumer
// interfaces onto github.com/IBM/sarama.
package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/openfactory/assetstream/pkg/errors"
	"github.com/openfactory/assetstream/pkg/messaging"
)

// Config configures the Kafka broker adapter.
type Config struct {
	Brokers []string `env:"KAFKA_BROKER" env-separator:","`

	// Version is the Kafka protocol version to negotiate. Defaults to a
	// broadly compatible version when empty.
	Version string `env:"KAFKA_VERSION"`
}

// Broker implements messaging.Broker over a shared sarama client.
type Broker struct {
	cfg    Config
	client sarama.Client
}

// New dials the configured brokers and returns a ready messaging.Broker.
func New(cfg Config) (*Broker, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Consumer.Offsets.AutoCommit.Enable = false
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest

	if cfg.Version != "" {
		v, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, errors.InvalidArgument("invalid kafka version", err)
		}
		sc.Version = v
	}

	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.Unavailable("failed to connect to kafka", err)
	}

	return &Broker{cfg: cfg, client: client}, nil
}

// Producer creates a synchronous producer bound to topic.
func (b *Broker) Producer(topic string) (messaging.Producer, error) {
	sp, err := sarama.NewSyncProducerFromClient(b.client)
	if err != nil {
		return nil, errors.Unavailable("failed to create kafka producer", err)
	}
	return &producer{topic: topic, producer: sp}, nil
}

// Consumer creates a manually-committed, poll-driven consumer group member
// for topic. It also satisfies messaging.OffsetConsumer.
func (b *Broker) Consumer(topic string, group string) (messaging.Consumer, error) {
	cg, err := sarama.NewConsumerGroupFromClient(group, b.client)
	if err != nil {
		return nil, errors.Unavailable("failed to create kafka consumer group", err)
	}
	return newGroupConsumer(cg, topic, group), nil
}

func (b *Broker) Close() error {
	return b.client.Close()
}

func (b *Broker) Healthy(ctx context.Context) bool {
	brokers := b.client.Brokers()
	for _, broker := range brokers {
		if connected, _ := broker.Connected(); connected {
			return true
		}
	}
	return false
}

// producer is a Kafka sync producer implementation.
type producer struct {
	topic    string
	producer sarama.SyncProducer
}

func (p *producer) Publish(ctx context.Context, msg *messaging.Message) error {
	kafkaMsg := toProducerMessage(p.topic, msg)
	partition, offset, err := p.producer.SendMessage(kafkaMsg)
	if err != nil {
		return messaging.ErrPublishFailed(err)
	}
	msg.Metadata.Partition = partition
	msg.Metadata.Offset = offset
	return nil
}

func (p *producer) PublishBatch(ctx context.Context, msgs []*messaging.Message) error {
	kafkaMsgs := make([]*sarama.ProducerMessage, len(msgs))
	for i, msg := range msgs {
		kafkaMsgs[i] = toProducerMessage(p.topic, msg)
	}
	if err := p.producer.SendMessages(kafkaMsgs); err != nil {
		return messaging.ErrPublishFailed(err)
	}
	for i, kmsg := range kafkaMsgs {
		msgs[i].Metadata.Partition = kmsg.Partition
		msgs[i].Metadata.Offset = kmsg.Offset
	}
	return nil
}

func (p *producer) Close() error {
	return p.producer.Close()
}

func toProducerMessage(topic string, msg *messaging.Message) *sarama.ProducerMessage {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	kafkaMsg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(msg.Payload),
		Timestamp: msg.Timestamp,
	}
	if len(msg.Key) > 0 {
		kafkaMsg.Key = sarama.ByteEncoder(msg.Key)
	}
	for k, v := range msg.Headers {
		kafkaMsg.Headers = append(kafkaMsg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return kafkaMsg
}
