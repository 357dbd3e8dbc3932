package events

import (
	"fmt"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Factories allow tests to substitute in-memory pub/subs for the real
// Kafka client.
var (
	PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return kafka.NewPublisher(cfg, logger)
	}
	SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return kafka.NewSubscriber(cfg, logger)
	}
)

// partitioningMarshaler keys outgoing messages by the partition_key
// metadata so the broker orders all events for an entity on one partition.
func partitioningMarshaler() kafka.MarshalerUnmarshaler {
	return kafka.NewWithPartitioningMarshaler(func(topic string, msg *message.Message) (string, error) {
		key := msg.Metadata.Get(MetadataPartitionKey)
		if key == "" {
			return "", fmt.Errorf("message %s on %s has no partition key", msg.UUID, topic)
		}
		return key, nil
	})
}

// NewKafkaPublisher builds the process-scoped publisher. It is created
// once at startup and shared across publishes; the underlying client pools
// broker connections so the request path never pays a connect/disconnect.
func NewKafkaPublisher(brokers []string, clientID string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	saramaCfg := kafka.DefaultSaramaSyncPublisherConfig()
	saramaCfg.ClientID = clientID

	return PublisherFactory(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             partitioningMarshaler(),
			OverwriteSaramaConfig: saramaCfg,
		},
		logger,
	)
}

// NewKafkaSubscriber builds a consumer-group subscriber that starts from
// the earliest retained offset on first run, so a newly deployed group
// catches up on history before tracking its own committed offsets.
func NewKafkaSubscriber(brokers []string, consumerGroup, clientID string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	saramaCfg := kafka.DefaultSaramaSubscriberConfig()
	saramaCfg.ClientID = clientID
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	return SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           partitioningMarshaler(),
			ConsumerGroup:         consumerGroup,
			OverwriteSaramaConfig: saramaCfg,
		},
		logger,
	)
}
