package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/shopmesh/shopmesh/internal/ids"
	"github.com/shopmesh/shopmesh/internal/jsoncodec"
)

var (
	ErrPublisherRequired = errors.New("events: publisher is required")
	ErrTopicRequired     = errors.New("events: topic is required")
	ErrPartitionKeyEmpty = errors.New("events: partition key is required")
	ErrPayloadRequired   = errors.New("events: event payload is required")

	// ErrPublishFailed tags broker-side failures so callers can
	// distinguish them from marshalling mistakes. The triggering fact is
	// already committed when this surfaces; callers must not roll it
	// back.
	ErrPublishFailed = errors.New("events: publish failed")
)

// Producer emits domain events onto the shared publisher.
type Producer struct {
	publisher message.Publisher
}

func NewProducer(publisher message.Publisher) *Producer {
	return &Producer{publisher: publisher}
}

// NewMessage converts a payload into a broker message carrying the
// standard metadata set.
func NewMessage(eventType, partitionKey string, payload any, correlationID string) (*message.Message, error) {
	if payload == nil {
		return nil, ErrPayloadRequired
	}
	if partitionKey == "" {
		return nil, ErrPartitionKeyEmpty
	}

	body, err := jsoncodec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	msg := message.NewMessage(ids.NewULID(), body)
	msg.Metadata.Set(MetadataPartitionKey, partitionKey)
	msg.Metadata.Set(MetadataEventType, eventType)
	msg.Metadata.Set(MetadataProducedAt, time.Now().UTC().Format(time.RFC3339))
	if correlationID != "" {
		msg.Metadata.Set(MetadataCorrelationID, correlationID)
	}
	return msg, nil
}

// Publish marshals payload and publishes it keyed by partitionKey. It
// blocks until the broker acknowledges or the publisher fails.
func (p *Producer) Publish(ctx context.Context, topic, partitionKey, eventType string, payload any, correlationID string) error {
	if p == nil || p.publisher == nil {
		return ErrPublisherRequired
	}
	if topic == "" {
		return ErrTopicRequired
	}

	msg, err := NewMessage(eventType, partitionKey, payload, correlationID)
	if err != nil {
		return err
	}
	if ctx != nil {
		msg.SetContext(ctx)
	}

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("%w: topic %s: %v", ErrPublishFailed, topic, err)
	}
	return nil
}

// PublishEnvelope publishes an already-staged envelope, preserving its
// original produced-at timestamp. The outbox drainer uses this path.
func (p *Producer) PublishEnvelope(ctx context.Context, uuid string, env Envelope) error {
	if p == nil || p.publisher == nil {
		return ErrPublisherRequired
	}
	if env.Topic == "" {
		return ErrTopicRequired
	}
	if env.PartitionKey == "" {
		return ErrPartitionKeyEmpty
	}

	msg := message.NewMessage(uuid, env.Payload)
	msg.Metadata.Set(MetadataPartitionKey, env.PartitionKey)
	msg.Metadata.Set(MetadataEventType, env.EventType)
	msg.Metadata.Set(MetadataProducedAt, env.ProducedAt.UTC().Format(time.RFC3339))
	if ctx != nil {
		msg.SetContext(ctx)
	}

	if err := p.publisher.Publish(env.Topic, msg); err != nil {
		return fmt.Errorf("%w: topic %s: %v", ErrPublishFailed, env.Topic, err)
	}
	return nil
}
