// Package events defines the asynchronous contract between services: the
// topics, the message payloads, and the Kafka publisher/subscriber
// construction shared by producer and consumer sides.
//
// Delivery is at-least-once; consumers must be idempotent per partition
// key. Messages sharing a partition key are delivered in publish order,
// cross-key ordering is not guaranteed.
package events

import "time"

// Topics. The dead-letter topic receives messages the consumer classified
// as permanently unprocessable.
const (
	TopicUserRegistered           = "sign-up-successful"
	TopicUserRegisteredDeadLetter = "sign-up-successful.dlq"
)

// Metadata keys carried on every message.
const (
	MetadataPartitionKey  = "partition_key"
	MetadataCorrelationID = "correlation_id"
	MetadataEventType     = "event_type"
	MetadataProducedAt    = "produced_at"
)

// UserRegistered is the payload published when the identity service has
// durably committed a new user. The partition key is the user id so all
// events about one user stay ordered relative to each other.
type UserRegistered struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// EventTypeUserRegistered tags UserRegistered payloads in metadata so
// consumers can dispatch on event type rather than per-topic handlers.
const EventTypeUserRegistered = "user.registered"

// Envelope describes one staged or published event. The outbox persists
// this shape; the producer maps it onto a broker message.
type Envelope struct {
	Topic        string
	PartitionKey string
	EventType    string
	Payload      []byte
	ProducedAt   time.Time
}
