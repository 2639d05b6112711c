package metrics

import (
	"encoding/json"
	"fmt"
)

// RequestTopic is the Kafka topic request samples are published to.
const RequestTopic = "gateway.requests"

// MessageProducer is the subset of the Kafka producer the publisher needs.
type MessageProducer interface {
	ProduceMessage(topic string, key []byte, value []byte, headers map[string]string) error
}

// KafkaPublisher ships request samples to Kafka keyed by tenant, so the
// analytics pipeline can partition per tenant.
type KafkaPublisher struct {
	producer MessageProducer
}

// NewKafkaPublisher wraps a producer as a sample Publisher.
func NewKafkaPublisher(producer MessageProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// PublishSample implements Publisher.
func (p *KafkaPublisher) PublishSample(s Sample) error {
	value, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}
	return p.producer.ProduceMessage(RequestTopic, []byte(s.TenantID), value, nil)
}
