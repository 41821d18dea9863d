package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	log "github.com/sirupsen/logrus"
)

// KafkaPublisher writes reconciliation events to the configured topics.
type KafkaPublisher struct {
	producer       *kafka.Producer
	purchasesTopic string
	bookingsTopic  string
}

func NewKafkaPublisher(bootstrapServers, purchasesTopic, bookingsTopic string) (*KafkaPublisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": bootstrapServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	p := &KafkaPublisher{
		producer:       producer,
		purchasesTopic: purchasesTopic,
		bookingsTopic:  bookingsTopic,
	}
	go p.drainDeliveryReports()
	return p, nil
}

func (p *KafkaPublisher) PublishPurchaseRecorded(ctx context.Context, event PurchaseRecorded) error {
	return p.publish(p.purchasesTopic, event.StripeSessionID, event)
}

func (p *KafkaPublisher) PublishBookingRecorded(ctx context.Context, event BookingRecorded) error {
	return p.publish(p.bookingsTopic, event.InviteeURI, event)
}

func (p *KafkaPublisher) publish(topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
	}, nil)
}

func (p *KafkaPublisher) drainDeliveryReports() {
	for e := range p.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			log.WithError(m.TopicPartition.Error).WithField("topic", *m.TopicPartition.Topic).
				Error("Event delivery failed")
		}
	}
}

func (p *KafkaPublisher) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
}
