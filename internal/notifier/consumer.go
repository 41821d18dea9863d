package notifier

import (
	"context"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	log "github.com/sirupsen/logrus"

	"sendconsult/internal/metrics"
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, message []byte) error
}

// KafkaConsumer drives one topic's messages through a handler. Offsets
// are committed only after the handler returns, so a notification that
// failed mid-flight is redelivered when the worker restarts. Handlers
// must therefore tolerate seeing the same event twice.
type KafkaConsumer struct {
	consumer *kafka.Consumer
	topic    string
	handler  MessageHandler
}

func NewKafkaConsumer(consumer *kafka.Consumer, topic string, handler MessageHandler) (*KafkaConsumer, error) {
	if err := consumer.SubscribeTopics([]string{topic}, nil); err != nil {
		return nil, err
	}
	log.WithField("topic", topic).Info("Subscribed to Kafka topic")
	return &KafkaConsumer{consumer: consumer, topic: topic, handler: handler}, nil
}

func (c *KafkaConsumer) Start(ctx context.Context) error {
	logCtx := log.WithField("topic", c.topic)
	for {
		select {
		case <-ctx.Done():
			logCtx.Info("Kafka consumer stopping due to context cancellation")
			return ctx.Err()
		default:
			ev := c.consumer.Poll(100)
			if ev == nil {
				continue
			}

			switch e := ev.(type) {
			case *kafka.Message:
				metrics.NotificationsConsumed.WithLabelValues(c.topic).Inc()
				if err := c.handler.HandleMessage(ctx, e.Value); err != nil {
					metrics.NotificationFailures.WithLabelValues(c.topic).Inc()
					logCtx.WithError(err).WithField("offset", e.TopicPartition.Offset).
						Error("Failed to handle notification message")
					// Left uncommitted: redelivered on restart.
					continue
				}
				if _, err := c.consumer.CommitMessage(e); err != nil {
					logCtx.WithError(err).Error("Failed to commit offset")
				}
			case kafka.Error:
				logCtx.WithError(e).Error("Kafka error")
				if e.IsFatal() {
					return e
				}
			}
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.consumer.Close()
}
