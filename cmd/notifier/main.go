package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"sendconsult/internal/config"
	"sendconsult/internal/notifier"
	"sendconsult/internal/store"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
	log.Info("Starting notifier worker...")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Could not load configuration")
	}
	if cfg.KafkaBootstrapServers == "" {
		log.Fatal("KAFKA_BOOTSTRAP_SERVERS is not set")
	}
	if cfg.SMTPHost == "" || cfg.SMTPUser == "" || cfg.SMTPPassword == "" || cfg.MailFrom == "" {
		log.Fatal("SMTP environment variables are not set")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()

	recordStore := store.NewPostgres(db)
	sender := notifier.NewSMTPEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom, cfg.AdminEmail)
	service := notifier.NewService(sender, recordStore, cfg.AdminEmail)

	kafkaServers := strings.Trim(cfg.KafkaBootstrapServers, "\"")
	log.WithField("kafka_servers", kafkaServers).Info("Connecting to Kafka")

	purchaseConsumer := newConsumer(kafkaServers, cfg.KafkaConsumerGroup, cfg.KafkaPurchasesTopic, notifier.NewPurchaseHandler(service))
	defer purchaseConsumer.Close()
	bookingConsumer := newConsumer(kafkaServers, cfg.KafkaConsumerGroup, cfg.KafkaBookingsTopic, notifier.NewBookingHandler(service))
	defer bookingConsumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errchan := make(chan error, 2)
	go func() { errchan <- purchaseConsumer.Start(ctx) }()
	go func() { errchan <- bookingConsumer.Start(ctx) }()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigchan:
		log.Infof("Caught signal %v: terminating", sig)
		cancel()
	case err := <-errchan:
		log.WithError(err).Error("Consumer stopped")
		cancel()
	}
}

func newConsumer(servers, group, topic string, handler notifier.MessageHandler) *notifier.KafkaConsumer {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  servers,
		"group.id":           group,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to create Kafka consumer")
	}

	kc, err := notifier.NewKafkaConsumer(consumer, topic, handler)
	if err != nil {
		log.WithError(err).WithField("topic", topic).Fatal("Failed to subscribe to topic")
	}
	return kc
}
