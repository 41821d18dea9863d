package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"sendconsult/internal/catalog"
	"sendconsult/internal/config"
	"sendconsult/internal/domain"
	"sendconsult/internal/entitlement"
	"sendconsult/internal/events"
	"sendconsult/internal/payments"
	"sendconsult/internal/reconcile"
	"sendconsult/internal/scheduling"
	"sendconsult/internal/server"
	"sendconsult/internal/store"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
	log.Info("Starting booking API...")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Could not load configuration")
	}

	// Use a separate migrations table to avoid conflicts with anything
	// else sharing the database.
	migrationDBURL := cfg.DatabaseURL
	if strings.Contains(migrationDBURL, "?") {
		migrationDBURL += "&x-migrations-table=sendconsult_schema_migrations"
	} else {
		migrationDBURL += "?x-migrations-table=sendconsult_schema_migrations"
	}

	m, err := migrate.New(cfg.MigrationsURL, migrationDBURL)
	if err != nil {
		log.WithError(err).Fatal("Could not create migration instance")
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.WithError(err).Fatal("Could not apply migration")
	}
	log.Info("Database migration successfully applied")

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()

	recordStore := store.NewPostgres(db)
	cat := catalog.Default()

	var publisher events.Publisher = events.Discard{}
	if cfg.KafkaBootstrapServers != "" {
		kafkaPublisher, err := events.NewKafkaPublisher(
			strings.Trim(cfg.KafkaBootstrapServers, "\""),
			cfg.KafkaPurchasesTopic,
			cfg.KafkaBookingsTopic,
		)
		if err != nil {
			log.WithError(err).Fatal("Failed to create Kafka publisher")
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	} else {
		log.Warn("KAFKA_BOOTSTRAP_SERVERS not set, notification events disabled")
	}

	defaultAudience, ok := domain.ParseAudience(cfg.DefaultAudience)
	if !ok {
		log.WithField("audience", cfg.DefaultAudience).Fatal("DEFAULT_AUDIENCE is not a known segment")
	}

	paymentClient := payments.New(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.AppBaseURL, cat)
	schedulingClient := scheduling.New(cfg.CalendlyToken, cfg.ExternalTimeout)
	engine := reconcile.New(recordStore, cat, publisher, defaultAudience)
	resolver := entitlement.New(recordStore)

	srv := server.New(
		engine, resolver, paymentClient, schedulingClient, recordStore,
		cat, cfg.CalendlyOwnerURI, cfg.ExternalTimeout,
	)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	sig := <-sigchan
	log.Infof("Caught signal %v: terminating", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
}
