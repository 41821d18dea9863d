package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config is the full environment surface for both binaries. The notifier
// ignores the HTTP and Stripe fields; the API ignores the SMTP fields.
type Config struct {
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	AppBaseURL    string `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	DatabaseURL   string `env:"DATABASE_URL,required"`
	MigrationsURL string `env:"MIGRATIONS_URL" envDefault:"file://db/migrations"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	CalendlyToken    string `env:"CALENDLY_PERSONAL_ACCESS_TOKEN"`
	CalendlyOwnerURI string `env:"CALENDLY_OWNER_URI"`

	KafkaBootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS"`
	KafkaPurchasesTopic   string `env:"KAFKA_PURCHASES_TOPIC" envDefault:"purchase_recorded"`
	KafkaBookingsTopic    string `env:"KAFKA_BOOKINGS_TOPIC" envDefault:"booking_recorded"`
	KafkaConsumerGroup    string `env:"KAFKA_CONSUMER_GROUP" envDefault:"sendconsult_notifier"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"`
	AdminEmail   string `env:"ADMIN_EMAIL" envDefault:"info@lighthousesend.com"`

	DefaultAudience string        `env:"DEFAULT_AUDIENCE" envDefault:"family"`
	ExternalTimeout time.Duration `env:"EXTERNAL_TIMEOUT" envDefault:"10s"`
}

// Load reads .env if present, then parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn("Could not load .env file.")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
