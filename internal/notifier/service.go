package notifier

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"sendconsult/internal/domain"
	"sendconsult/internal/events"
	"sendconsult/internal/validator"
)

// EmailLogStore records each outbound notification attempt.
type EmailLogStore interface {
	SaveEmailLog(ctx context.Context, l domain.EmailLog) error
}

type Service struct {
	sender     EmailSender
	store      EmailLogStore
	adminEmail string
}

func NewService(sender EmailSender, store EmailLogStore, adminEmail string) *Service {
	return &Service{sender: sender, store: store, adminEmail: adminEmail}
}

// ProcessPurchase emails the customer a payment confirmation.
func (s *Service) ProcessPurchase(ctx context.Context, event events.PurchaseRecorded) error {
	if err := validator.ValidateEmail(event.Email); err != nil {
		log.WithFields(log.Fields{
			"error":       err,
			"purchase_id": event.PurchaseID,
		}).Error("Purchase event validation failed")
		return fmt.Errorf("validation error: %w", err)
	}

	subject := "Your booking purchase is confirmed"
	body := fmt.Sprintf(
		"Hello %s,\n\nThank you for your purchase (%s).\nAmount paid: %s\nSessions included: %d\n\nYou can now pick a time for your session from your booking page.\n\nLighthouse Consultancy",
		event.Name,
		event.BookingOptionID,
		formatAmount(event.AmountPaid, event.Currency),
		event.SessionsRemaining,
	)

	return s.deliver(ctx, event.PurchaseID, event.Email, subject, body)
}

// ProcessBooking notifies the admin of a new or cancelled appointment.
func (s *Service) ProcessBooking(ctx context.Context, event events.BookingRecorded) error {
	subject := fmt.Sprintf("Booking %s: %s", event.Status, event.Name)
	lines := []string{
		fmt.Sprintf("Customer: %s <%s>", event.Name, event.Email),
		fmt.Sprintf("Starts: %s", event.StartsAt.Format(time.RFC1123)),
		fmt.Sprintf("Ends: %s", event.EndsAt.Format(time.RFC1123)),
	}
	if event.PurchaseID != "" {
		lines = append(lines,
			fmt.Sprintf("Linked purchase: %s", event.PurchaseID),
			fmt.Sprintf("Sessions remaining: %d", event.SessionsLeft),
		)
	} else {
		lines = append(lines, "Not linked to a package purchase.")
	}

	return s.deliver(ctx, event.BookingID, s.adminEmail, subject, strings.Join(lines, "\n"))
}

// deliver sends with up to 3 attempts and exponential backoff, then
// records the outcome in the email log either way.
func (s *Service) deliver(ctx context.Context, referenceID, to, subject, body string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	maxAttempts := 3
	delay := 1 * time.Second
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.sender.SendEmail(ctx, to, subject, body)
		if err == nil {
			if attempt > 1 {
				log.WithFields(log.Fields{
					"attempt": attempt,
					"email":   to,
				}).Info("Email sent successfully after retry")
			}
			break
		}

		if attempt < maxAttempts {
			log.WithFields(log.Fields{
				"attempt":      attempt,
				"max_attempts": maxAttempts,
				"error":        err,
				"email":        to,
			}).Warn("Failed to send email, retrying...")

			time.Sleep(delay)
			delay *= 2
		}
	}

	logEntry := domain.EmailLog{
		ReferenceID:    referenceID,
		RecipientEmail: to,
		Subject:        subject,
	}
	if err != nil {
		log.WithError(err).Error("Failed to send email via SMTP")
		logEntry.Status = domain.EmailFailed
		logEntry.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	} else {
		log.WithField("email", to).Info("Email sent successfully via SMTP")
		logEntry.Status = domain.EmailSent
	}

	if err := s.store.SaveEmailLog(ctx, logEntry); err != nil {
		log.WithError(err).Error("Failed to save email log to database")
		return err
	}
	return nil
}

func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(minor)/100, strings.ToUpper(currency))
}
