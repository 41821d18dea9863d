// Package events publishes reconciliation outcomes to Kafka for the
// notifier worker. Publishing is best-effort: a broker outage must never
// fail a webhook handler.
package events

import (
	"context"
	"time"

	"sendconsult/internal/domain"
)

// PurchaseRecorded is emitted after a payment webhook persists a purchase.
type PurchaseRecorded struct {
	PurchaseID        string          `json:"purchase_id"`
	StripeSessionID   string          `json:"stripe_session_id"`
	BookingOptionID   string          `json:"booking_option_id"`
	Email             string          `json:"email"`
	Name              string          `json:"name"`
	AmountPaid        int64           `json:"amount_paid"`
	Currency          string          `json:"currency"`
	SessionsRemaining int             `json:"sessions_remaining"`
	Audience          domain.Audience `json:"audience"`
}

// BookingRecorded is emitted after a scheduling webhook persists a
// booking. PurchaseID is empty when the booking stands alone.
type BookingRecorded struct {
	BookingID    string    `json:"booking_id"`
	InviteeURI   string    `json:"invitee_uri"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	Status       string    `json:"status"`
	PurchaseID   string    `json:"purchase_id,omitempty"`
	SessionsLeft int       `json:"sessions_left"`
}

// Publisher is satisfied by the Kafka producer and by test fakes.
type Publisher interface {
	PublishPurchaseRecorded(ctx context.Context, event PurchaseRecorded) error
	PublishBookingRecorded(ctx context.Context, event BookingRecorded) error
}

// Discard drops every event. Used when Kafka is not configured.
type Discard struct{}

func (Discard) PublishPurchaseRecorded(context.Context, PurchaseRecorded) error { return nil }
func (Discard) PublishBookingRecorded(context.Context, BookingRecorded) error   { return nil }
