package domain

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Audience is the customer segment a booking or purchase belongs to.
type Audience string

const (
	AudienceFamily Audience = "family"
	AudienceSchool Audience = "school"
	AudienceLA     Audience = "la"
)

// ParseAudience reports whether s names a known audience segment.
func ParseAudience(s string) (Audience, bool) {
	switch Audience(s) {
	case AudienceFamily, AudienceSchool, AudienceLA:
		return Audience(s), true
	}
	return "", false
}

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchasePaid      PurchaseStatus = "paid"
	PurchaseFailed    PurchaseStatus = "failed"
	PurchaseCancelled PurchaseStatus = "cancelled"
)

type BookingStatus string

const (
	BookingScheduled BookingStatus = "scheduled"
	BookingCanceled  BookingStatus = "canceled"
)

type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// PurchaseMetadata captures the bought option's scheduling target and
// audience so later steps can recover intent without a catalog lookup.
type PurchaseMetadata struct {
	BookingOptionID string   `json:"bookingOptionId"`
	EventTypeURI    string   `json:"eventTypeUri"`
	Audience        Audience `json:"audience"`
}

// Purchase is one payment transaction, keyed by the provider's
// checkout-session id for idempotent upserts.
type Purchase struct {
	ID                    string
	StripeSessionID       string
	StripeCustomerID      sql.NullString
	StripePaymentIntentID sql.NullString
	BookingOptionID       string
	Email                 string
	Name                  string
	AmountPaid            int64
	Currency              string
	Status                PurchaseStatus
	SessionsRemaining     int
	Metadata              PurchaseMetadata
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Booking is one scheduled appointment, keyed by the scheduling
// provider's invitee URI.
type Booking struct {
	ID                 string
	CalendlyInviteeURI string
	EventTypeURI       string
	Email              string
	Name               string
	StartsAt           time.Time
	EndsAt             time.Time
	Audience           Audience
	Notes              sql.NullString
	Status             BookingStatus
	Raw                json.RawMessage
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PackageSession links one booking to the purchase it was drawn from.
// BookingID is nullable so a session survives its booking being purged.
type PackageSession struct {
	ID                 string
	PackagePurchaseID  string
	BookingID          sql.NullString
	CalendlyInviteeURI string
	SessionDate        time.Time
	Status             SessionStatus
	CreatedAt          time.Time
}

// Contact is a free-text inbound inquiry.
type Contact struct {
	ID           string
	Name         string
	Email        string
	Organisation sql.NullString
	Audience     Audience
	Message      string
	Source       string
	CreatedAt    time.Time
}

type EmailStatus string

const (
	EmailSent   EmailStatus = "sent"
	EmailFailed EmailStatus = "failed"
)

// EmailLog records each outbound notification attempt.
type EmailLog struct {
	ReferenceID    string
	RecipientEmail string
	Subject        string
	Status         EmailStatus
	ErrorMessage   sql.NullString
}
