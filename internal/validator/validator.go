package validator

import (
	"errors"
	"regexp"
	"strings"

	"sendconsult/internal/domain"
)

var (
	ErrEmptyEmail         = errors.New("email is empty")
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrEmptyName          = errors.New("name is empty")
	ErrEmptyBookingOption = errors.New("booking option id is empty")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrInvalidAudience    = errors.New("audience is invalid")
	ErrEmptyEventTypeURI  = errors.New("event type uri is empty")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmptyEmail
	}
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmailFormat
	}
	return nil
}

func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	return nil
}

// CheckoutRequest is the body of POST /api/stripe/create-checkout.
type CheckoutRequest struct {
	BookingOptionID string `json:"bookingOptionId"`
	Email           string `json:"email"`
	Name            string `json:"name"`
}

func ValidateCheckoutRequest(req CheckoutRequest) error {
	if strings.TrimSpace(req.BookingOptionID) == "" {
		return ErrEmptyBookingOption
	}
	if err := ValidateEmail(req.Email); err != nil {
		return err
	}
	return ValidateName(req.Name)
}

// ContactRequest is the body of POST /api/contacts.
type ContactRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Organisation string `json:"organisation"`
	Audience     string `json:"audience"`
	Message      string `json:"message"`
}

func ValidateContactRequest(req ContactRequest) error {
	if err := ValidateName(req.Name); err != nil {
		return err
	}
	if err := ValidateEmail(req.Email); err != nil {
		return err
	}
	if _, ok := domain.ParseAudience(req.Audience); !ok {
		return ErrInvalidAudience
	}
	if strings.TrimSpace(req.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// SchedulingLinkRequest is the body of POST /api/calendly/scheduling-link.
type SchedulingLinkRequest struct {
	EventTypeURI string            `json:"eventTypeUri"`
	Metadata     map[string]string `json:"metadata"`
}

func ValidateSchedulingLinkRequest(req SchedulingLinkRequest) error {
	if strings.TrimSpace(req.EventTypeURI) == "" {
		return ErrEmptyEventTypeURI
	}
	return nil
}
