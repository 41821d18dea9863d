package notifier

import (
	"context"
	"encoding/json"

	"sendconsult/internal/events"
)

// NotificationService is the business surface the message handlers call.
type NotificationService interface {
	ProcessPurchase(ctx context.Context, event events.PurchaseRecorded) error
	ProcessBooking(ctx context.Context, event events.BookingRecorded) error
}

type purchaseHandler struct {
	service NotificationService
}

type bookingHandler struct {
	service NotificationService
}

func NewPurchaseHandler(service NotificationService) *purchaseHandler {
	return &purchaseHandler{service: service}
}

func NewBookingHandler(service NotificationService) *bookingHandler {
	return &bookingHandler{service: service}
}

func (h *purchaseHandler) HandleMessage(ctx context.Context, message []byte) error {
	var event events.PurchaseRecorded
	if err := json.Unmarshal(message, &event); err != nil {
		return err
	}
	return h.service.ProcessPurchase(ctx, event)
}

func (h *bookingHandler) HandleMessage(ctx context.Context, message []byte) error {
	var event events.BookingRecorded
	if err := json.Unmarshal(message, &event); err != nil {
		return err
	}
	return h.service.ProcessBooking(ctx, event)
}
