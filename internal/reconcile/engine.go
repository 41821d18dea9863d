// Package reconcile decides, per webhook event, which record-store
// mutations to apply and how a payment is linked to a later-arriving
// scheduling event. State is never held in memory; it is reconstructed
// from the store on every event so that redelivered webhooks converge.
package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	log "github.com/sirupsen/logrus"

	"sendconsult/internal/catalog"
	"sendconsult/internal/domain"
	"sendconsult/internal/events"
	"sendconsult/internal/metrics"
	"sendconsult/internal/payments"
	"sendconsult/internal/scheduling"
)

// Store is the record-store surface the engine mutates.
type Store interface {
	UpsertPurchase(ctx context.Context, p domain.Purchase) (domain.Purchase, error)
	GetPurchase(ctx context.Context, id string) (*domain.Purchase, error)
	GetPurchaseBySessionID(ctx context.Context, sessionID string) (*domain.Purchase, error)
	FindLinkablePurchase(ctx context.Context, email string) (*domain.Purchase, error)
	SetSessionsRemaining(ctx context.Context, purchaseID string, remaining int) error
	UpsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
	GetPackageSessionByInviteeURI(ctx context.Context, inviteeURI string) (*domain.PackageSession, error)
	CreatePackageSession(ctx context.Context, ps domain.PackageSession) error
	SetPackageSessionStatus(ctx context.Context, inviteeURI string, status domain.SessionStatus) error
}

type Engine struct {
	store           Store
	catalog         *catalog.Catalog
	publisher       events.Publisher
	defaultAudience domain.Audience
}

func New(store Store, cat *catalog.Catalog, publisher events.Publisher, defaultAudience domain.Audience) *Engine {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &Engine{
		store:           store,
		catalog:         cat,
		publisher:       publisher,
		defaultAudience: defaultAudience,
	}
}

// HandleCheckoutCompleted persists a paid purchase for a completed
// checkout session. Redelivery is a no-op: the upsert is keyed by the
// session id, and an already-paid row keeps its current entitlement so a
// late redelivery cannot re-grant sessions spent in the meantime.
func (e *Engine) HandleCheckoutCompleted(ctx context.Context, s payments.SessionDetails) error {
	logCtx := log.WithField("stripe_session_id", s.ID)

	optionID := s.Metadata["bookingOptionId"]
	if optionID == "" {
		logCtx.Warn("No bookingOptionId in session metadata, nothing to persist")
		return nil
	}

	opt, err := e.catalog.Lookup(optionID)
	if err != nil {
		logCtx.WithError(err).WithField("booking_option_id", optionID).
			Error("Checkout session references unknown booking option")
		return nil
	}

	remaining := opt.SessionCount()
	if existing, err := e.store.GetPurchaseBySessionID(ctx, s.ID); err != nil {
		return err
	} else if existing != nil && existing.Status == domain.PurchasePaid {
		remaining = existing.SessionsRemaining
	}

	eventTypeURI := s.Metadata["eventTypeUri"]
	if eventTypeURI == "" {
		eventTypeURI = opt.EventTypeURI
	}
	audience := opt.Audience
	if a, ok := domain.ParseAudience(s.Metadata["audience"]); ok {
		audience = a
	}

	purchase := domain.Purchase{
		StripeSessionID:       s.ID,
		StripeCustomerID:      nullString(s.CustomerID),
		StripePaymentIntentID: nullString(s.PaymentIntentID),
		BookingOptionID:       opt.ID,
		Email:                 s.Email,
		Name:                  s.Name,
		AmountPaid:            s.AmountTotal,
		Currency:              s.Currency,
		Status:                domain.PurchasePaid,
		SessionsRemaining:     remaining,
		Metadata: domain.PurchaseMetadata{
			BookingOptionID: opt.ID,
			EventTypeURI:    eventTypeURI,
			Audience:        audience,
		},
	}

	saved, err := e.store.UpsertPurchase(ctx, purchase)
	if err != nil {
		return err
	}
	metrics.PurchasesRecorded.Inc()
	logCtx.WithFields(log.Fields{
		"purchase_id":        saved.ID,
		"booking_option_id":  opt.ID,
		"sessions_remaining": saved.SessionsRemaining,
	}).Info("Purchase recorded")

	if err := e.publisher.PublishPurchaseRecorded(ctx, events.PurchaseRecorded{
		PurchaseID:        saved.ID,
		StripeSessionID:   saved.StripeSessionID,
		BookingOptionID:   saved.BookingOptionID,
		Email:             saved.Email,
		Name:              saved.Name,
		AmountPaid:        saved.AmountPaid,
		Currency:          saved.Currency,
		SessionsRemaining: saved.SessionsRemaining,
		Audience:          saved.Metadata.Audience,
	}); err != nil {
		logCtx.WithError(err).Error("Failed to publish purchase event")
	}
	return nil
}

// HandleSchedulingEvent upserts a booking for an invitee event and, on
// the created kind, links it to an eligible purchase. The booking upsert
// must succeed before any linking is attempted: a booking exists
// independent of whether a purchase link can be found.
func (e *Engine) HandleSchedulingEvent(ctx context.Context, payload scheduling.WebhookPayload, raw json.RawMessage) error {
	if payload.Event != scheduling.EventInviteeCreated && payload.Event != scheduling.EventInviteeCanceled {
		log.WithField("event", payload.Event).Debug("Ignoring unhandled scheduling event kind")
		return nil
	}

	details := payload.Payload
	logCtx := log.WithFields(log.Fields{
		"event":       payload.Event,
		"invitee_uri": details.Invitee.URI,
	})

	status := domain.BookingScheduled
	if payload.Event == scheduling.EventInviteeCanceled {
		status = domain.BookingCanceled
	}

	booking := domain.Booking{
		CalendlyInviteeURI: details.Invitee.URI,
		EventTypeURI:       details.Event.EventType,
		Email:              details.Invitee.Email,
		Name:               details.Invitee.Name,
		StartsAt:           details.Event.StartTime,
		EndsAt:             details.Event.EndTime,
		Audience:           e.deriveAudience(details),
		Notes:              nullString(joinNotes(details.QuestionsAndAnswers)),
		Status:             status,
		Raw:                raw,
	}

	saved, err := e.store.UpsertBooking(ctx, booking)
	if err != nil {
		return err
	}
	logCtx = logCtx.WithField("booking_id", saved.ID)
	logCtx.Info("Booking recorded")

	if payload.Event == scheduling.EventInviteeCanceled {
		if err := e.store.SetPackageSessionStatus(ctx, details.Invitee.URI, domain.SessionCancelled); err != nil {
			return err
		}
		event := events.BookingRecorded{
			BookingID:  saved.ID,
			InviteeURI: saved.CalendlyInviteeURI,
			Email:      saved.Email,
			Name:       saved.Name,
			StartsAt:   saved.StartsAt,
			EndsAt:     saved.EndsAt,
			Status:     string(saved.Status),
		}
		if ps, err := e.store.GetPackageSessionByInviteeURI(ctx, details.Invitee.URI); err != nil {
			return err
		} else if ps != nil {
			event.PurchaseID = ps.PackagePurchaseID
		}
		if err := e.publisher.PublishBookingRecorded(ctx, event); err != nil {
			logCtx.WithError(err).Error("Failed to publish booking event")
		}
		return nil
	}

	return e.link(ctx, logCtx, saved, details)
}

// link finds the purchase a created booking draws from and records the
// package session. Creating the session and decrementing the entitlement
// are one logical unit: the session row is written first, so a crash in
// between leaves an undercounted purchase that the invitee-URI guard
// repairs on redelivery instead of double-decrementing.
func (e *Engine) link(ctx context.Context, logCtx *log.Entry, booking domain.Booking, details scheduling.WebhookDetails) error {
	existing, err := e.store.GetPackageSessionByInviteeURI(ctx, booking.CalendlyInviteeURI)
	if err != nil {
		return err
	}
	if existing != nil {
		logCtx.Debug("Package session already exists for invitee, skipping link")
		return nil
	}

	purchase, err := e.findPurchase(ctx, logCtx, details)
	if err != nil {
		return err
	}

	if purchase != nil && purchase.SessionsRemaining > 0 {
		session := domain.PackageSession{
			PackagePurchaseID:  purchase.ID,
			BookingID:          nullString(booking.ID),
			CalendlyInviteeURI: booking.CalendlyInviteeURI,
			SessionDate:        details.Event.StartTime,
			Status:             domain.SessionScheduled,
		}
		if err := e.store.CreatePackageSession(ctx, session); err != nil {
			return err
		}

		remaining := purchase.SessionsRemaining - 1
		if remaining < 0 {
			remaining = 0
		}
		if err := e.store.SetSessionsRemaining(ctx, purchase.ID, remaining); err != nil {
			return err
		}
		purchase.SessionsRemaining = remaining
		metrics.BookingsLinked.Inc()
		logCtx.WithFields(log.Fields{
			"purchase_id":        purchase.ID,
			"sessions_remaining": remaining,
		}).Info("Booking linked to package purchase")
	} else {
		logCtx.Info("No eligible purchase found, booking stands alone")
	}

	event := events.BookingRecorded{
		BookingID:  booking.ID,
		InviteeURI: booking.CalendlyInviteeURI,
		Email:      booking.Email,
		Name:       booking.Name,
		StartsAt:   booking.StartsAt,
		EndsAt:     booking.EndsAt,
		Status:     string(booking.Status),
	}
	if purchase != nil {
		event.PurchaseID = purchase.ID
		event.SessionsLeft = purchase.SessionsRemaining
	}
	if err := e.publisher.PublishBookingRecorded(ctx, event); err != nil {
		logCtx.WithError(err).Error("Failed to publish booking event")
	}
	return nil
}

// findPurchase applies the linking precedence: an explicit purchase id
// carried through the scheduling link's metadata always wins; otherwise
// fall back to the newest paid purchase for the invitee's email that
// still has sessions remaining. Finding nothing is a valid terminal
// outcome, not an error.
func (e *Engine) findPurchase(ctx context.Context, logCtx *log.Entry, details scheduling.WebhookDetails) (*domain.Purchase, error) {
	if id := details.MetaString("packagePurchaseId"); id != "" {
		purchase, err := e.store.GetPurchase(ctx, id)
		if err != nil {
			return nil, err
		}
		if purchase == nil {
			logCtx.WithField("purchase_id", id).Warn("Explicit purchase reference not found")
			return nil, nil
		}
		if purchase.Status != domain.PurchasePaid {
			logCtx.WithFields(log.Fields{
				"purchase_id": id,
				"status":      purchase.Status,
			}).Warn("Explicit purchase reference is not paid, booking stands alone")
			return nil, nil
		}
		return purchase, nil
	}
	return e.store.FindLinkablePurchase(ctx, details.Invitee.Email)
}

// deriveAudience picks the first recognised segment from, in order, the
// event's tracking fields, the scheduling-link metadata, and the
// configured default.
func (e *Engine) deriveAudience(details scheduling.WebhookDetails) domain.Audience {
	if details.Tracking != nil {
		if a, ok := domain.ParseAudience(details.Tracking.UTMCampaign); ok {
			return a
		}
	}
	if a, ok := domain.ParseAudience(details.MetaString("audience")); ok {
		return a
	}
	return e.defaultAudience
}

func joinNotes(qas []scheduling.QA) string {
	if len(qas) == 0 {
		return ""
	}
	parts := make([]string, 0, len(qas))
	for _, qa := range qas {
		parts = append(parts, qa.Question+": "+qa.Answer)
	}
	return strings.Join(parts, "\n")
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
