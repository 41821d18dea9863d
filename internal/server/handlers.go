package server

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"sendconsult/internal/catalog"
	"sendconsult/internal/domain"
	"sendconsult/internal/metrics"
	"sendconsult/internal/payments"
	"sendconsult/internal/scheduling"
	"sendconsult/internal/validator"
)

const maxWebhookBody = 1 << 20

// handleStripeWebhook verifies the signature before touching the body,
// then acknowledges with 200 no matter how processing went: the
// provider's retry policy must not amplify an internal outage into
// duplicate side effects later. Only a bad signature is rejected.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	metrics.WebhooksReceived.WithLabelValues("stripe").Inc()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		metrics.WebhooksRejected.WithLabelValues("stripe").Inc()
		writeError(w, http.StatusBadRequest, "missing stripe-signature header")
		return
	}

	event, err := s.payments.VerifyWebhook(body, sig)
	if err != nil {
		metrics.WebhooksRejected.WithLabelValues("stripe").Inc()
		log.WithError(err).Warn("Stripe webhook signature verification failed")
		writeError(w, http.StatusBadRequest, "webhook signature verification failed")
		return
	}

	details, handled, err := payments.ParseCheckoutSession(event)
	if !handled {
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if err != nil {
		metrics.WebhookFailures.WithLabelValues("stripe").Inc()
		log.WithError(err).Error("Failed to parse checkout session from verified event")
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.engine.HandleCheckoutCompleted(ctx, details); err != nil {
		metrics.WebhookFailures.WithLabelValues("stripe").Inc()
		log.WithError(err).WithField("stripe_session_id", details.ID).
			Error("Payment webhook processing failed, acknowledging anyway")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// handleCalendlyWebhook acknowledges everything, including malformed
// bodies and internal failures; consistency is restored by idempotent
// reprocessing when the provider redelivers.
func (s *Server) handleCalendlyWebhook(w http.ResponseWriter, r *http.Request) {
	metrics.WebhooksReceived.WithLabelValues("calendly").Inc()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	payload, err := scheduling.ParseWebhook(body)
	if err != nil {
		metrics.WebhookFailures.WithLabelValues("calendly").Inc()
		log.WithError(err).Error("Failed to decode scheduling webhook")
		writeJSON(w, http.StatusOK, map[string]string{"error": "invalid payload"})
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.engine.HandleSchedulingEvent(ctx, payload, json.RawMessage(body)); err != nil {
		metrics.WebhookFailures.WithLabelValues("calendly").Inc()
		log.WithError(err).WithField("invitee_uri", payload.Payload.Invitee.URI).
			Error("Scheduling webhook processing failed, acknowledging anyway")
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook processed"})
}

func (s *Server) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req validator.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validator.ValidateCheckoutRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.catalog.Lookup(req.BookingOptionID); err != nil {
		writeError(w, http.StatusNotFound, "booking option not found")
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	checkout, err := s.payments.CreateCheckout(ctx, req.BookingOptionID, req.Email, req.Name)
	if err != nil {
		log.WithError(err).WithField("booking_option_id", req.BookingOptionID).
			Error("Failed to create checkout session")
		writeError(w, http.StatusBadGateway, "failed to create checkout session")
		return
	}
	writeJSON(w, http.StatusOK, checkout)
}

// handleBookingSuccess is the same-request metadata-recovery read: the
// session is re-fetched from the payment provider so the redirect page
// can mint a scheduling link even when the asynchronous webhook has not
// written the purchase row yet.
func (s *Server) handleBookingSuccess(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session_id")
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	purchase, err := s.store.GetPurchaseBySessionID(ctx, sessionID)
	if err != nil {
		log.WithError(err).Warn("Failed to look up purchase for booking-success")
	}

	details, err := s.payments.RetrieveSession(ctx, sessionID)
	if err != nil {
		log.WithError(err).WithField("stripe_session_id", sessionID).
			Warn("Failed to retrieve checkout session")
	}

	eventTypeURI := details.Metadata["eventTypeUri"]
	audience := details.Metadata["audience"]
	bookingType := ""
	if optID := details.Metadata["bookingOptionId"]; optID != "" {
		if opt, err := s.catalog.Lookup(optID); err == nil {
			bookingType = string(opt.Type)
			if eventTypeURI == "" {
				eventTypeURI = opt.EventTypeURI
			}
			if audience == "" {
				audience = string(opt.Audience)
			}
		}
	}
	if eventTypeURI == "" && purchase != nil {
		eventTypeURI = purchase.Metadata.EventTypeURI
		audience = string(purchase.Metadata.Audience)
	}

	resp := map[string]any{
		"sessionId":   sessionID,
		"bookingType": bookingType,
		"audience":    audience,
	}
	if purchase != nil {
		resp["purchase"] = purchaseResponse(purchase)
	}

	// Packages book their sessions one by one from the bookings page;
	// single sessions get a scheduling link straight away.
	if eventTypeURI != "" && bookingType != string(catalog.TypePackage) {
		bookingURL, err := s.scheduling.CreateSchedulingLink(ctx, eventTypeURI, map[string]string{
			"stripeSessionId": sessionID,
			"audience":        audience,
		})
		if err != nil {
			log.WithError(err).Error("Failed to create scheduling link for booking-success")
		} else {
			resp["bookingUrl"] = bookingURL
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSchedulingLink(w http.ResponseWriter, r *http.Request) {
	var req validator.SchedulingLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validator.ValidateSchedulingLinkRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	bookingURL, err := s.scheduling.CreateSchedulingLink(ctx, req.EventTypeURI, req.Metadata)
	if err != nil {
		log.WithError(err).Error("Failed to create scheduling link")
		writeError(w, http.StatusBadGateway, "failed to create scheduling link")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"booking_url": bookingURL})
}

func (s *Server) handleEventTypes(w http.ResponseWriter, r *http.Request) {
	if s.ownerURI == "" {
		writeError(w, http.StatusInternalServerError, "CALENDLY_OWNER_URI not configured")
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	eventTypes, err := s.scheduling.ListEventTypes(ctx, s.ownerURI)
	if err != nil {
		log.WithError(err).Error("Failed to fetch event types")
		writeError(w, http.StatusBadGateway, "failed to fetch event types")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"eventTypes": eventTypes})
}

// handleBookSession mints a scheduling link for one session of a paid
// package. The purchase id rides along in the link metadata so the
// invitee webhook can link deterministically.
func (s *Server) handleBookSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	purchaseID := r.FormValue("packagePurchaseId")
	eventTypeURI := r.FormValue("eventTypeUri")
	if purchaseID == "" || eventTypeURI == "" {
		writeError(w, http.StatusBadRequest, "missing packagePurchaseId or eventTypeUri")
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	purchase, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		log.WithError(err).Error("Failed to look up package purchase")
		writeError(w, http.StatusInternalServerError, "failed to look up package")
		return
	}
	if purchase == nil {
		writeError(w, http.StatusBadRequest, "package not found")
		return
	}
	if purchase.SessionsRemaining <= 0 {
		writeError(w, http.StatusBadRequest, "no sessions remaining")
		return
	}

	audience := purchase.Metadata.Audience
	if audience == "" {
		audience = domain.AudienceFamily
	}
	bookingURL, err := s.scheduling.CreateSchedulingLink(ctx, eventTypeURI, map[string]string{
		"packagePurchaseId": purchaseID,
		"email":             purchase.Email,
		"audience":          string(audience),
		"utm_campaign":      "package_booking",
	})
	if err != nil {
		log.WithError(err).Error("Failed to create booking link")
		writeError(w, http.StatusBadGateway, "failed to create booking link")
		return
	}

	http.Redirect(w, r, bookingURL, http.StatusSeeOther)
}

func (s *Server) handleBookings(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if err := validator.ValidateEmail(email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	summaries, err := s.resolver.Summaries(ctx, email)
	if err != nil {
		log.WithError(err).Error("Failed to resolve entitlements")
		writeError(w, http.StatusInternalServerError, "failed to fetch bookings")
		return
	}

	out := make([]map[string]any, 0, len(summaries))
	for _, sum := range summaries {
		sessions := make([]map[string]any, 0, len(sum.Sessions))
		for _, ps := range sum.Sessions {
			sessions = append(sessions, map[string]any{
				"sessionDate": ps.SessionDate,
				"status":      ps.Status,
			})
		}
		out = append(out, map[string]any{
			"purchase":          purchaseResponse(&sum.Purchase),
			"sessions":          sessions,
			"sessionsBooked":    sum.SessionsBooked,
			"sessionsRemaining": sum.SessionsRemaining,
			"eventTypeUri":      sum.EventTypeURI,
			"canBook":           sum.BookingAllowed(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": out})
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	var req validator.ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validator.ValidateContactRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	audience, _ := domain.ParseAudience(req.Audience)
	contact := domain.Contact{
		Name:     req.Name,
		Email:    req.Email,
		Audience: audience,
		Message:  req.Message,
		Source:   "contact_form",
	}
	if req.Organisation != "" {
		contact.Organisation = sql.NullString{String: req.Organisation, Valid: true}
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.store.InsertContact(ctx, contact); err != nil {
		log.WithError(err).Error("Failed to save contact")
		writeError(w, http.StatusInternalServerError, "failed to save contact")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Contact saved successfully"})
}

// handleNewsletter records a mailing-list signup. Subscribing an address
// that is already on the list succeeds without complaint.
func (s *Server) handleNewsletter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validator.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	inserted, err := s.store.SubscribeNewsletter(ctx, req.Email)
	if err != nil {
		log.WithError(err).Error("Failed to save newsletter subscriber")
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	if !inserted {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Already subscribed"})
		return
	}
	log.WithField("email", req.Email).Info("New newsletter subscriber")
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Successfully subscribed"})
}

func purchaseResponse(p *domain.Purchase) map[string]any {
	return map[string]any{
		"id":                p.ID,
		"bookingOptionId":   p.BookingOptionID,
		"email":             p.Email,
		"name":              p.Name,
		"amountPaid":        p.AmountPaid,
		"currency":          p.Currency,
		"status":            p.Status,
		"sessionsRemaining": p.SessionsRemaining,
		"eventTypeUri":      p.Metadata.EventTypeURI,
		"audience":          p.Metadata.Audience,
		"createdAt":         p.CreatedAt,
	}
}
