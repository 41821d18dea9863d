// Package server wires the HTTP surface: the two provider webhook
// endpoints and the user-facing checkout, scheduling, and inquiry flows.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v82"

	"sendconsult/internal/catalog"
	"sendconsult/internal/domain"
	"sendconsult/internal/entitlement"
	"sendconsult/internal/payments"
	"sendconsult/internal/reconcile"
	"sendconsult/internal/scheduling"
)

// SchedulingClient is the outbound scheduling API surface.
type SchedulingClient interface {
	ListEventTypes(ctx context.Context, ownerURI string) ([]scheduling.EventType, error)
	CreateSchedulingLink(ctx context.Context, eventTypeURI string, metadata map[string]string) (string, error)
}

// PaymentClient is the outbound payment API surface.
type PaymentClient interface {
	CreateCheckout(ctx context.Context, optionID, email, name string) (payments.Checkout, error)
	VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error)
	RetrieveSession(ctx context.Context, sessionID string) (payments.SessionDetails, error)
}

// ContactStore is the store surface used by the user-facing flows.
type ContactStore interface {
	InsertContact(ctx context.Context, c domain.Contact) error
	SubscribeNewsletter(ctx context.Context, email string) (bool, error)
	GetPurchase(ctx context.Context, id string) (*domain.Purchase, error)
	GetPurchaseBySessionID(ctx context.Context, sessionID string) (*domain.Purchase, error)
}

type Server struct {
	engine     *reconcile.Engine
	resolver   *entitlement.Resolver
	payments   PaymentClient
	scheduling SchedulingClient
	store      ContactStore
	catalog    *catalog.Catalog
	ownerURI   string
	timeout    time.Duration
}

func New(
	engine *reconcile.Engine,
	resolver *entitlement.Resolver,
	paymentClient PaymentClient,
	schedulingClient SchedulingClient,
	store ContactStore,
	cat *catalog.Catalog,
	calendlyOwnerURI string,
	timeout time.Duration,
) *Server {
	return &Server{
		engine:     engine,
		resolver:   resolver,
		payments:   paymentClient,
		scheduling: schedulingClient,
		store:      store,
		catalog:    cat,
		ownerURI:   calendlyOwnerURI,
		timeout:    timeout,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/stripe/webhook", s.handleStripeWebhook)
	mux.HandleFunc("POST /api/calendly/webhook", s.handleCalendlyWebhook)
	mux.HandleFunc("POST /api/stripe/create-checkout", s.handleCreateCheckout)
	mux.HandleFunc("GET /api/booking-success", s.handleBookingSuccess)
	mux.HandleFunc("POST /api/calendly/scheduling-link", s.handleSchedulingLink)
	mux.HandleFunc("GET /api/calendly/event-types", s.handleEventTypes)
	mux.HandleFunc("POST /api/calendly/book-session", s.handleBookSession)
	mux.HandleFunc("GET /api/bookings", s.handleBookings)
	mux.HandleFunc("POST /api/contacts", s.handleContacts)
	mux.HandleFunc("POST /api/newsletter", s.handleNewsletter)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
