// Package payments wraps the Stripe API: checkout-session creation,
// webhook signature verification, and session retrieval.
package payments

import (
	"context"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	stripeclient "github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"sendconsult/internal/catalog"
	"sendconsult/internal/faults"
)

// EventCheckoutCompleted is the only payment event kind the engine acts on.
const EventCheckoutCompleted = "checkout.session.completed"

type sessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// SessionDetails is the provider-independent view of a checkout session.
type SessionDetails struct {
	ID              string
	CustomerID      string
	PaymentIntentID string
	Email           string
	Name            string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

// Checkout is the result of a checkout-session creation.
type Checkout struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type Client struct {
	sessions      sessionAPI
	webhookSecret string
	appBaseURL    string
	catalog       *catalog.Catalog
}

func New(secretKey, webhookSecret, appBaseURL string, cat *catalog.Catalog) *Client {
	api := stripeclient.New(secretKey, nil)
	return &Client{
		sessions:      api.CheckoutSessions,
		webhookSecret: webhookSecret,
		appBaseURL:    appBaseURL,
		catalog:       cat,
	}
}

// CreateCheckout starts a hosted checkout for the given booking option.
// The option's scheduling target and audience ride along as session
// metadata so the webhook can recover intent without a datastore lookup.
func (c *Client) CreateCheckout(ctx context.Context, optionID, email, name string) (Checkout, error) {
	opt, err := c.catalog.Lookup(optionID)
	if err != nil {
		return Checkout{}, err
	}
	if opt.StripePriceID == "" {
		return Checkout{}, &faults.ConfigError{What: "no Stripe price configured for booking option " + optionID}
	}

	mode := stripe.CheckoutSessionModePayment
	if opt.Recurring {
		mode = stripe.CheckoutSessionModeSubscription
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(opt.StripePriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:          stripe.String(string(mode)),
		CustomerEmail: stripe.String(email),
		SuccessURL:    stripe.String(c.appBaseURL + "/booking-success?session_id={CHECKOUT_SESSION_ID}&redirect_to_calendly=true"),
		CancelURL:     stripe.String(c.appBaseURL + "/pricing?canceled=true"),
	}
	params.Context = ctx
	params.AddMetadata("bookingOptionId", opt.ID)
	params.AddMetadata("customerName", name)
	params.AddMetadata("eventTypeUri", opt.EventTypeURI)
	params.AddMetadata("audience", string(opt.Audience))

	s, err := c.sessions.New(params)
	if err != nil {
		return Checkout{}, upstream("create checkout session", err)
	}
	return Checkout{SessionID: s.ID, URL: s.URL}, nil
}

// VerifyWebhook checks the signature header against the raw body before
// anything from the body is parsed or trusted.
func (c *Client) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, &faults.SignatureError{Err: err}
	}
	return event, nil
}

// ParseCheckoutSession extracts session details from a verified event.
// The second return is false for event kinds the engine does not handle.
func ParseCheckoutSession(event stripe.Event) (SessionDetails, bool, error) {
	if string(event.Type) != EventCheckoutCompleted {
		return SessionDetails{}, false, nil
	}
	var s stripe.CheckoutSession
	if err := s.UnmarshalJSON(event.Data.Raw); err != nil {
		return SessionDetails{}, true, fmt.Errorf("failed to parse checkout session: %w", err)
	}
	return sessionDetails(&s), true, nil
}

// RetrieveSession re-reads a checkout session from the provider. Used for
// same-request metadata recovery when the asynchronous webhook has not
// written the purchase row yet.
func (c *Client) RetrieveSession(ctx context.Context, sessionID string) (SessionDetails, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	params.AddExpand("customer")

	s, err := c.sessions.Get(sessionID, params)
	if err != nil {
		return SessionDetails{}, upstream("retrieve checkout session", err)
	}
	return sessionDetails(s), nil
}

func sessionDetails(s *stripe.CheckoutSession) SessionDetails {
	d := SessionDetails{
		ID:          s.ID,
		Email:       s.CustomerEmail,
		AmountTotal: s.AmountTotal,
		Currency:    string(s.Currency),
		Metadata:    s.Metadata,
	}
	if d.Metadata == nil {
		d.Metadata = map[string]string{}
	}
	if s.Customer != nil {
		d.CustomerID = s.Customer.ID
	}
	if s.PaymentIntent != nil {
		d.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.CustomerDetails != nil {
		if d.Email == "" {
			d.Email = s.CustomerDetails.Email
		}
		d.Name = s.CustomerDetails.Name
	}
	if d.Name == "" {
		d.Name = d.Metadata["customerName"]
	}
	if d.Currency == "" {
		d.Currency = "gbp"
	}
	return d
}

func upstream(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &faults.UpstreamError{Service: "Stripe", Status: stripeErr.HTTPStatusCode, Body: stripeErr.Msg}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
