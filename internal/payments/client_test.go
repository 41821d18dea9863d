package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"

	"sendconsult/internal/catalog"
	"sendconsult/internal/domain"
	"sendconsult/internal/faults"
)

type fakeSessions struct {
	newFn func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getFn func(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func (f fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return f.newFn(params)
}

func (f fakeSessions) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return f.getFn(id, params)
}

func testClient(sessions sessionAPI, cat *catalog.Catalog) *Client {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Client{
		sessions:      sessions,
		webhookSecret: "whsec_test",
		appBaseURL:    "https://lighthousesend.com",
		catalog:       cat,
	}
}

func TestCreateCheckout_UnknownOption(t *testing.T) {
	c := testClient(fakeSessions{}, nil)
	_, err := c.CreateCheckout(context.Background(), "retired-option", "a@b.com", "A")

	var cfgErr *faults.ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestCreateCheckout_MissingPrice(t *testing.T) {
	cat := catalog.New([]catalog.Option{
		{ID: "unpriced", Title: "Unpriced", EventTypeURI: "uri", Audience: domain.AudienceFamily, Type: catalog.TypeSingle},
	})
	c := testClient(fakeSessions{}, cat)
	_, err := c.CreateCheckout(context.Background(), "unpriced", "a@b.com", "A")

	var cfgErr *faults.ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestCreateCheckout_AttachesMetadata(t *testing.T) {
	var captured *stripe.CheckoutSessionParams
	sessions := fakeSessions{
		newFn: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			captured = params
			return &stripe.CheckoutSession{ID: "cs_123", URL: "https://checkout.stripe.com/c/cs_123"}, nil
		},
	}
	c := testClient(sessions, nil)

	checkout, err := c.CreateCheckout(context.Background(), "advocacy-package", "parent@example.com", "Jordan Reid")
	require.NoError(t, err)
	assert.Equal(t, "cs_123", checkout.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_123", checkout.URL)

	require.NotNil(t, captured)
	assert.Equal(t, "advocacy-package", captured.Metadata["bookingOptionId"])
	assert.Equal(t, "Jordan Reid", captured.Metadata["customerName"])
	assert.Equal(t, "family", captured.Metadata["audience"])
	assert.NotEmpty(t, captured.Metadata["eventTypeUri"])
	assert.Equal(t, string(stripe.CheckoutSessionModeSubscription), *captured.Mode, "recurring package checks out as a subscription")
	require.Len(t, captured.LineItems, 1)
	assert.Equal(t, "price_1SLnq5IrJSp147ZwXTq1PxUG", *captured.LineItems[0].Price)
	assert.Contains(t, *captured.SuccessURL, "session_id={CHECKOUT_SESSION_ID}")
}

func signedHeader(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhook_ValidSignature(t *testing.T) {
	c := testClient(fakeSessions{}, nil)
	payload := []byte(`{
        "id": "evt_1",
        "object": "event",
        "api_version": "2025-03-31.basil",
        "type": "checkout.session.completed",
        "data": {"object": {"id": "cs_123", "object": "checkout.session", "amount_total": 5000, "currency": "gbp",
            "customer_email": "parent@example.com",
            "metadata": {"bookingOptionId": "starter-consultation", "customerName": "Jordan Reid"}}}
    }`)

	event, err := c.VerifyWebhook(payload, signedHeader(t, payload, "whsec_test"))
	require.NoError(t, err)

	details, handled, err := ParseCheckoutSession(event)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "cs_123", details.ID)
	assert.Equal(t, "parent@example.com", details.Email)
	assert.Equal(t, int64(5000), details.AmountTotal)
	assert.Equal(t, "gbp", details.Currency)
	assert.Equal(t, "Jordan Reid", details.Name)
	assert.Equal(t, "starter-consultation", details.Metadata["bookingOptionId"])
}

func TestVerifyWebhook_BadSignature(t *testing.T) {
	c := testClient(fakeSessions{}, nil)
	payload := []byte(`{"id": "evt_1", "type": "checkout.session.completed"}`)

	_, err := c.VerifyWebhook(payload, signedHeader(t, payload, "whsec_wrong"))
	var sigErr *faults.SignatureError
	require.True(t, errors.As(err, &sigErr))

	_, err = c.VerifyWebhook(payload, "t=123,v1=deadbeef")
	require.True(t, errors.As(err, &sigErr))
}

func TestParseCheckoutSession_OtherEventKinds(t *testing.T) {
	_, handled, err := ParseCheckoutSession(stripe.Event{Type: "customer.subscription.deleted"})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestRetrieveSession_ExpandsReferences(t *testing.T) {
	sessions := fakeSessions{
		getFn: func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			assert.Equal(t, "cs_123", id)
			var expands []string
			for _, e := range params.Expand {
				expands = append(expands, *e)
			}
			assert.Contains(t, expands, "payment_intent")
			return &stripe.CheckoutSession{
				ID:            "cs_123",
				Customer:      &stripe.Customer{ID: "cus_1"},
				PaymentIntent: &stripe.PaymentIntent{ID: "pi_1"},
				CustomerDetails: &stripe.CheckoutSessionCustomerDetails{
					Email: "parent@example.com",
					Name:  "Jordan Reid",
				},
			}, nil
		},
	}
	c := testClient(sessions, nil)

	details, err := c.RetrieveSession(context.Background(), "cs_123")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", details.CustomerID)
	assert.Equal(t, "pi_1", details.PaymentIntentID)
	assert.Equal(t, "parent@example.com", details.Email)
	assert.Equal(t, "gbp", details.Currency, "currency defaults when the provider omits it")
}
