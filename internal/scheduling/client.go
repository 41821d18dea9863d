// Package scheduling wraps the Calendly REST API and declares the wire
// types of its webhook payloads.
package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultAPIBase = "https://api.calendly.com"

// EventType is one bookable meeting type owned by the consultant.
type EventType struct {
	URI           string `json:"uri"`
	Name          string `json:"name"`
	Duration      int    `json:"duration"`
	SchedulingURL string `json:"scheduling_url"`
	Active        bool   `json:"active"`
}

type eventTypesResponse struct {
	Collection []EventType `json:"collection"`
}

type schedulingLinkResponse struct {
	Resource struct {
		BookingURL string `json:"booking_url"`
	} `json:"resource"`
}

type Client struct {
	apiBase string
	token   string
	http    *http.Client
}

type ClientOption func(*Client)

// WithAPIBase overrides the API base URL. Tests point this at httptest.
func WithAPIBase(base string) ClientOption {
	return func(c *Client) { c.apiBase = base }
}

func New(token string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		apiBase: defaultAPIBase,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListEventTypes fetches all event types owned by ownerURI.
func (c *Client) ListEventTypes(ctx context.Context, ownerURI string) ([]EventType, error) {
	u := fmt.Sprintf("%s/event_types?user=%s", c.apiBase, url.QueryEscape(ownerURI))

	var resp eventTypesResponse
	if err := c.do(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch event types: %w", err)
	}
	return resp.Collection, nil
}

// CreateSchedulingLink mints a single-use booking link for the given
// event type. The metadata round-trips through the provider and comes
// back verbatim on the invitee webhook, which is how a purchase id is
// carried across the async boundary.
func (c *Client) CreateSchedulingLink(ctx context.Context, eventTypeURI string, metadata map[string]string) (string, error) {
	body := map[string]any{
		"owner":           eventTypeURI,
		"owner_type":      "EventType",
		"max_event_count": 1,
	}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}

	var resp schedulingLinkResponse
	if err := c.do(ctx, http.MethodPost, c.apiBase+"/scheduling_links", body, &resp); err != nil {
		return "", fmt.Errorf("failed to create scheduling link: %w", err)
	}
	return resp.Resource.BookingURL, nil
}

func (c *Client) do(ctx context.Context, method, u string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return upstreamError(resp.StatusCode, string(text))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
