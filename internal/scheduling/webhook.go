package scheduling

import (
	"encoding/json"
	"fmt"
	"time"

	"sendconsult/internal/faults"
)

// Webhook event kinds the engine dispatches on.
const (
	EventInviteeCreated  = "invitee.created"
	EventInviteeCanceled = "invitee.canceled"
)

// WebhookPayload is the envelope posted by the scheduling provider.
type WebhookPayload struct {
	Event   string         `json:"event"`
	Time    time.Time      `json:"time"`
	Payload WebhookDetails `json:"payload"`
}

type WebhookDetails struct {
	Invitee             Invitee        `json:"invitee"`
	Event               ScheduledEvent `json:"event"`
	QuestionsAndAnswers []QA           `json:"questions_and_answers"`
	Tracking            *Tracking      `json:"tracking"`
	Metadata            map[string]any `json:"metadata"`
}

type Invitee struct {
	URI   string `json:"uri"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Event string `json:"event"`
}

type ScheduledEvent struct {
	URI       string    `json:"uri"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	EventType string    `json:"event_type"`
}

type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Tracking struct {
	UTMCampaign    string `json:"utm_campaign"`
	UTMSource      string `json:"utm_source"`
	UTMMedium      string `json:"utm_medium"`
	UTMContent     string `json:"utm_content"`
	SalesforceUUID string `json:"salesforce_uuid"`
}

// MetaString reads a string-valued metadata key, tolerating payloads
// where the provider serialised the value as a non-string.
func (d WebhookDetails) MetaString(key string) string {
	v, ok := d.Metadata[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// ParseWebhook decodes a webhook body. The raw body is retained by the
// caller for the booking's audit column.
func ParseWebhook(body []byte) (WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookPayload{}, fmt.Errorf("failed to decode scheduling webhook: %w", err)
	}
	return payload, nil
}

func upstreamError(status int, body string) error {
	return &faults.UpstreamError{Service: "Calendly", Status: status, Body: body}
}
