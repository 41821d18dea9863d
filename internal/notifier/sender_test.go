package notifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLBody(t *testing.T) {
	got := htmlBody("Hello Jordan,\n\nAmount paid: 200.00 GBP\nSessions included: 4")

	assert.Contains(t, got, "<p>Hello Jordan,</p>")
	assert.Contains(t, got, "<p>Amount paid: 200.00 GBP<br>Sessions included: 4</p>")
}

func TestHTMLBody_EscapesContent(t *testing.T) {
	got := htmlBody("Main concern: support at <school> & home")

	assert.Contains(t, got, "&lt;school&gt; &amp; home")
	assert.NotContains(t, got, "<school>")
}

func TestNewSMTPEmailSender_ReplyTo(t *testing.T) {
	s := NewSMTPEmailSender("smtp.example.com", "587", "user", "pass", "noreply@lighthousesend.com", "info@lighthousesend.com")

	assert.Equal(t, "info@lighthousesend.com", s.replyTo)
	assert.Equal(t, "noreply@lighthousesend.com", s.from)
}
