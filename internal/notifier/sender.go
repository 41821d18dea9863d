package notifier

import (
	"context"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMTPEmailSender sends the consultancy's transactional mail. Every
// message carries a plain-text body plus an HTML alternative rendered
// from it, and replies go to the consultant's inbox rather than the
// sending account.
type SMTPEmailSender struct {
	host     string
	port     string
	user     string
	pass     string
	from     string
	replyTo  string
	fromName string
}

func NewSMTPEmailSender(host, port, user, pass, from, replyTo string) *SMTPEmailSender {
	return &SMTPEmailSender{
		host:     host,
		port:     port,
		user:     user,
		pass:     pass,
		from:     from,
		replyTo:  replyTo,
		fromName: "Lighthouse Consultancy",
	}
}

func (s *SMTPEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	auth := smtp.PlainAuth("", s.user, s.pass, s.host)

	e := email.NewEmail()
	e.From = fmt.Sprintf("%s <%s>", s.fromName, s.from)
	e.To = []string{to}
	if s.replyTo != "" {
		e.ReplyTo = []string{s.replyTo}
	}
	e.Subject = subject
	e.Text = []byte(body)
	e.HTML = []byte(htmlBody(body))

	return e.Send(addr, auth)
}

// htmlBody renders the plain-text body as paragraphs so clients that
// prefer the HTML part don't collapse the line structure.
func htmlBody(text string) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family: sans-serif; line-height: 1.5;">`)
	for _, para := range strings.Split(text, "\n\n") {
		b.WriteString("<p>")
		lines := strings.Split(para, "\n")
		for i, line := range lines {
			if i > 0 {
				b.WriteString("<br>")
			}
			b.WriteString(html.EscapeString(line))
		}
		b.WriteString("</p>")
	}
	b.WriteString("</div>")
	return b.String()
}
