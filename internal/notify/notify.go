// Package notify delivers account confirmation messages. The server never
// talks SMTP itself: each backend hands a rendered message to a broker queue,
// an object storage outbox or the log, and an external mailer takes it from
// there.
package notify

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const confirmationSubject = "Confirm your microblog account"

// Dispatcher sends a confirmation token to an email address.
type Dispatcher interface {
	SendConfirmation(ctx context.Context, email, token string) error
}

// TransportError reports a backend that failed to accept a message.
type TransportError struct {
	Backend string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Backend, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Confirmation is the message handed to a backend.
type Confirmation struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Link      string    `json:"link"`
	CreatedAt time.Time `json:"created_at"`
}

// Composer renders confirmation messages.
type Composer struct {
	BaseURL string
	From    string
	now     func() time.Time
}

func NewComposer(baseURL, from string) Composer {
	return Composer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		From:    from,
		now:     time.Now,
	}
}

// Link returns the confirmation URL for token.
func (c Composer) Link(token string) string {
	return c.BaseURL + "/auth/confirm/" + url.PathEscape(token)
}

// Compose builds the message confirming token for email.
func (c Composer) Compose(email, token string) Confirmation {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	link := c.Link(token)
	body := "Thanks for signing up.\r\n\r\n" +
		"Open the link below to confirm your email address and activate your account:\r\n\r\n" +
		link + "\r\n\r\n" +
		"If you did not sign up, ignore this message.\r\n"
	return Confirmation{
		ID:        uuid.NewString(),
		From:      c.From,
		To:        email,
		Subject:   confirmationSubject,
		Body:      body,
		Link:      link,
		CreatedAt: now().UTC(),
	}
}

// EML renders the message in RFC 5322 form.
func (m Confirmation) EML() []byte {
	from := (&mail.Address{Address: m.From}).String()
	to := (&mail.Address{Address: m.To}).String()

	var b strings.Builder
	fmt.Fprintf(&b, "Message-ID: <%s@microblog>\r\n", m.ID)
	fmt.Fprintf(&b, "Date: %s\r\n", m.CreatedAt.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(m.Body)
	return []byte(b.String())
}
