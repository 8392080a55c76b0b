// Package mailer renders per-recipient newsletter emails and hands them to an
// email transport.
//
// A Transport sends a batch and reports one Outcome per message, in order.
// A non-nil error from SendBatch means the transport failed as a whole (for
// example the SMTP server refused the connection) and no outcome can be
// trusted; callers then treat every recipient of the batch as failed.
package mailer

import (
	"context"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// Message is one rendered email addressed to one user.
type Message struct {
	UserID  string
	To      string
	Subject string
	HTML    string
	Text    string
	Headers map[string]string
}

// Outcome is the transport's report for one Message.
type Outcome struct {
	UserID     string
	Status     domain.DeliveryStatus // sent|delivered|failed|bounced
	ExternalID string
	Error      string
}

// Transport delivers rendered messages.
type Transport interface {
	SendBatch(ctx context.Context, msgs []Message) ([]Outcome, error)
}
