// Package services – BounceService
//
// This file consumes bounce facts ("this address bounced, possibly for this
// issue") from the provider. Verification of the provider's signature is
// left to the ingress; by the time a bounce reaches this service it is
// trusted.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// BounceResult summarizes what one bounce changed.
type BounceResult struct {
	Email                  string `json:"email"`
	CancelledSubscriptions int    `json:"cancelled_subscriptions"`
	DeliveryBounced        bool   `json:"delivery_bounced"`
}

// BounceService cancels subscriptions of bounced addresses.
type BounceService struct {
	DB            *gorm.DB
	Subscriptions *SubscriptionService
}

var emailFold = cases.Fold()

// NormalizeEmail parses addr (bare or "Name <addr>") and case-folds it.
func NormalizeEmail(addr string) (string, error) {
	a, err := mail.ParseAddress(strings.TrimSpace(addr))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, addr)
	}
	return emailFold.String(a.Address), nil
}

// HandleBounce cancels every subscription of email. When issueID is non-zero
// the user's pending or sent delivery of that issue is marked bounced, which
// makes it a resend candidate should the user resubscribe.
func (s *BounceService) HandleBounce(ctx context.Context, email string, issueID uint) (BounceResult, error) {
	tr := otel.Tracer("services/BounceService")
	ctx, span := tr.Start(ctx, "HandleBounce",
		trace.WithAttributes(attribute.Int64("issue.id", int64(issueID))),
	)
	defer span.End()

	addr, err := NormalizeEmail(email)
	if err != nil {
		return BounceResult{}, err
	}
	res := BounceResult{Email: addr}

	n, err := s.Subscriptions.CancelAllForEmail(ctx, addr)
	if err != nil {
		return res, err
	}
	res.CancelledSubscriptions = n

	if issueID != 0 {
		user, err := repo.GetUserByEmail(ctx, s.DB, addr)
		switch {
		case err == nil:
			changed, err := repo.MarkBounced(ctx, s.DB, issueID, user.ID, "bounce reported by provider")
			if err != nil {
				return res, persistence("mark bounced", err)
			}
			res.DeliveryBounced = changed
		case !errors.Is(err, repo.ErrNotFound):
			return res, persistence("get user", err)
		}
	}

	logFrom(ctx).Info().
		Int("cancelled", res.CancelledSubscriptions).
		Bool("delivery_bounced", res.DeliveryBounced).
		Uint("issue_id", issueID).
		Msg("bounce handled")
	return res, nil
}
