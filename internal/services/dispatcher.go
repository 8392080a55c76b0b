// Package services – Dispatcher
//
// This file implements the batch dispatcher: it turns an issue and a page of
// recipients into personalized messages, hands them to the email transport in
// one call, and reconciles the per-recipient outcomes into the delivery
// ledger.
//
// A batch-level transport failure (dial error, timeout, provider outage) never
// escapes ProcessBatch: every recipient of that batch is recorded as failed
// and the all-failed result is returned, so one bad batch does not abort the
// rest of a broadcast. Ledger write failures do propagate.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/mailer"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// BatchResult aggregates delivery outcomes. Results of consecutive batches
// are combined with Add.
type BatchResult struct {
	TotalSent     int      `json:"total_sent"`
	TotalFailed   int      `json:"total_failed"`
	FailedUserIDs []string `json:"failed_user_ids"`
}

// Add accumulates o into r.
func (r *BatchResult) Add(o BatchResult) {
	r.TotalSent += o.TotalSent
	r.TotalFailed += o.TotalFailed
	r.FailedUserIDs = append(r.FailedUserIDs, o.FailedUserIDs...)
}

func emptyResult() BatchResult {
	return BatchResult{FailedUserIDs: []string{}}
}

// Dispatcher sends one batch of recipients per ProcessBatch call.
type Dispatcher struct {
	DB        *gorm.DB
	Transport mailer.Transport
	Renderer  mailer.Renderer

	// Limiter, when set, is waited on once per batch to bound the rate of
	// transport calls.
	Limiter *rate.Limiter
	// BatchTimeout bounds a single transport call; zero disables it.
	BatchTimeout time.Duration
}

// ProcessBatch delivers issue to users. subjectID and seq identify where the
// issue sits in its newsletter line and are embedded in unsubscribe links.
//
// Steps:
//  1. Ensure a pending ledger row exists for every user (skip-if-exists).
//  2. Render one message per user; a render failure fails only that user.
//  3. Call the transport once, under BatchTimeout.
//  4. Write all outcomes back with one bulk status update.
//
// Empty input returns a zero result without touching the transport.
func (d *Dispatcher) ProcessBatch(ctx context.Context, users []domain.User, issue *domain.Issue, subjectID uint, seq int) (BatchResult, error) {
	if len(users) == 0 {
		return emptyResult(), nil
	}

	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "ProcessBatch",
		trace.WithAttributes(
			attribute.Int64("issue.id", int64(issue.ID)),
			attribute.Int64("subject.id", int64(subjectID)),
			attribute.Int("batch.size", len(users)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	userIDs := make([]string, len(users))
	for i, u := range users {
		userIDs[i] = u.ID
	}
	if _, err := repo.BulkCreatePending(ctx, d.DB, issue.ID, userIDs); err != nil {
		span.RecordError(err)
		return emptyResult(), persistence("create pending deliveries", err)
	}

	now := time.Now().UTC()
	updates := make([]repo.DeliveryUpdate, 0, len(users))
	msgs := make([]mailer.Message, 0, len(users))
	for _, u := range users {
		msg, err := d.Renderer.Render(u, issue, subjectID, seq)
		if err != nil {
			updates = append(updates, failedUpdate(u.ID, "render: "+err.Error()))
			continue
		}
		msgs = append(msgs, msg)
	}

	outcomes, sendErr := d.send(ctx, msgs)
	if sendErr != nil {
		span.RecordError(sendErr)
		span.SetStatus(codes.Error, "transport failure")
		logFrom(ctx).Warn().Err(sendErr).
			Uint("issue_id", issue.ID).
			Int("batch_size", len(msgs)).
			Msg("transport failed; marking batch failed")
		for _, m := range msgs {
			updates = append(updates, failedUpdate(m.UserID, sendErr.Error()))
		}
		res := tally(updates)
		if err := repo.BulkUpdateStatuses(ctx, d.DB, issue.ID, updates); err != nil {
			logFrom(ctx).Error().Err(err).Uint("issue_id", issue.ID).Msg("record failed batch")
		}
		return res, nil
	}

	byUser := make(map[string]mailer.Outcome, len(outcomes))
	for _, o := range outcomes {
		byUser[o.UserID] = o
	}
	for _, m := range msgs {
		o, ok := byUser[m.UserID]
		if !ok {
			updates = append(updates, failedUpdate(m.UserID, "no outcome returned by transport"))
			continue
		}
		updates = append(updates, outcomeUpdate(o, now))
	}

	res := tally(updates)
	if err := repo.BulkUpdateStatuses(ctx, d.DB, issue.ID, updates); err != nil {
		span.RecordError(err)
		return res, persistence("update delivery statuses", err)
	}
	return res, nil
}

// Preview sends issue to a single recipient without touching the delivery
// ledger, so a preview never counts as a delivery and never makes the
// recipient look already served to a later broadcast. Anything short of a
// successful outcome is returned as ErrTransport.
func (d *Dispatcher) Preview(ctx context.Context, user domain.User, issue *domain.Issue, subjectID uint, seq int) (BatchResult, error) {
	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "Preview",
		trace.WithAttributes(
			attribute.Int64("issue.id", int64(issue.ID)),
			attribute.Int64("subject.id", int64(subjectID)),
		),
	)
	defer span.End()

	failed := func(reason string) (BatchResult, error) {
		span.SetStatus(codes.Error, reason)
		return BatchResult{TotalFailed: 1, FailedUserIDs: []string{user.ID}},
			fmt.Errorf("%w: preview was not delivered: %s", ErrTransport, reason)
	}

	msg, err := d.Renderer.Render(user, issue, subjectID, seq)
	if err != nil {
		return failed("render: " + err.Error())
	}
	outcomes, err := d.send(ctx, []mailer.Message{msg})
	if err != nil {
		span.RecordError(err)
		return failed(err.Error())
	}
	for _, o := range outcomes {
		if o.UserID != user.ID {
			continue
		}
		if !o.Status.Succeeded() {
			reason := o.Error
			if reason == "" {
				reason = "transport returned status " + string(o.Status)
			}
			return failed(reason)
		}
		return BatchResult{TotalSent: 1, FailedUserIDs: []string{}}, nil
	}
	return failed("no outcome returned by transport")
}

// send waits on the limiter and calls the transport under BatchTimeout.
// Messages that were all filtered out by rendering skip the transport.
func (d *Dispatcher) send(ctx context.Context, msgs []mailer.Message) ([]mailer.Outcome, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if d.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.BatchTimeout)
		defer cancel()
	}
	return d.Transport.SendBatch(ctx, msgs)
}

func failedUpdate(userID, msg string) repo.DeliveryUpdate {
	return repo.DeliveryUpdate{UserID: userID, Status: domain.DeliveryFailed, ErrorMessage: &msg}
}

func outcomeUpdate(o mailer.Outcome, now time.Time) repo.DeliveryUpdate {
	u := repo.DeliveryUpdate{UserID: o.UserID, Status: o.Status}
	if o.ExternalID != "" {
		id := o.ExternalID
		u.ExternalID = &id
	}
	switch o.Status {
	case domain.DeliverySent:
		u.SentAt = &now
	case domain.DeliveryDelivered:
		u.SentAt = &now
		u.DeliveredAt = &now
	case domain.DeliveryFailed, domain.DeliveryBounced:
		msg := o.Error
		if msg == "" {
			msg = string(o.Status)
		}
		u.ErrorMessage = &msg
	default:
		// Unknown or empty status from the transport counts as failed.
		msg := "transport returned status " + string(o.Status)
		u.Status = domain.DeliveryFailed
		u.ErrorMessage = &msg
	}
	return u
}

// tally counts updates and records them in the deliveries metric.
func tally(updates []repo.DeliveryUpdate) BatchResult {
	res := emptyResult()
	for _, u := range updates {
		deliveriesTotal.WithLabelValues(string(u.Status)).Inc()
		if u.Status.Succeeded() {
			res.TotalSent++
			continue
		}
		res.TotalFailed++
		res.FailedUserIDs = append(res.FailedUserIDs, u.UserID)
	}
	return res
}

// logFrom returns the logger carried by ctx, or the global logger.
func logFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
