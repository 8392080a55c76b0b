// Package services – SendService
//
// This file implements the send orchestrator with three entry points:
//
//   - SendToAdmin: synchronous preview of a topic's issue to one fixed admin
//     recipient. Stamps sent_at but keeps the issue approved and writes
//     nothing to the delivery ledger.
//   - SendToAllSubscribers: the scheduled broadcast. Resolves the subject's
//     current issue through its sequence counter, pages through every user,
//     dispatches eligible recipients batch by batch, then marks the issue
//     sent and advances the sequence exactly once.
//   - ResendToFailedUsers: post-broadcast remediation for recipients whose
//     delivery is pending, failed, or bounced and who are still subscribed.
//
// All three share the CanSendIssue guard.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// DefaultBatchSize is the page size used when SendService.BatchSize is unset.
const DefaultBatchSize = 100

// BroadcastResult is the structured outcome of SendToAllSubscribers. A
// failed broadcast reports Success=false, the reason in Error, and
// SequenceNumber 0; totals reflect whatever was dispatched before failing.
type BroadcastResult struct {
	Success        bool     `json:"success"`
	Error          string   `json:"error,omitempty"`
	SubjectID      uint     `json:"subject_id"`
	SequenceNumber int      `json:"sequence_number"`
	IssueID        uint     `json:"issue_id,omitempty"`
	TotalSent      int      `json:"total_sent"`
	TotalFailed    int      `json:"total_failed"`
	FailedUserIDs  []string `json:"failed_user_ids"`
}

// ResendResult reports the totals of one resend run only.
type ResendResult struct {
	TotalSent     int      `json:"total_sent"`
	TotalFailed   int      `json:"total_failed"`
	ResendCount   int      `json:"resend_count"`
	FailedUserIDs []string `json:"failed_user_ids"`
}

// SendService orchestrates admin previews, broadcasts, and resends.
type SendService struct {
	DB         *gorm.DB
	Dispatcher *Dispatcher

	// AdminEmail receives SendToAdmin previews; the user is created on demand.
	AdminEmail string
	// BatchSize is the number of users read and dispatched per page.
	BatchSize int
}

// NewSendService constructs a SendService with the default batch size.
func NewSendService(db *gorm.DB, d *Dispatcher, adminEmail string) *SendService {
	return &SendService{DB: db, Dispatcher: d, AdminEmail: adminEmail, BatchSize: DefaultBatchSize}
}

// CanSendIssue loads the issue and checks that it may be sent.
func (s *SendService) CanSendIssue(ctx context.Context, issueID uint) (*domain.Issue, error) {
	issue, err := repo.GetIssue(ctx, s.DB, issueID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrIssueNotFound
		}
		return nil, persistence("get issue", err)
	}
	if err := checkSendable(issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// checkSendable is the guard shared by every send path.
func checkSendable(issue *domain.Issue) error {
	if issue == nil {
		return ErrIssueNotFound
	}
	if !domain.CanSend(issue.Status) {
		return fmt.Errorf("%w (status %s)", ErrIssueNotApproved, issue.Status)
	}
	if !issue.HasContent() {
		return ErrIssueNoContent
	}
	return nil
}

// SendToAdmin sends the latest issue of topicID to the admin recipient.
// seq overrides the sequence number embedded in links; zero uses the
// topic's own position.
func (s *SendService) SendToAdmin(ctx context.Context, topicID uint, seq int) (BatchResult, error) {
	tr := otel.Tracer("services/SendService")
	ctx, span := tr.Start(ctx, "SendToAdmin",
		trace.WithAttributes(
			attribute.Int64("topic.id", int64(topicID)),
			attribute.Int("sequence", seq),
		),
	)
	defer span.End()

	if s.AdminEmail == "" {
		return emptyResult(), kind(ErrPreconditionFailed, "admin email is not configured")
	}

	topic, err := repo.GetTopic(ctx, s.DB, topicID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return emptyResult(), ErrTopicNotFound
		}
		return emptyResult(), persistence("get topic", err)
	}
	if seq <= 0 {
		seq = topic.SequenceNumber
	}

	issue, err := repo.GetLatestIssueForTopic(ctx, s.DB, topic.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return emptyResult(), ErrIssueNotFound
		}
		return emptyResult(), persistence("get issue", err)
	}
	if err := checkSendable(issue); err != nil {
		return emptyResult(), err
	}

	admin, err := repo.EnsureUserByEmail(ctx, s.DB, s.AdminEmail, "Admin")
	if err != nil {
		return emptyResult(), persistence("ensure admin user", err)
	}

	res, err := s.Dispatcher.Preview(ctx, *admin, issue, topic.SubjectID, seq)
	if err != nil {
		return res, err
	}

	if err := repo.StampIssueSentAt(ctx, s.DB, issue.ID, time.Now().UTC()); err != nil {
		return res, persistence("stamp sent_at", err)
	}
	return res, nil
}

// SendToAllSubscribers broadcasts the subject's current issue. It never
// returns an error or panics: every failure is reported in the result so a
// timer-driven caller keeps running. On failure the sequence counter is left
// untouched and the next run retries the same position.
func (s *SendService) SendToAllSubscribers(ctx context.Context, subjectID uint) (res BroadcastResult) {
	tr := otel.Tracer("services/SendService")
	ctx, span := tr.Start(ctx, "SendToAllSubscribers",
		trace.WithAttributes(attribute.Int64("subject.id", int64(subjectID))),
	)
	defer span.End()

	res = BroadcastResult{SubjectID: subjectID, FailedUserIDs: []string{}}
	fail := func(err error) BroadcastResult {
		span.RecordError(err)
		broadcastsTotal.WithLabelValues("failure").Inc()
		logFrom(ctx).Error().Err(err).Uint("subject_id", subjectID).Msg("broadcast failed")
		res.Success = false
		res.Error = err.Error()
		res.SequenceNumber = 0
		return res
	}
	defer func() {
		if rec := recover(); rec != nil {
			res = fail(fmt.Errorf("panic during broadcast: %v", rec))
		}
	}()

	issue, seq, err := s.resolveCurrentIssue(ctx, subjectID)
	if err != nil {
		return fail(err)
	}
	res.IssueID = issue.ID
	span.SetAttributes(attribute.Int64("issue.id", int64(issue.ID)), attribute.Int("sequence", seq))

	record, err := repo.StartSendResult(ctx, s.DB, issue.ID, subjectID, seq)
	if err != nil {
		return fail(persistence("start send result", err))
	}

	total := emptyResult()
	if err := s.dispatchAll(ctx, issue, subjectID, seq, &total); err != nil {
		s.finishFailed(ctx, record.ID, total, err)
		res.TotalSent, res.TotalFailed, res.FailedUserIDs = total.TotalSent, total.TotalFailed, total.FailedUserIDs
		return fail(err)
	}
	res.TotalSent, res.TotalFailed, res.FailedUserIDs = total.TotalSent, total.TotalFailed, total.FailedUserIDs

	if err := domain.ValidateStatusTransition(issue.Status, domain.IssueSent); err != nil {
		s.finishFailed(ctx, record.ID, total, err)
		return fail(err)
	}
	now := time.Now().UTC()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.AdvanceSequence(ctx, tx, subjectID, seq); err != nil {
			if errors.Is(err, repo.ErrSequenceConflict) {
				return ErrSequenceConflict
			}
			return persistence("advance sequence", err)
		}
		if err := repo.UpdateIssueStatus(ctx, tx, issue.ID, domain.IssueApproved, domain.IssueSent, map[string]any{"sent_at": now}); err != nil {
			if errors.Is(err, repo.ErrStaleStatus) {
				return ErrIssueChanged
			}
			return persistence("mark issue sent", err)
		}
		if err := repo.FinishSendResult(ctx, tx, record.ID, total.TotalSent, total.TotalFailed, total.FailedUserIDs, ""); err != nil {
			return persistence("finish send result", err)
		}
		return nil
	})
	if err != nil {
		s.finishFailed(ctx, record.ID, total, err)
		return fail(err)
	}

	broadcastsTotal.WithLabelValues("success").Inc()
	logFrom(ctx).Info().
		Uint("subject_id", subjectID).
		Uint("issue_id", issue.ID).
		Int("sequence", seq).
		Int("sent", total.TotalSent).
		Int("failed", total.TotalFailed).
		Msg("broadcast complete")

	res.Success = true
	res.SequenceNumber = seq
	return res
}

// resolveCurrentIssue maps subject -> sequence -> topic -> latest issue and
// applies the send guard.
func (s *SendService) resolveCurrentIssue(ctx context.Context, subjectID uint) (*domain.Issue, int, error) {
	sq, err := repo.GetSequence(ctx, s.DB, subjectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, ErrSequenceNotFound
		}
		return nil, 0, persistence("get sequence", err)
	}
	topic, err := repo.GetTopicBySequence(ctx, s.DB, subjectID, sq.CurrentSequence)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, fmt.Errorf("%w at sequence %d", ErrTopicNotFound, sq.CurrentSequence)
		}
		return nil, 0, persistence("get topic", err)
	}
	issue, err := repo.GetLatestIssueForTopic(ctx, s.DB, topic.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, fmt.Errorf("%w for topic %d", ErrIssueNotFound, topic.ID)
		}
		return nil, 0, persistence("get issue", err)
	}
	if err := checkSendable(issue); err != nil {
		return nil, 0, err
	}
	return issue, sq.CurrentSequence, nil
}

// dispatchAll pages through every user by id and dispatches the eligible
// ones. Users that already have a non-pending ledger row for the issue are
// skipped, so re-running an interrupted broadcast does not resend.
func (s *SendService) dispatchAll(ctx context.Context, issue *domain.Issue, subjectID uint, seq int, total *BatchResult) error {
	size := s.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := repo.ListUsersAfter(ctx, s.DB, after, size)
		if err != nil {
			return persistence("list users", err)
		}
		if len(page) == 0 {
			return nil
		}
		after = page[len(page)-1].ID

		ids := make([]string, len(page))
		for i, u := range page {
			ids[i] = u.ID
		}
		eligible, err := repo.FilterEligibleRecipients(ctx, s.DB, issue.ID, subjectID, ids)
		if err != nil {
			return persistence("filter recipients", err)
		}
		if len(eligible) > 0 {
			keep := make(map[string]struct{}, len(eligible))
			for _, id := range eligible {
				keep[id] = struct{}{}
			}
			batch := make([]domain.User, 0, len(eligible))
			for _, u := range page {
				if _, ok := keep[u.ID]; ok {
					batch = append(batch, u)
				}
			}
			r, err := s.Dispatcher.ProcessBatch(ctx, batch, issue, subjectID, seq)
			total.Add(r)
			if err != nil {
				return err
			}
		}
		if len(page) < size {
			return nil
		}
	}
}

// finishFailed closes the send-result row of a failed broadcast. It runs on
// a fresh context so a cancelled broadcast still leaves a record.
func (s *SendService) finishFailed(ctx context.Context, id string, total BatchResult, cause error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := repo.FinishSendResult(fctx, s.DB, id, total.TotalSent, total.TotalFailed, total.FailedUserIDs, cause.Error()); err != nil {
		logFrom(ctx).Error().Err(err).Str("send_result_id", id).Msg("finish send result")
	}
}

// ResendToFailedUsers re-dispatches an already sent issue to recipients
// whose delivery is pending, failed, or bounced and who are still active
// subscribers. Links carry the original sequence number.
func (s *SendService) ResendToFailedUsers(ctx context.Context, issueID uint) (ResendResult, error) {
	tr := otel.Tracer("services/SendService")
	ctx, span := tr.Start(ctx, "ResendToFailedUsers",
		trace.WithAttributes(attribute.Int64("issue.id", int64(issueID))),
	)
	defer span.End()

	out := ResendResult{FailedUserIDs: []string{}}

	issue, err := repo.GetIssue(ctx, s.DB, issueID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return out, ErrIssueNotFound
		}
		return out, persistence("get issue", err)
	}
	if issue.Status != domain.IssueSent {
		return out, fmt.Errorf("%w (status %s)", ErrIssueNotSent, issue.Status)
	}
	if !issue.HasContent() {
		return out, ErrIssueNoContent
	}

	users, err := repo.FindActiveSubscribersWithFailedDeliveries(ctx, s.DB, issue.ID)
	if err != nil {
		return out, persistence("find retry candidates", err)
	}
	if len(users) == 0 {
		return out, nil
	}

	topic, err := repo.GetTopic(ctx, s.DB, issue.TopicID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return out, ErrTopicNotFound
		}
		return out, persistence("get topic", err)
	}

	r, err := s.Dispatcher.ProcessBatch(ctx, users, issue, topic.SubjectID, topic.SequenceNumber)
	out.TotalSent = r.TotalSent
	out.TotalFailed = r.TotalFailed
	out.FailedUserIDs = r.FailedUserIDs
	out.ResendCount = len(users)
	return out, err
}

// FailedUserIDs lists the recipients of issueID whose delivery failed or
// bounced.
func (s *SendService) FailedUserIDs(ctx context.Context, issueID uint) ([]string, error) {
	if _, err := repo.GetIssue(ctx, s.DB, issueID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrIssueNotFound
		}
		return nil, persistence("get issue", err)
	}
	ids, err := repo.ListFailedUserIDs(ctx, s.DB, issueID)
	if err != nil {
		return nil, persistence("list failed users", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// DeliveryCounts returns the ledger row count per delivery status for one
// issue. Every status is present, zero when no row holds it.
func (s *SendService) DeliveryCounts(ctx context.Context, issueID uint) (map[domain.DeliveryStatus]int64, error) {
	if _, err := repo.GetIssue(ctx, s.DB, issueID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrIssueNotFound
		}
		return nil, persistence("get issue", err)
	}
	counts, err := repo.CountDeliveriesByStatus(ctx, s.DB, issueID)
	if err != nil {
		return nil, persistence("count deliveries", err)
	}
	for _, st := range []domain.DeliveryStatus{domain.DeliveryPending, domain.DeliverySent, domain.DeliveryDelivered, domain.DeliveryFailed, domain.DeliveryBounced} {
		if _, ok := counts[st]; !ok {
			counts[st] = 0
		}
	}
	return counts, nil
}

// RecentMetrics returns per-issue delivery metrics, most recently sent first.
func (s *SendService) RecentMetrics(ctx context.Context, limit int) ([]repo.IssueMetrics, error) {
	if limit <= 0 {
		limit = 20
	}
	m, err := repo.FindRecentIssueMetrics(ctx, s.DB, limit)
	if err != nil {
		return nil, persistence("issue metrics", err)
	}
	return m, nil
}

// ListSendResults returns a page of broadcast records, newest first.
func (s *SendService) ListSendResults(ctx context.Context, page, pageSize int) ([]domain.NewsletterSendResult, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountSendResults(ctx, s.DB)
	if err != nil {
		return nil, 0, persistence("count send results", err)
	}
	if total == 0 {
		return []domain.NewsletterSendResult{}, 0, nil
	}
	items, err := repo.ListSendResultsPage(ctx, s.DB, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, persistence("list send results", err)
	}
	return items, total, nil
}
