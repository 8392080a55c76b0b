package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gorm.io/datatypes"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// ---------- CanSendIssue ----------

func TestCanSendIssue_Guards(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, domain.IssueApproved, true)
	if _, err := f.send.CanSendIssue(ctx, f.issue.ID); err != nil {
		t.Fatalf("approved issue with content: %v", err)
	}
	if _, err := f.send.CanSendIssue(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing issue: want ErrNotFound, got %v", err)
	}

	draft := newFixture(t, domain.IssueDraft, true)
	if _, err := draft.send.CanSendIssue(ctx, draft.issue.ID); !errors.Is(err, ErrPreconditionFailed) || !errors.Is(err, ErrIssueNotApproved) {
		t.Fatalf("draft: want ErrIssueNotApproved, got %v", err)
	}

	empty := newFixture(t, domain.IssueApproved, false)
	if _, err := empty.send.CanSendIssue(ctx, empty.issue.ID); !errors.Is(err, ErrIssueNoContent) {
		t.Fatalf("no content: want ErrIssueNoContent, got %v", err)
	}
}

// ---------- SendToAdmin ----------

func TestSendToAdmin_StampsSentAtButKeepsApproved(t *testing.T) {
	f := newFixture(t, domain.IssueApproved, true)
	ctx := context.Background()

	res, err := f.send.SendToAdmin(ctx, f.topic.ID, 0)
	if err != nil {
		t.Fatalf("SendToAdmin: %v", err)
	}
	if res.TotalSent != 1 {
		t.Fatalf("want 1 sent, got %+v", res)
	}
	admin, err := repo.GetUserByEmail(ctx, f.db, "admin@example.com")
	if err != nil {
		t.Fatalf("admin user not created: %v", err)
	}
	if got := f.tr.recipients(); len(got) != 1 || got[0] != admin.ID {
		t.Fatalf("recipients = %v", got)
	}

	issue := f.reload(t)
	if issue.Status != domain.IssueApproved {
		t.Fatalf("admin preview must not publish; status=%s", issue.Status)
	}
	if issue.SentAt == nil {
		t.Fatalf("sent_at must be stamped")
	}

	// A second preview reuses the admin user.
	if _, err := f.send.SendToAdmin(ctx, f.topic.ID, 1); err != nil {
		t.Fatalf("second SendToAdmin: %v", err)
	}
	var n int64
	f.db.Model(&domain.User{}).Where("email = ?", "admin@example.com").Count(&n)
	if n != 1 {
		t.Fatalf("admin user duplicated: %d", n)
	}
}

func TestSendToAdmin_Errors(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, domain.IssueApproved, true)
	if _, err := f.send.SendToAdmin(ctx, 9999, 1); !errors.Is(err, ErrTopicNotFound) {
		t.Fatalf("want ErrTopicNotFound, got %v", err)
	}

	f.tr.err = errors.New("provider down")
	_, err := f.send.SendToAdmin(ctx, f.topic.ID, 1)
	if !errors.Is(err, ErrTransport) || !strings.Contains(err.Error(), "provider down") {
		t.Fatalf("want ErrTransport, got %v", err)
	}
	if f.reload(t).SentAt != nil {
		t.Fatalf("sent_at must stay unset when the preview failed")
	}

	draft := newFixture(t, domain.IssueDraft, true)
	if _, err := draft.send.SendToAdmin(ctx, draft.topic.ID, 1); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("draft: want ErrPreconditionFailed, got %v", err)
	}
}

func TestSendToAdmin_SubscribedAdminStillGetsBroadcast(t *testing.T) {
	f := newFixture(t, domain.IssueApproved, true)
	ctx := context.Background()

	admin, err := repo.EnsureUserByEmail(ctx, f.db, "admin@example.com", "Admin")
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	if _, err := repo.InsertActiveSubscriptions(ctx, f.db, f.subject.ID, []string{admin.ID}); err != nil {
		t.Fatalf("subscribe admin: %v", err)
	}
	f.addUsers(t, 2, true)

	if _, err := f.send.SendToAdmin(ctx, f.topic.ID, 0); err != nil {
		t.Fatalf("SendToAdmin: %v", err)
	}
	if _, err := repo.GetDelivery(ctx, f.db, f.issue.ID, admin.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("preview must not write a ledger row, got %v", err)
	}

	res := f.send.SendToAllSubscribers(ctx, f.subject.ID)
	if !res.Success || res.TotalSent != 3 {
		t.Fatalf("want 3 sent including the admin, got %+v", res)
	}
	adminMails := 0
	for _, id := range f.tr.recipients() {
		if id == admin.ID {
			adminMails++
		}
	}
	if adminMails != 2 {
		t.Fatalf("admin should get the preview and the broadcast, got %d emails", adminMails)
	}

	m, err := f.send.RecentMetrics(ctx, 0)
	if err != nil || len(m) != 1 {
		t.Fatalf("RecentMetrics = %v, %v", m, err)
	}
	if m[0].Total != 3 || m[0].Sent != 3 {
		t.Fatalf("metrics must count broadcast deliveries only: %+v", m[0])
	}
}

func TestSendToAdmin_RejectedOutcome(t *testing.T) {
	f := newFixture(t, domain.IssueApproved, true)
	ctx := context.Background()

	admin, err := repo.EnsureUserByEmail(ctx, f.db, "admin@example.com", "Admin")
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	f.tr.status[admin.ID] = domain.DeliveryBounced

	res, err := f.send.SendToAdmin(ctx, f.topic.ID, 1)
	if !errors.Is(err, ErrTransport) || !strings.Contains(err.Error(), "rejected by provider") {
		t.Fatalf("want ErrTransport with provider reason, got %v", err)
	}
	if res.TotalFailed != 1 || res.TotalSent != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if f.reload(t).SentAt != nil {
		t.Fatalf("sent_at must stay unset")
	}
}

// ---------- SendToAllSubscribers ----------

func TestSendToAllSubscribers_Success(t *testing.T) {
	f := newFixture(t, domain.IssueApproved, true)
	ctx := context.Background()
	subs := f.addUsers(t, 5, true)
	outsiders := f.addUsers(t, 2, false)

	res := f.send.SendToAllSubscribers(ctx, f.subject.ID)
	if !res.Success {
		t.Fatalf("broadcast failed: %s", res.Error)
	}
	if res.TotalSent != 5 || res.TotalFailed != 0 || res.SequenceNumber != 1 || res.IssueID != f.issue.ID {
		t.Fatalf("unexpected result %+v", res)
	}

	got := map[string]bool{}
	for _, id := range f.tr.recipients() {
		if got[id] {
			t.Fatalf("user %s emailed twice", id)
		}
		got[id] = true
	}
	for _, u := range subs {
		if !got[u.ID] {
			t.Fatalf("subscriber %s not emailed", u.ID)
		}
	}
	for _, u := range outsiders {
		if got[u.ID] {
			t.Fatalf("non-subscriber %s emailed", u.ID)
		}
	}

	issue := f.reload(t)
	if issue.Status != domain.IssueSent || issue.SentAt == nil {
		t.Fatalf("issue not marked sent: %+v", issue)
	}
	seq, _ := repo.GetSequence(ctx, f.db, f.subject.ID)
	if seq.CurrentSequence != 2 {
		t.Fatalf("sequence = %d; want 2", seq.CurrentSequence)
	}

	results, total, err := f.send.ListSendResults(ctx, 1, 10)
	if err != nil || total != 1 {
		t.Fatalf("send results = %d, %v", total, err)
	}
	if results[0].CompletedAt == nil || results[0].TotalSent != 5 || results[0].Error != "" {
		t.Fatalf("send result not finished: %+v", results[0])
	}
}

func TestSendToAllSubscribers_NoTopicAtSequence(t *testing.T) {
	f := newFixture(t, domain.IssueApproved, true)
	ctx := context.Background()
	f.addUsers(t, 2, true)
	if err := repo.AdvanceSequence(ctx, f.db, f.subject.ID, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}

	res := f.send.SendToAllSubscribers(ctx, f.subject.ID)
	if res.Success || res.SequenceNumber != 0 || res.Error == "" {
		t.Fatalf("want structured failure, got %+v", res)
	}
	seq, _ := repo.GetSequence(ctx, f.db, f.subject.ID)
	if seq.CurrentSequence != 2 {
		t.Fatalf("sequence moved to %d", seq.CurrentSequence)
	}
	if f.tr.callCount() != 0 {
		t.Fatalf("transport must not be called")
	}
}

func TestSendToAllSubscribers_NotApprovedKeepsSequence(t *testing.T) {
	f := newFixture(t, domain.IssueDraft, true)
	ctx := context.Background()
	f.addUsers(t, 2, true)

	res := f.send.SendToAllSubscribers(ctx, f.subject.ID)
	if res.Success || res.SequenceNumber != 0 {
		t.Fatalf("want failure, got %+v", res)
	}
	seq, _ := repo.GetSequence(ctx, f.db, f.subject.ID)
	if seq.CurrentSequence != 1 {
		t.Fatalf("sequence = %d; want 1", seq.CurrentSequence)
	}
}

func TestSendToAllSubscribers_NoSequenceRow(t *testing.T) {
	f := newFixture(t, domain.IssueApproved, true)
	other, _ := repo.CreateSubject(context.Background(), f.db, "Other", "other")

	res := f.send.SendToAllSubscribers(context.Background(), other.ID)
	if res.Success || !strings.Contains(res.Error, ErrSequenceNotFound.Error()) {
		t.Fatalf("want sequence failure, got %+v", res)
	}
}

func TestSendToAllSubscribers_RerunSkipsProcessedUsers(t *testing.T) {
	f := newFixture(t, domain.IssueApproved, true)
	ctx := context.Background()
	users := f.addUsers(t, 4, true)

	// Simulate a crashed earlier run that already delivered to two users.
	done := []string{users[0].ID, users[1].ID}
	if _, err := repo.BulkCreatePending(ctx, f.db, f.issue.ID, done); err != nil {
		t.Fatalf("seed pending: %v", err)
	}
	if err := repo.BulkUpdateStatuses(ctx, f.db, f.issue.ID, []repo.DeliveryUpdate{
		{UserID: users[0].ID, Status: domain.DeliverySent},
		{UserID: users[1].ID, Status: domain.DeliveryFailed},
	}); err != nil {
		t.Fatalf("seed statuses: %v", err)
	}

	res := f.send.SendToAllSubscribers(ctx, f.subject.ID)
	if !res.Success || res.TotalSent != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, id := range f.tr.recipients() {
		if id == users[0].ID || id == users[1].ID {
			t.Fatalf("already processed user %s emailed again", id)
		}
	}
}

func TestSendToAllSubscribers_PartialFailureStillAdvances(t *testing.T) {
	f := newFixture(t, domain.IssueApproved, true)
	ctx := context.Background()
	users := f.addUsers(t, 3, true)
	f.tr.status[users[1].ID] = domain.DeliveryFailed

	res := f.send.SendToAllSubscribers(ctx, f.subject.ID)
	if !res.Success || res.TotalSent != 2 || res.TotalFailed != 1 || res.FailedUserIDs[0] != users[1].ID {
		t.Fatalf("unexpected result %+v", res)
	}
	seq, _ := repo.GetSequence(ctx, f.db, f.subject.ID)
	if seq.CurrentSequence != 2 {
		t.Fatalf("sequence = %d; want 2", seq.CurrentSequence)
	}
}

// ---------- ResendToFailedUsers ----------

func TestResendToFailedUsers_RequiresSent(t *testing.T) {
	f := newFixture(t, domain.IssueApproved, true)
	_, err := f.send.ResendToFailedUsers(context.Background(), f.issue.ID)
	if !errors.Is(err, ErrPreconditionFailed) || !errors.Is(err, ErrIssueNotSent) {
		t.Fatalf("want ErrIssueNotSent, got %v", err)
	}
	if _, err := f.send.ResendToFailedUsers(context.Background(), 4242); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestResendToFailedUsers_NothingToResend(t *testing.T) {
	f := newFixture(t, domain.IssueSent, true)
	res, err := f.send.ResendToFailedUsers(context.Background(), f.issue.ID)
	if err != nil {
		t.Fatalf("ResendToFailedUsers: %v", err)
	}
	if res.TotalSent != 0 || res.TotalFailed != 0 || res.ResendCount != 0 {
		t.Fatalf("want zero result, got %+v", res)
	}
	if f.tr.callCount() != 0 {
		t.Fatalf("transport must not be called")
	}
}

func TestResendToFailedUsers_RetriesActiveFailedOnly(t *testing.T) {
	f := newFixture(t, domain.IssueSent, true)
	ctx := context.Background()
	users := f.addUsers(t, 3, true)

	if _, err := repo.BulkCreatePending(ctx, f.db, f.issue.ID, []string{users[0].ID, users[1].ID, users[2].ID}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := repo.BulkUpdateStatuses(ctx, f.db, f.issue.ID, []repo.DeliveryUpdate{
		{UserID: users[0].ID, Status: domain.DeliverySent},
		{UserID: users[1].ID, Status: domain.DeliveryFailed},
		{UserID: users[2].ID, Status: domain.DeliveryBounced},
	}); err != nil {
		t.Fatalf("seed statuses: %v", err)
	}
	if _, err := f.subs.Unsubscribe(ctx, users[2].ID, f.subject.ID); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	res, err := f.send.ResendToFailedUsers(ctx, f.issue.ID)
	if err != nil {
		t.Fatalf("ResendToFailedUsers: %v", err)
	}
	if res.ResendCount != 1 || res.TotalSent != 1 || res.TotalFailed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if f.tr.callCount() != 1 {
		t.Fatalf("want exactly one dispatch, got %d", f.tr.callCount())
	}
	msg := f.tr.calls[0][0]
	if msg.UserID != users[1].ID || !strings.Contains(msg.Headers["List-Unsubscribe"], "seq=1") {
		t.Fatalf("resend must target the failed user with the original sequence: %+v", msg)
	}
	if d := f.delivery(t, users[1].ID); d.Status != domain.DeliverySent {
		t.Fatalf("ledger not updated: %+v", d)
	}
}

// ---------- reporting ----------

func TestFailedUserIDsAndMetrics(t *testing.T) {
	f := newFixture(t, domain.IssueApproved, true)
	ctx := context.Background()
	users := f.addUsers(t, 2, true)
	f.tr.status[users[0].ID] = domain.DeliveryFailed

	if res := f.send.SendToAllSubscribers(ctx, f.subject.ID); !res.Success {
		t.Fatalf("broadcast: %s", res.Error)
	}

	ids, err := f.send.FailedUserIDs(ctx, f.issue.ID)
	if err != nil || len(ids) != 1 || ids[0] != users[0].ID {
		t.Fatalf("FailedUserIDs = %v, %v", ids, err)
	}
	if _, err := f.send.FailedUserIDs(ctx, 777); !errors.Is(err, ErrIssueNotFound) {
		t.Fatalf("want ErrIssueNotFound, got %v", err)
	}

	m, err := f.send.RecentMetrics(ctx, 0)
	if err != nil || len(m) != 1 {
		t.Fatalf("RecentMetrics = %v, %v", m, err)
	}
	if m[0].Total != 2 || m[0].Sent != 1 || m[0].Failed != 1 || m[0].SuccessRate != 0.5 {
		t.Fatalf("unexpected metrics %+v", m[0])
	}
}

func TestDeliveryCounts(t *testing.T) {
	f := newFixture(t, domain.IssueApproved, true)
	ctx := context.Background()
	users := f.addUsers(t, 3, true)
	f.tr.status[users[2].ID] = domain.DeliveryBounced

	if res := f.send.SendToAllSubscribers(ctx, f.subject.ID); !res.Success {
		t.Fatalf("broadcast: %s", res.Error)
	}
	counts, err := f.send.DeliveryCounts(ctx, f.issue.ID)
	if err != nil {
		t.Fatalf("DeliveryCounts: %v", err)
	}
	if counts[domain.DeliverySent] != 2 || counts[domain.DeliveryBounced] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if n, ok := counts[domain.DeliveryPending]; !ok || n != 0 {
		t.Fatalf("pending must be reported as zero: %v", counts)
	}
	if _, err := f.send.DeliveryCounts(ctx, 777); !errors.Is(err, ErrIssueNotFound) {
		t.Fatalf("want ErrIssueNotFound, got %v", err)
	}
}

func TestCheckSendable_Nil(t *testing.T) {
	if err := checkSendable(nil); !errors.Is(err, ErrIssueNotFound) {
		t.Fatalf("want ErrIssueNotFound, got %v", err)
	}
	i := &domain.Issue{Status: domain.IssueApproved, Content: datatypes.NewJSONType(&domain.IssueContent{HTML: "  "})}
	if err := checkSendable(i); !errors.Is(err, ErrIssueNoContent) {
		t.Fatalf("blank content: want ErrIssueNoContent, got %v", err)
	}
}
