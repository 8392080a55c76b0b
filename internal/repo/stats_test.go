package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

func TestFindRecentIssueMetrics(t *testing.T) {
	ctx := context.Background()
	db := newRepoDB(t)
	_, topic, older := seedIssue(t, db, domain.IssueSent)
	newer, _ := CreateIssue(ctx, db, topic.ID, "newer", domain.IssueSent)
	unsent, _ := CreateIssue(ctx, db, topic.ID, "draft", domain.IssueDraft)

	t0 := time.Now().UTC().Add(-2 * time.Hour)
	StampIssueSentAt(ctx, db, older.ID, t0)
	StampIssueSentAt(ctx, db, newer.ID, t0.Add(time.Hour))

	users := seedUsers(t, db, 5)
	BulkCreatePending(ctx, db, older.ID, ids(users))
	BulkUpdateStatuses(ctx, db, older.ID, []DeliveryUpdate{
		{UserID: users[0].ID, Status: domain.DeliverySent},
		{UserID: users[1].ID, Status: domain.DeliveryDelivered},
		{UserID: users[2].ID, Status: domain.DeliveryFailed},
		{UserID: users[3].ID, Status: domain.DeliveryBounced},
	})
	BulkCreatePending(ctx, db, unsent.ID, ids(users))

	got, err := FindRecentIssueMetrics(ctx, db, 10)
	if err != nil {
		t.Fatalf("FindRecentIssueMetrics: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows; want 2 (unsent issues excluded)", len(got))
	}
	if got[0].IssueID != newer.ID || got[1].IssueID != older.ID {
		t.Fatalf("order = [%d %d]; want newest first", got[0].IssueID, got[1].IssueID)
	}

	// newer has no ledger rows: zero totals and a zero rate.
	if got[0].Total != 0 || got[0].SuccessRate != 0 {
		t.Fatalf("empty issue metrics = %+v", got[0])
	}

	m := got[1]
	if m.Total != 5 || m.Sent != 2 || m.Pending != 1 || m.Failed != 2 {
		t.Fatalf("older metrics = %+v", m)
	}
	if m.SuccessRate != 0.4 {
		t.Fatalf("success rate = %v; want 0.4", m.SuccessRate)
	}

	limited, _ := FindRecentIssueMetrics(ctx, db, 1)
	if len(limited) != 1 || limited[0].IssueID != newer.ID {
		t.Fatalf("limit not applied: %+v", limited)
	}
}

func TestCountDeliveriesByStatus(t *testing.T) {
	ctx := context.Background()
	db := newRepoDB(t)
	_, _, issue := seedIssue(t, db, domain.IssueSent)
	users := seedUsers(t, db, 3)
	BulkCreatePending(ctx, db, issue.ID, ids(users))
	BulkUpdateStatuses(ctx, db, issue.ID, []DeliveryUpdate{{UserID: users[0].ID, Status: domain.DeliverySent}})

	counts, err := CountDeliveriesByStatus(ctx, db, issue.ID)
	if err != nil {
		t.Fatalf("CountDeliveriesByStatus: %v", err)
	}
	if counts[domain.DeliveryPending] != 2 || counts[domain.DeliverySent] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestSuccessRate(t *testing.T) {
	if successRate(0, 0) != 0 {
		t.Fatalf("zero total must give 0")
	}
	if successRate(3, 4) != 0.75 {
		t.Fatalf("3/4 != 0.75")
	}
}
