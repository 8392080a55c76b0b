package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(
		&Subject{}, &Topic{}, &Issue{}, &User{}, &Subscription{},
		&SubscriptionAudit{}, &Delivery{}, &NewsletterSendResult{},
		&SubjectSequence{}, &Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(Subject{}).TableName():              "subjects",
		(Topic{}).TableName():                "topics",
		(Issue{}).TableName():                "issues",
		(User{}).TableName():                 "users",
		(Subscription{}).TableName():         "subscriptions",
		(SubscriptionAudit{}).TableName():    "subscription_audits",
		(Delivery{}).TableName():             "deliveries",
		(NewsletterSendResult{}).TableName(): "newsletter_send_results",
		(SubjectSequence{}).TableName():      "subject_sequences",
		(Idempotency{}).TableName():          "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_UniqueIndexes(t *testing.T) {
	db := newDomainDB(t)
	m := db.Migrator()

	if !m.HasIndex(&Delivery{}, "ux_delivery_issue_user") {
		t.Fatalf("expected ux_delivery_issue_user on deliveries")
	}
	if !m.HasIndex(&Subscription{}, "ux_subscription_user_subject") {
		t.Fatalf("expected ux_subscription_user_subject on subscriptions")
	}
	if !m.HasIndex(&Topic{}, "ux_topic_subject_seq") {
		t.Fatalf("expected ux_topic_subject_seq on topics")
	}
	if !m.HasIndex(&Idempotency{}, "ux_idem_scope_key") {
		t.Fatalf("expected ux_idem_scope_key on idempotency")
	}

	// The ledger key rejects a second row for the same (issue, user).
	sub := Subject{Name: "Go", Slug: "go"}
	db.Create(&sub)
	topic := Topic{SubjectID: sub.ID, SequenceNumber: 1, Title: "t"}
	db.Create(&topic)
	issue := Issue{TopicID: topic.ID, Title: "i", Status: IssueDraft}
	if err := db.Create(&issue).Error; err != nil {
		t.Fatalf("create issue: %v", err)
	}
	d1 := Delivery{ID: uuid.NewString(), IssueID: issue.ID, UserID: uuid.NewString(), Status: DeliveryPending}
	if err := db.Create(&d1).Error; err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	d2 := Delivery{ID: uuid.NewString(), IssueID: issue.ID, UserID: d1.UserID, Status: DeliveryPending}
	if err := db.Create(&d2).Error; err == nil {
		t.Fatalf("expected unique violation for duplicate (issue,user)")
	}
}

func TestIssueContent_JSONRoundTrip(t *testing.T) {
	db := newDomainDB(t)

	sub := Subject{Name: "Go", Slug: "go"}
	db.Create(&sub)
	topic := Topic{SubjectID: sub.ID, SequenceNumber: 1, Title: "Generics", Data: datatypes.JSON(`{"k":"v"}`)}
	if err := db.Create(&topic).Error; err != nil {
		t.Fatalf("create topic: %v", err)
	}

	empty := Issue{TopicID: topic.ID, Title: "pending", Status: IssueGenerating}
	if err := db.Create(&empty).Error; err != nil {
		t.Fatalf("create empty issue: %v", err)
	}
	full := Issue{
		TopicID: topic.ID,
		Title:   "ready",
		Status:  IssueDraft,
		Content: datatypes.NewJSONType(&IssueContent{Subject: "Hello", HTML: "<p>hi</p>", Text: "hi"}),
	}
	if err := db.Create(&full).Error; err != nil {
		t.Fatalf("create full issue: %v", err)
	}

	var gotEmpty, gotFull Issue
	if err := db.First(&gotEmpty, empty.ID).Error; err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if err := db.First(&gotFull, full.ID).Error; err != nil {
		t.Fatalf("load full: %v", err)
	}
	if gotEmpty.HasContent() {
		t.Fatalf("issue without content reported HasContent")
	}
	if !gotFull.HasContent() {
		t.Fatalf("issue with content reported no content")
	}
	if c := gotFull.Content.Data(); c.Subject != "Hello" || c.HTML != "<p>hi</p>" {
		t.Fatalf("content mismatch: %+v", c)
	}
}

func TestIssue_HasContent_Whitespace(t *testing.T) {
	var nilIssue *Issue
	if nilIssue.HasContent() {
		t.Fatalf("nil issue must not have content")
	}
	blank := &Issue{Content: datatypes.NewJSONType(&IssueContent{HTML: "  ", Text: "\n"})}
	if blank.HasContent() {
		t.Fatalf("whitespace-only content must not count")
	}
	textOnly := &Issue{Content: datatypes.NewJSONType(&IssueContent{Text: "plain"})}
	if !textOnly.HasContent() {
		t.Fatalf("text-only content must count")
	}
}

func TestSubscriptionAudit_Snapshots(t *testing.T) {
	db := newDomainDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	s := &Subscription{ID: uuid.NewString(), UserID: uuid.NewString(), SubjectID: 1, Status: SubscriptionActive, ActivatedAt: &now}
	a := SubscriptionAudit{
		ID:             uuid.NewString(),
		SubscriptionID: s.ID,
		UserID:         s.UserID,
		SubjectID:      s.SubjectID,
		Reason:         ReasonSystemMigration,
		After:          datatypes.NewJSONType(s.Snapshot()),
	}
	if err := db.Create(&a).Error; err != nil {
		t.Fatalf("create audit: %v", err)
	}

	var got SubscriptionAudit
	if err := db.First(&got, "id = ?", a.ID).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if got.Before.Data() != nil {
		t.Fatalf("before snapshot should be null for creations, got %+v", got.Before.Data())
	}
	after := got.After.Data()
	if after == nil || after.Status != SubscriptionActive || after.ActivatedAt == nil {
		t.Fatalf("after snapshot mismatch: %+v", after)
	}
}

func TestDeliveryStatus_Succeeded(t *testing.T) {
	for _, s := range []DeliveryStatus{DeliverySent, DeliveryDelivered} {
		if !s.Succeeded() {
			t.Fatalf("%s should count as success", s)
		}
	}
	for _, s := range []DeliveryStatus{DeliveryPending, DeliveryFailed, DeliveryBounced} {
		if s.Succeeded() {
			t.Fatalf("%s should not count as success", s)
		}
	}
}
