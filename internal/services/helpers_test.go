package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/mailer"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeTransport records every batch and answers per user. Users without an
// entry in status are reported sent; users in drop get no outcome at all.
type fakeTransport struct {
	mu     sync.Mutex
	calls  [][]mailer.Message
	err    error
	status map[string]domain.DeliveryStatus
	drop   map[string]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{status: map[string]domain.DeliveryStatus{}, drop: map[string]bool{}}
}

func (f *fakeTransport) SendBatch(_ context.Context, msgs []mailer.Message) ([]mailer.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgs)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]mailer.Outcome, 0, len(msgs))
	for _, m := range msgs {
		if f.drop[m.UserID] {
			continue
		}
		st := domain.DeliverySent
		if s, ok := f.status[m.UserID]; ok {
			st = s
		}
		o := mailer.Outcome{UserID: m.UserID, Status: st, ExternalID: "ext-" + m.UserID}
		if !st.Succeeded() {
			o.Error = "rejected by provider"
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		for _, m := range c {
			out = append(out, m.UserID)
		}
	}
	return out
}

func sampleContent() *domain.IssueContent {
	return &domain.IssueContent{Subject: "This week in Go", HTML: "<html><body><p>hi</p></body></html>", Text: "hi"}
}

// fixture is one subject with a topic at sequence 1, its issue, and a
// sequence counter pointing at 1.
type fixture struct {
	db      *gorm.DB
	tr      *fakeTransport
	disp    *Dispatcher
	send    *SendService
	subs    *SubscriptionService
	subject domain.Subject
	topic   domain.Topic
	issue   domain.Issue
}

func newFixture(t *testing.T, status domain.IssueStatus, withContent bool) *fixture {
	t.Helper()
	db := newSvcDB(t)
	ctx := context.Background()

	subject, err := repo.CreateSubject(ctx, db, "Weekly Go", "weekly-go")
	if err != nil {
		t.Fatalf("subject: %v", err)
	}
	topic, err := repo.CreateTopic(ctx, db, subject.ID, 1, "Channels", nil)
	if err != nil {
		t.Fatalf("topic: %v", err)
	}
	issue := domain.Issue{TopicID: topic.ID, Title: "Channels explained", Status: status}
	if withContent {
		issue.Content = datatypes.NewJSONType(sampleContent())
	}
	if err := db.Create(&issue).Error; err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := repo.EnsureSequence(ctx, db, subject.ID, 1); err != nil {
		t.Fatalf("sequence: %v", err)
	}

	tr := newFakeTransport()
	disp := &Dispatcher{DB: db, Transport: tr, Renderer: mailer.Renderer{BaseURL: "https://news.example.com"}}
	send := NewSendService(db, disp, "admin@example.com")
	send.BatchSize = 2

	return &fixture{
		db:      db,
		tr:      tr,
		disp:    disp,
		send:    send,
		subs:    NewSubscriptionService(db, nil),
		subject: *subject,
		topic:   *topic,
		issue:   issue,
	}
}

// addUsers creates n users; when subscribe is true each gets an active
// subscription to the fixture's subject.
func (f *fixture) addUsers(t *testing.T, n int, subscribe bool) []domain.User {
	t.Helper()
	ctx := context.Background()
	out := make([]domain.User, 0, n)
	for i := 0; i < n; i++ {
		u, err := repo.CreateUser(ctx, f.db, fmt.Sprintf("reader%d-%s@example.com", i, uuid.NewString()[:6]), "")
		if err != nil {
			t.Fatalf("user: %v", err)
		}
		out = append(out, *u)
	}
	if subscribe {
		ids := make([]string, len(out))
		for i, u := range out {
			ids[i] = u.ID
		}
		if _, err := repo.InsertActiveSubscriptions(ctx, f.db, f.subject.ID, ids); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	return out
}

func (f *fixture) reload(t *testing.T) domain.Issue {
	t.Helper()
	var i domain.Issue
	if err := f.db.First(&i, f.issue.ID).Error; err != nil {
		t.Fatalf("reload issue: %v", err)
	}
	return i
}

func (f *fixture) delivery(t *testing.T, userID string) domain.Delivery {
	t.Helper()
	d, err := repo.GetDelivery(context.Background(), f.db, f.issue.ID, userID)
	if err != nil {
		t.Fatalf("delivery for %s: %v", userID, err)
	}
	return *d
}
