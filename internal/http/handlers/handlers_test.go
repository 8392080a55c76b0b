package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
	"github.com/tbourn/go-newsletter-backend/internal/services"
)

//
// Fakes
//

type fakeIssueSvc struct {
	issue *domain.Issue
	items []domain.Issue
	total int64
	err   error

	gotStatus   domain.IssueStatus
	gotPage     int
	gotPageSize int
	gotContent  *domain.IssueContent
	gotTitle    string
}

func (f *fakeIssueSvc) Get(_ context.Context, id uint) (*domain.Issue, error) {
	return f.result(id)
}

func (f *fakeIssueSvc) ListPage(_ context.Context, status domain.IssueStatus, page, pageSize int) ([]domain.Issue, int64, error) {
	f.gotStatus, f.gotPage, f.gotPageSize = status, page, pageSize
	return f.items, f.total, f.err
}

func (f *fakeIssueSvc) Approve(_ context.Context, id uint) (*domain.Issue, error) {
	return f.result(id)
}

func (f *fakeIssueSvc) Unapprove(_ context.Context, id uint) (*domain.Issue, error) {
	return f.result(id)
}

func (f *fakeIssueSvc) UpdateContent(_ context.Context, id uint, title string, content *domain.IssueContent) (*domain.Issue, error) {
	f.gotTitle, f.gotContent = title, content
	return f.result(id)
}

func (f *fakeIssueSvc) Generate(_ context.Context, topicID uint) (*domain.Issue, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Issue{ID: 99, TopicID: topicID, Status: domain.IssueDraft}, nil
}

func (f *fakeIssueSvc) Regenerate(_ context.Context, id uint) (*domain.Issue, error) {
	return f.result(id)
}

func (f *fakeIssueSvc) result(id uint) (*domain.Issue, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.issue != nil {
		return f.issue, nil
	}
	return &domain.Issue{ID: id, Status: domain.IssueDraft}, nil
}

type fakeSendSvc struct {
	batch     services.BatchResult
	broadcast services.BroadcastResult
	resend    services.ResendResult
	failed    []string
	metrics   []repo.IssueMetrics
	results   []domain.NewsletterSendResult
	counts    map[domain.DeliveryStatus]int64
	total     int64
	err       error

	gotTopic uint
	gotSeq   int
	gotLimit int
}

func (f *fakeSendSvc) SendToAdmin(_ context.Context, topicID uint, seq int) (services.BatchResult, error) {
	f.gotTopic, f.gotSeq = topicID, seq
	return f.batch, f.err
}

func (f *fakeSendSvc) SendToAllSubscribers(_ context.Context, subjectID uint) services.BroadcastResult {
	r := f.broadcast
	r.SubjectID = subjectID
	return r
}

func (f *fakeSendSvc) ResendToFailedUsers(context.Context, uint) (services.ResendResult, error) {
	return f.resend, f.err
}

func (f *fakeSendSvc) FailedUserIDs(context.Context, uint) ([]string, error) {
	return f.failed, f.err
}

func (f *fakeSendSvc) DeliveryCounts(context.Context, uint) (map[domain.DeliveryStatus]int64, error) {
	return f.counts, f.err
}

func (f *fakeSendSvc) RecentMetrics(_ context.Context, limit int) ([]repo.IssueMetrics, error) {
	f.gotLimit = limit
	return f.metrics, f.err
}

func (f *fakeSendSvc) ListSendResults(context.Context, int, int) ([]domain.NewsletterSendResult, int64, error) {
	return f.results, f.total, f.err
}

type fakeSubSvc struct {
	sub     *domain.Subscription
	created []domain.Subscription
	count   int64
	audits  []domain.SubscriptionAudit
	err     error

	signupNew  bool
	gotUser    string
	gotSubject uint
	gotIDs     []string
	gotEmail   string
	gotName    string
	gotOp      string
}

func (f *fakeSubSvc) Signup(_ context.Context, email, name string, subjectID uint) (*domain.Subscription, bool, error) {
	f.gotEmail, f.gotName, f.gotSubject = email, name, subjectID
	if f.err != nil {
		return nil, false, f.err
	}
	return &domain.Subscription{SubjectID: subjectID, Status: domain.SubscriptionActive}, f.signupNew, nil
}

func (f *fakeSubSvc) EnsureSubscriptionExists(_ context.Context, userID string, subjectID uint) (*domain.Subscription, error) {
	return f.record("ensure", userID, subjectID, domain.SubscriptionActive)
}

func (f *fakeSubSvc) Pause(_ context.Context, userID string, subjectID uint) (*domain.Subscription, error) {
	return f.record("pause", userID, subjectID, domain.SubscriptionPaused)
}

func (f *fakeSubSvc) Reactivate(_ context.Context, userID string, subjectID uint) (*domain.Subscription, error) {
	return f.record("reactivate", userID, subjectID, domain.SubscriptionActive)
}

func (f *fakeSubSvc) record(op, userID string, subjectID uint, status domain.SubscriptionStatus) (*domain.Subscription, error) {
	f.gotOp, f.gotUser, f.gotSubject = op, userID, subjectID
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Subscription{UserID: userID, SubjectID: subjectID, Status: status}, nil
}

func (f *fakeSubSvc) Unsubscribe(_ context.Context, userID string, subjectID uint) (*domain.Subscription, error) {
	f.gotUser, f.gotSubject = userID, subjectID
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Subscription{UserID: userID, SubjectID: subjectID, Status: domain.SubscriptionCancelled}, nil
}

func (f *fakeSubSvc) BulkCreateSubscription(_ context.Context, userIDs []string, subjectID uint) ([]domain.Subscription, error) {
	f.gotIDs, f.gotSubject = userIDs, subjectID
	return f.created, f.err
}

func (f *fakeSubSvc) ActiveSubscriberCount(context.Context, uint) (int64, error) {
	return f.count, f.err
}

func (f *fakeSubSvc) ListAudit(context.Context, string) ([]domain.SubscriptionAudit, error) {
	return f.audits, f.err
}

type fakeBounceSvc struct {
	res      services.BounceResult
	err      error
	gotEmail string
	gotIssue uint
}

func (f *fakeBounceSvc) HandleBounce(_ context.Context, email string, issueID uint) (services.BounceResult, error) {
	f.gotEmail, f.gotIssue = email, issueID
	return f.res, f.err
}

type fakeCatalogSvc struct {
	err error

	gotName    string
	gotSlug    string
	gotSubject uint
	gotSeq     int
	gotTitle   string
	gotData    datatypes.JSON
}

func (f *fakeCatalogSvc) CreateSubject(_ context.Context, name, slug string) (*domain.Subject, error) {
	f.gotName, f.gotSlug = name, slug
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Subject{ID: 7, Name: name, Slug: slug}, nil
}

func (f *fakeCatalogSvc) CreateTopic(_ context.Context, subjectID uint, seq int, title string, data datatypes.JSON) (*domain.Topic, error) {
	f.gotSubject, f.gotSeq, f.gotTitle, f.gotData = subjectID, seq, title, data
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Topic{ID: 3, SubjectID: subjectID, SequenceNumber: seq, Title: title}, nil
}

func (f *fakeCatalogSvc) SetSequence(_ context.Context, subjectID uint, seq int) (*domain.SubjectSequence, error) {
	f.gotSubject, f.gotSeq = subjectID, seq
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SubjectSequence{SubjectID: subjectID, CurrentSequence: seq}, nil
}

//
// Harness
//

type harness struct {
	issues  *fakeIssueSvc
	sends   *fakeSendSvc
	subs    *fakeSubSvc
	bounces *fakeBounceSvc
	catalog *fakeCatalogSvc
	r       *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := &harness{
		issues:  &fakeIssueSvc{},
		sends:   &fakeSendSvc{},
		subs:    &fakeSubSvc{},
		bounces: &fakeBounceSvc{},
		catalog: &fakeCatalogSvc{},
	}
	hd := New(h.issues, h.sends, h.subs, h.bounces, h.catalog)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-test")
		c.Next()
	})
	r.POST("/subscribe", hd.Subscribe)
	r.POST("/unsubscribe", hd.Unsubscribe)
	api := r.Group("/api/v1")
	api.POST("/subjects", hd.CreateSubject)
	api.POST("/subjects/:id/topics", hd.CreateTopic)
	api.PUT("/subjects/:id/sequence", hd.SetSequence)
	api.GET("/issues", hd.ListIssues)
	api.GET("/issues/metrics", hd.IssueMetrics)
	api.GET("/issues/:id", hd.GetIssue)
	api.POST("/issues/:id/approve", hd.ApproveIssue)
	api.POST("/issues/:id/unapprove", hd.UnapproveIssue)
	api.POST("/issues/:id/regenerate", hd.RegenerateIssue)
	api.POST("/issues/:id/resend", hd.ResendIssue)
	api.PUT("/issues/:id/content", hd.UpdateIssueContent)
	api.GET("/issues/:id/failed-users", hd.FailedUsers)
	api.GET("/issues/:id/deliveries", hd.DeliveryCounts)
	api.POST("/topics/:id/issues", hd.GenerateIssue)
	api.POST("/topics/:id/send-admin", hd.SendToAdmin)
	api.POST("/subjects/:id/broadcast", hd.Broadcast)
	api.GET("/subjects/:id/subscribers/count", hd.SubscriberCount)
	api.POST("/subjects/:id/subscriptions", hd.BulkSubscribe)
	api.PUT("/subjects/:id/subscriptions/:user_id", hd.EnsureSubscription)
	api.DELETE("/subjects/:id/subscriptions/:user_id", hd.AdminUnsubscribe)
	api.POST("/subjects/:id/subscriptions/:user_id/pause", hd.PauseSubscription)
	api.POST("/subjects/:id/subscriptions/:user_id/reactivate", hd.ReactivateSubscription)
	api.GET("/subscriptions/:id/audit", hd.SubscriptionAudit)
	api.GET("/send-results", hd.ListSendResults)
	api.POST("/bounces", hd.ReportBounce)
	h.r = r
	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("error body not JSON: %v (%s)", err, w.Body.String())
	}
	if er.RequestID != "rid-test" {
		t.Fatalf("request id not echoed: %+v", er)
	}
	return er
}

//
// Error mapping
//

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", services.ErrIssueNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"precondition", services.ErrIssueNoContent, http.StatusConflict, ErrCodePreconditionFailed},
		{"wrapped precondition", fmt.Errorf("%w: issue in status sent cannot be edited", services.ErrPreconditionFailed), http.StatusConflict, ErrCodePreconditionFailed},
		{"validation", services.ErrInvalidUserID, http.StatusBadRequest, ErrCodeBadRequest},
		{"transport", fmt.Errorf("%w: smtp down", services.ErrTransport), http.StatusBadGateway, ErrCodeTransportFailed},
		{"persistence", fmt.Errorf("get issue: %w: %w", services.ErrPersistence, errors.New("disk I/O")), http.StatusInternalServerError, ErrCodeInternal},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.issues.err = tc.err
			w := h.do(http.MethodGet, "/api/v1/issues/1", "")
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			er := decodeErr(t, w)
			if er.Code != tc.code {
				t.Fatalf("code = %q, want %q", er.Code, tc.code)
			}
			if tc.status >= 500 && strings.Contains(er.Message, "disk") {
				t.Fatalf("server error cause leaked: %q", er.Message)
			}
		})
	}
}

func TestApproveIssue_InvalidTransitionCarriesAllowed(t *testing.T) {
	h := newHarness(t)
	h.issues.err = domain.ValidateStatusTransition(domain.IssueGenerating, domain.IssueApproved)

	w := h.do(http.MethodPost, "/api/v1/issues/5/approve", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}
	er := decodeErr(t, w)
	if er.Code != ErrCodeInvalidTransition {
		t.Fatalf("code = %q", er.Code)
	}
	if strings.Join(er.AllowedTransitions, ",") != "draft,failed" {
		t.Fatalf("allowed = %v", er.AllowedTransitions)
	}
}

//
// Issues
//

func TestListIssues_PaginationAndStatus(t *testing.T) {
	h := newHarness(t)
	h.issues.items = []domain.Issue{{ID: 1}, {ID: 2}}
	h.issues.total = 45

	w := h.do(http.MethodGet, "/api/v1/issues?status=Draft&page=2&page_size=20", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if h.issues.gotStatus != domain.IssueDraft || h.issues.gotPage != 2 || h.issues.gotPageSize != 20 {
		t.Fatalf("args: %q %d %d", h.issues.gotStatus, h.issues.gotPage, h.issues.gotPageSize)
	}
	var resp ListIssuesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Issues) != 2 || resp.Pagination.TotalPages != 3 || !resp.Pagination.HasNext {
		t.Fatalf("unexpected page: %+v", resp.Pagination)
	}
}

func TestListIssues_ClampsPageSize(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/api/v1/issues?page=0&page_size=1000", "")
	if h.issues.gotPage != 1 || h.issues.gotPageSize != 100 {
		t.Fatalf("clamp failed: page=%d size=%d", h.issues.gotPage, h.issues.gotPageSize)
	}
}

func TestIssueRoutes_RejectBadIDs(t *testing.T) {
	h := newHarness(t)
	for _, p := range []string{
		"/api/v1/issues/abc",
		"/api/v1/issues/0",
		"/api/v1/issues/-1",
	} {
		w := h.do(http.MethodGet, p, "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s -> %d", p, w.Code)
		}
		if er := decodeErr(t, w); er.Code != ErrCodeBadRequest {
			t.Fatalf("%s code = %q", p, er.Code)
		}
	}
}

func TestUpdateIssueContent(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPut, "/api/v1/issues/3/content", `{"title":"New","subject":" Hi ","html":"<p>x</p>"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if h.issues.gotTitle != "New" || h.issues.gotContent.Subject != "Hi" || h.issues.gotContent.HTML != "<p>x</p>" {
		t.Fatalf("content not forwarded: %q %+v", h.issues.gotTitle, h.issues.gotContent)
	}

	w = h.do(http.MethodPut, "/api/v1/issues/3/content", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json -> %d", w.Code)
	}

	h.issues.err = services.ErrEmptyContent
	w = h.do(http.MethodPut, "/api/v1/issues/3/content", `{"html":"  "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty content -> %d", w.Code)
	}
}

func TestGenerateIssue_Created(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/api/v1/topics/7/issues", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	var issue domain.Issue
	if err := json.Unmarshal(w.Body.Bytes(), &issue); err != nil {
		t.Fatalf("json: %v", err)
	}
	if issue.TopicID != 7 {
		t.Fatalf("topic id = %d", issue.TopicID)
	}

	h.issues.err = services.ErrNoGenerator
	if w := h.do(http.MethodPost, "/api/v1/topics/7/issues", ""); w.Code != http.StatusConflict {
		t.Fatalf("no generator -> %d", w.Code)
	}
}

func TestUnapproveAndRegenerate(t *testing.T) {
	h := newHarness(t)
	h.issues.issue = &domain.Issue{ID: 4, Status: domain.IssueDraft}
	if w := h.do(http.MethodPost, "/api/v1/issues/4/unapprove", ""); w.Code != http.StatusOK {
		t.Fatalf("unapprove -> %d", w.Code)
	}
	h.issues.issue = &domain.Issue{ID: 4, Status: domain.IssueFailed, GenerationError: "timeout"}
	w := h.do(http.MethodPost, "/api/v1/issues/4/regenerate", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"generation_error":"timeout"`) {
		t.Fatalf("regenerate -> %d %s", w.Code, w.Body.String())
	}
}

//
// Sends
//

func TestSendToAdmin(t *testing.T) {
	h := newHarness(t)
	h.sends.batch = services.BatchResult{TotalSent: 1}

	w := h.do(http.MethodPost, "/api/v1/topics/3/send-admin?sequence=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if h.sends.gotTopic != 3 || h.sends.gotSeq != 5 {
		t.Fatalf("args: topic=%d seq=%d", h.sends.gotTopic, h.sends.gotSeq)
	}
	var resp SendAdminResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.TotalSent != 1 || resp.Sequence != 5 {
		t.Fatalf("resp = %+v", resp)
	}

	h.do(http.MethodPost, "/api/v1/topics/3/send-admin", "")
	if h.sends.gotSeq != 0 {
		t.Fatalf("missing sequence should default to 0, got %d", h.sends.gotSeq)
	}

	if w := h.do(http.MethodPost, "/api/v1/topics/3/send-admin?sequence=x", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad sequence -> %d", w.Code)
	}

	h.sends.err = fmt.Errorf("%w: admin preview was not delivered", services.ErrTransport)
	if w := h.do(http.MethodPost, "/api/v1/topics/3/send-admin", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("transport failure -> %d", w.Code)
	}
}

func TestBroadcast_SuccessAndFailure(t *testing.T) {
	h := newHarness(t)
	h.sends.broadcast = services.BroadcastResult{Success: true, SequenceNumber: 2, TotalSent: 10, FailedUserIDs: []string{}}

	w := h.do(http.MethodPost, "/api/v1/subjects/1/broadcast", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res services.BroadcastResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Success || res.SubjectID != 1 || res.TotalSent != 10 {
		t.Fatalf("res = %+v", res)
	}

	h.sends.broadcast = services.BroadcastResult{Success: false, Error: "issue is not approved", FailedUserIDs: []string{}}
	w = h.do(http.MethodPost, "/api/v1/subjects/1/broadcast", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("failed broadcast -> %d", w.Code)
	}
	res = services.BroadcastResult{}
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Success || res.Error == "" || res.SequenceNumber != 0 {
		t.Fatalf("res = %+v", res)
	}
}

func TestResendAndReporting(t *testing.T) {
	h := newHarness(t)
	h.sends.resend = services.ResendResult{TotalSent: 2, ResendCount: 2, FailedUserIDs: []string{}}
	h.sends.failed = []string{"u1", "u2"}
	h.sends.metrics = []repo.IssueMetrics{{IssueID: 1, Total: 4, Sent: 3, SuccessRate: 0.75}}
	h.sends.results = []domain.NewsletterSendResult{{ID: "r1"}}
	h.sends.total = 1

	if w := h.do(http.MethodPost, "/api/v1/issues/1/resend", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"resend_count":2`) {
		t.Fatalf("resend -> %d %s", w.Code, w.Body.String())
	}
	if w := h.do(http.MethodGet, "/api/v1/issues/1/failed-users", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"user_ids":["u1","u2"]`) {
		t.Fatalf("failed-users -> %d %s", w.Code, w.Body.String())
	}
	if w := h.do(http.MethodGet, "/api/v1/issues/metrics?limit=500", ""); w.Code != http.StatusOK || h.sends.gotLimit != 100 {
		t.Fatalf("metrics -> %d limit=%d", w.Code, h.sends.gotLimit)
	}
	if w := h.do(http.MethodGet, "/api/v1/send-results", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total":1`) {
		t.Fatalf("send-results -> %d %s", w.Code, w.Body.String())
	}

	h.sends.err = services.ErrIssueNotSent
	if w := h.do(http.MethodPost, "/api/v1/issues/1/resend", ""); w.Code != http.StatusConflict {
		t.Fatalf("resend unsent -> %d", w.Code)
	}
}

//
// Subscriptions
//

func TestUnsubscribe_OneClick(t *testing.T) {
	h := newHarness(t)
	uid := "141add05-4415-4938-b5a1-17e0d3171aff"

	req := httptest.NewRequest(http.MethodPost, "/unsubscribe?user="+uid+"&subject=3",
		strings.NewReader("List-Unsubscribe=One-Click"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if h.subs.gotUser != uid || h.subs.gotSubject != 3 {
		t.Fatalf("args: %q %d", h.subs.gotUser, h.subs.gotSubject)
	}
	if !strings.Contains(w.Body.String(), `"status":"cancelled"`) {
		t.Fatalf("body = %s", w.Body.String())
	}

	for _, q := range []string{"", "?user=" + uid, "?subject=3", "?user=" + uid + "&subject=zero"} {
		if w := h.do(http.MethodPost, "/unsubscribe"+q, ""); w.Code != http.StatusBadRequest {
			t.Fatalf("%q -> %d", q, w.Code)
		}
	}

	h.subs.err = services.ErrSubscriptionNotFound
	if w := h.do(http.MethodPost, "/unsubscribe?user="+uid+"&subject=3", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown subscription -> %d", w.Code)
	}
}

func TestBulkSubscribe(t *testing.T) {
	h := newHarness(t)
	h.subs.created = []domain.Subscription{{ID: "s1"}}

	w := h.do(http.MethodPost, "/api/v1/subjects/2/subscriptions", `{"user_ids":["a","b"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if h.subs.gotSubject != 2 || len(h.subs.gotIDs) != 2 {
		t.Fatalf("args: %d %v", h.subs.gotSubject, h.subs.gotIDs)
	}

	if w := h.do(http.MethodPost, "/api/v1/subjects/2/subscriptions", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing ids -> %d", w.Code)
	}

	h.subs.err = services.ErrSubjectNotFound
	if w := h.do(http.MethodPost, "/api/v1/subjects/2/subscriptions", `{"user_ids":["a"]}`); w.Code != http.StatusNotFound {
		t.Fatalf("unknown subject -> %d", w.Code)
	}
}

func TestSubscriberCountAuditAndAdminUnsubscribe(t *testing.T) {
	h := newHarness(t)
	h.subs.count = 12
	h.subs.audits = []domain.SubscriptionAudit{{ID: "a1", Reason: domain.ReasonUserSignup}}

	if w := h.do(http.MethodGet, "/api/v1/subjects/4/subscribers/count", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"active":12`) {
		t.Fatalf("count -> %d %s", w.Code, w.Body.String())
	}
	if w := h.do(http.MethodGet, "/api/v1/subscriptions/sub-1/audit", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"reason":"user_signup"`) {
		t.Fatalf("audit -> %d %s", w.Code, w.Body.String())
	}
	if w := h.do(http.MethodDelete, "/api/v1/subjects/4/subscriptions/u-9", ""); w.Code != http.StatusOK || h.subs.gotUser != "u-9" {
		t.Fatalf("admin unsubscribe -> %d user=%q", w.Code, h.subs.gotUser)
	}
}

func TestReportBounce(t *testing.T) {
	h := newHarness(t)
	h.bounces.res = services.BounceResult{Email: "a@b.com", CancelledSubscriptions: 2, DeliveryBounced: true}

	w := h.do(http.MethodPost, "/api/v1/bounces", `{"email":"A@B.com","issue_id":9}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if h.bounces.gotEmail != "A@B.com" || h.bounces.gotIssue != 9 {
		t.Fatalf("args: %q %d", h.bounces.gotEmail, h.bounces.gotIssue)
	}

	if w := h.do(http.MethodPost, "/api/v1/bounces", `{"issue_id":9}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing email -> %d", w.Code)
	}

	h.bounces.err = fmt.Errorf("%w: %q", services.ErrInvalidEmail, "nope")
	if w := h.do(http.MethodPost, "/api/v1/bounces", `{"email":"nope"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid email -> %d", w.Code)
	}
}

//
// Catalog and reader endpoints
//

func TestCatalogRoutes(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/v1/subjects", `{"name":"Go Weekly","slug":"go-weekly"}`)
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"slug":"go-weekly"`) {
		t.Fatalf("create subject -> %d %s", w.Code, w.Body.String())
	}
	if w := h.do(http.MethodPost, "/api/v1/subjects", `{"name":"x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing slug -> %d", w.Code)
	}

	w = h.do(http.MethodPost, "/api/v1/subjects/7/topics", `{"sequence_number":2,"title":"Select","data":{"level":"intro"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create topic -> %d %s", w.Code, w.Body.String())
	}
	if h.catalog.gotSubject != 7 || h.catalog.gotSeq != 2 || !strings.Contains(string(h.catalog.gotData), `"intro"`) {
		t.Fatalf("topic args: %d %d %s", h.catalog.gotSubject, h.catalog.gotSeq, h.catalog.gotData)
	}
	h.do(http.MethodPost, "/api/v1/subjects/7/topics", `{"sequence_number":3,"title":"Plain","data":null}`)
	if h.catalog.gotData != nil {
		t.Fatalf("null data must not reach the service: %s", h.catalog.gotData)
	}
	if w := h.do(http.MethodPost, "/api/v1/subjects/7/topics", `{"sequence_number":0,"title":"Zero"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("zero sequence -> %d", w.Code)
	}

	w = h.do(http.MethodPut, "/api/v1/subjects/7/sequence", `{"sequence_number":4}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"current_sequence":4`) {
		t.Fatalf("set sequence -> %d %s", w.Code, w.Body.String())
	}

	h.catalog.err = services.ErrSubjectExists
	w = h.do(http.MethodPost, "/api/v1/subjects", `{"name":"Go Weekly","slug":"go-weekly"}`)
	if w.Code != http.StatusConflict || decodeErr(t, w).Code != ErrCodePreconditionFailed {
		t.Fatalf("taken slug -> %d %s", w.Code, w.Body.String())
	}
	h.catalog.err = services.ErrSubjectNotFound
	if w := h.do(http.MethodPut, "/api/v1/subjects/9/sequence", `{"sequence_number":1}`); w.Code != http.StatusNotFound {
		t.Fatalf("unknown subject -> %d", w.Code)
	}
}

func TestSubscribe_Signup(t *testing.T) {
	h := newHarness(t)

	h.subs.signupNew = true
	w := h.do(http.MethodPost, "/subscribe", `{"email":"Reader@Example.com","name":"Ada","subject_id":3}`)
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"created":true`) {
		t.Fatalf("first signup -> %d %s", w.Code, w.Body.String())
	}
	if h.subs.gotEmail != "Reader@Example.com" || h.subs.gotName != "Ada" || h.subs.gotSubject != 3 {
		t.Fatalf("args: %q %q %d", h.subs.gotEmail, h.subs.gotName, h.subs.gotSubject)
	}

	h.subs.signupNew = false
	if w := h.do(http.MethodPost, "/subscribe", `{"email":"reader@example.com","subject_id":3}`); w.Code != http.StatusOK {
		t.Fatalf("repeat signup -> %d", w.Code)
	}
	if w := h.do(http.MethodPost, "/subscribe", `{"email":"reader@example.com"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing subject -> %d", w.Code)
	}

	h.subs.err = fmt.Errorf("%w: %q", services.ErrInvalidEmail, "nope")
	if w := h.do(http.MethodPost, "/subscribe", `{"email":"nope","subject_id":3}`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid email -> %d", w.Code)
	}
}

func TestAdminSubscriptionStatusRoutes(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		method, path, op string
		status           domain.SubscriptionStatus
	}{
		{http.MethodPut, "/api/v1/subjects/4/subscriptions/u-1", "ensure", domain.SubscriptionActive},
		{http.MethodPost, "/api/v1/subjects/4/subscriptions/u-1/pause", "pause", domain.SubscriptionPaused},
		{http.MethodPost, "/api/v1/subjects/4/subscriptions/u-1/reactivate", "reactivate", domain.SubscriptionActive},
	}
	for _, tc := range cases {
		w := h.do(tc.method, tc.path, "")
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"`+string(tc.status)+`"`) {
			t.Fatalf("%s -> %d %s", tc.path, w.Code, w.Body.String())
		}
		if h.subs.gotOp != tc.op || h.subs.gotUser != "u-1" || h.subs.gotSubject != 4 {
			t.Fatalf("%s called %q(%q, %d)", tc.path, h.subs.gotOp, h.subs.gotUser, h.subs.gotSubject)
		}
	}

	h.subs.err = services.ErrSubscriptionChanged
	if w := h.do(http.MethodPost, "/api/v1/subjects/4/subscriptions/u-1/pause", ""); w.Code != http.StatusConflict {
		t.Fatalf("concurrent change -> %d", w.Code)
	}
	if w := h.do(http.MethodPost, "/api/v1/subjects/x/subscriptions/u-1/pause", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad subject id -> %d", w.Code)
	}
}

func TestDeliveryCounts(t *testing.T) {
	h := newHarness(t)
	h.sends.counts = map[domain.DeliveryStatus]int64{domain.DeliverySent: 5, domain.DeliveryFailed: 2, domain.DeliveryPending: 0}

	w := h.do(http.MethodGet, "/api/v1/issues/8/deliveries", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got DeliveryCountsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.IssueID != 8 || got.Total != 7 || got.Counts[domain.DeliveryFailed] != 2 {
		t.Fatalf("unexpected body %+v", got)
	}

	h.sends.err = services.ErrIssueNotFound
	if w := h.do(http.MethodGet, "/api/v1/issues/8/deliveries", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing issue -> %d", w.Code)
	}
}
