// Package handlers exposes the admin REST API and the public signup and
// one-click unsubscribe endpoints.
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results and service errors into HTTP responses.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
	"github.com/tbourn/go-newsletter-backend/internal/services"
	"github.com/tbourn/go-newsletter-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// IssueService covers issue review and generation.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type IssueService interface {
	Get(ctx context.Context, id uint) (*domain.Issue, error)
	ListPage(ctx context.Context, status domain.IssueStatus, page, pageSize int) ([]domain.Issue, int64, error)
	Approve(ctx context.Context, id uint) (*domain.Issue, error)
	Unapprove(ctx context.Context, id uint) (*domain.Issue, error)
	UpdateContent(ctx context.Context, id uint, title string, content *domain.IssueContent) (*domain.Issue, error)
	Generate(ctx context.Context, topicID uint) (*domain.Issue, error)
	Regenerate(ctx context.Context, id uint) (*domain.Issue, error)
}

// SendService covers previews, broadcasts, resends, and delivery reporting.
type SendService interface {
	SendToAdmin(ctx context.Context, topicID uint, seq int) (services.BatchResult, error)
	SendToAllSubscribers(ctx context.Context, subjectID uint) services.BroadcastResult
	ResendToFailedUsers(ctx context.Context, issueID uint) (services.ResendResult, error)
	FailedUserIDs(ctx context.Context, issueID uint) ([]string, error)
	DeliveryCounts(ctx context.Context, issueID uint) (map[domain.DeliveryStatus]int64, error)
	RecentMetrics(ctx context.Context, limit int) ([]repo.IssueMetrics, error)
	ListSendResults(ctx context.Context, page, pageSize int) ([]domain.NewsletterSendResult, int64, error)
}

// SubscriptionService covers audited subscription changes and counts.
type SubscriptionService interface {
	Signup(ctx context.Context, email, name string, subjectID uint) (*domain.Subscription, bool, error)
	EnsureSubscriptionExists(ctx context.Context, userID string, subjectID uint) (*domain.Subscription, error)
	Unsubscribe(ctx context.Context, userID string, subjectID uint) (*domain.Subscription, error)
	Pause(ctx context.Context, userID string, subjectID uint) (*domain.Subscription, error)
	Reactivate(ctx context.Context, userID string, subjectID uint) (*domain.Subscription, error)
	BulkCreateSubscription(ctx context.Context, userIDs []string, subjectID uint) ([]domain.Subscription, error)
	ActiveSubscriberCount(ctx context.Context, subjectID uint) (int64, error)
	ListAudit(ctx context.Context, subscriptionID string) ([]domain.SubscriptionAudit, error)
}

// BounceService cancels subscriptions of undeliverable addresses.
type BounceService interface {
	HandleBounce(ctx context.Context, email string, issueID uint) (services.BounceResult, error)
}

// CatalogService creates subjects and topics and moves sequence counters.
type CatalogService interface {
	CreateSubject(ctx context.Context, name, slug string) (*domain.Subject, error)
	CreateTopic(ctx context.Context, subjectID uint, seq int, title string, data datatypes.JSON) (*domain.Topic, error)
	SetSequence(ctx context.Context, subjectID uint, seq int) (*domain.SubjectSequence, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	issueSvc  IssueService
	sendSvc   SendService
	subSvc    SubscriptionService
	bounceSvc BounceService
	catalog   CatalogService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(issueSvc IssueService, sendSvc SendService, subSvc SubscriptionService, bounceSvc BounceService, catalog CatalogService) *Handlers {
	return &Handlers{issueSvc: issueSvc, sendSvc: sendSvc, subSvc: subSvc, bounceSvc: bounceSvc, catalog: catalog}
}

//
// Shared DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	pages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: pages,
		HasNext:    page < pages,
	}
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// pathID reads a numeric path parameter. On failure it writes a 400 and
// reports false.
func pathID(c *gin.Context, name, what string) (uint, bool) {
	id, ok := utils.ParseID(c.Param(name))
	if !ok {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, what+" id must be a positive integer")
	}
	return id, ok
}
