// Package services – IssueService
//
// This file implements the issue lifecycle operations that sit around the
// send path: listing, approval, content edits, and generation. Every status
// write is checked against the state machine first and then applied with a
// conditional update on the current status, so two concurrent reviewers
// cannot both win.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// IssueService manages issue review and generation.
type IssueService struct {
	DB        *gorm.DB
	Generator ContentGenerator

	// AutoApproveDrafts approves freshly generated drafts without review.
	AutoApproveDrafts bool
}

// Get returns one issue.
func (s *IssueService) Get(ctx context.Context, id uint) (*domain.Issue, error) {
	issue, err := repo.GetIssue(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrIssueNotFound
		}
		return nil, persistence("get issue", err)
	}
	return issue, nil
}

// ListPage returns a page of issues, newest first, optionally filtered by
// status, with the total count.
func (s *IssueService) ListPage(ctx context.Context, status domain.IssueStatus, page, pageSize int) ([]domain.Issue, int64, error) {
	tr := otel.Tracer("services/IssueService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("status", string(status)),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	total, err := repo.CountIssues(ctx, s.DB, status)
	if err != nil {
		return nil, 0, persistence("count issues", err)
	}
	if total == 0 {
		return []domain.Issue{}, 0, nil
	}
	items, err := repo.ListIssuesPage(ctx, s.DB, status, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, persistence("list issues", err)
	}
	return items, total, nil
}

// Approve moves a draft with content to approved and stamps approved_at.
func (s *IssueService) Approve(ctx context.Context, id uint) (*domain.Issue, error) {
	return s.approve(ctx, id, domain.CanApprove, "Approve")
}

// AutoApprove is Approve for automated flows, gated by its own predicate.
func (s *IssueService) AutoApprove(ctx context.Context, id uint) (*domain.Issue, error) {
	return s.approve(ctx, id, domain.CanAutoApprove, "AutoApprove")
}

func (s *IssueService) approve(ctx context.Context, id uint, allowed func(domain.IssueStatus) bool, op string) (*domain.Issue, error) {
	tr := otel.Tracer("services/IssueService")
	ctx, span := tr.Start(ctx, op, trace.WithAttributes(attribute.Int64("issue.id", int64(id))))
	defer span.End()

	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateStatusTransition(issue.Status, domain.IssueApproved); err != nil {
		return nil, err
	}
	if !allowed(issue.Status) {
		return nil, fmt.Errorf("%w (status %s)", ErrPreconditionFailed, issue.Status)
	}
	if !issue.HasContent() {
		return nil, ErrIssueNoContent
	}
	now := time.Now().UTC()
	if err := s.move(ctx, s.DB, issue, domain.IssueApproved, map[string]any{"approved_at": now}); err != nil {
		return nil, err
	}
	issue.ApprovedAt = &now
	return issue, nil
}

// Unapprove returns an approved issue to draft. approved_at is kept.
func (s *IssueService) Unapprove(ctx context.Context, id uint) (*domain.Issue, error) {
	tr := otel.Tracer("services/IssueService")
	ctx, span := tr.Start(ctx, "Unapprove", trace.WithAttributes(attribute.Int64("issue.id", int64(id))))
	defer span.End()

	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateStatusTransition(issue.Status, domain.IssueDraft); err != nil {
		return nil, err
	}
	if !domain.CanUnapprove(issue.Status) {
		return nil, fmt.Errorf("%w (status %s)", ErrPreconditionFailed, issue.Status)
	}
	if err := s.move(ctx, s.DB, issue, domain.IssueDraft, nil); err != nil {
		return nil, err
	}
	return issue, nil
}

// UpdateContent replaces the body of an editable issue. Editing a failed
// issue counts as a manual generation: it passes through generating and
// lands in draft.
func (s *IssueService) UpdateContent(ctx context.Context, id uint, title string, content *domain.IssueContent) (*domain.Issue, error) {
	tr := otel.Tracer("services/IssueService")
	ctx, span := tr.Start(ctx, "UpdateContent", trace.WithAttributes(attribute.Int64("issue.id", int64(id))))
	defer span.End()

	if content == nil || (strings.TrimSpace(content.HTML) == "" && strings.TrimSpace(content.Text) == "") {
		return nil, ErrEmptyContent
	}
	title = strings.TrimSpace(title)

	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanEdit(issue.Status) {
		return nil, fmt.Errorf("%w: issue in status %s cannot be edited", ErrPreconditionFailed, issue.Status)
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if issue.Status == domain.IssueFailed {
			if err := s.move(ctx, tx, issue, domain.IssueGenerating, map[string]any{"generation_error": ""}); err != nil {
				return err
			}
			extra := map[string]any{"content": datatypes.NewJSONType(content)}
			if title != "" {
				extra["title"] = title
			}
			return s.move(ctx, tx, issue, domain.IssueDraft, extra)
		}
		if err := repo.UpdateIssueContent(ctx, tx, issue.ID, issue.Status, title, content); err != nil {
			if errors.Is(err, repo.ErrStaleStatus) {
				return ErrIssueChanged
			}
			return persistence("update content", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	issue.Content = datatypes.NewJSONType(content)
	if title != "" {
		issue.Title = title
	}
	issue.GenerationError = ""
	return issue, nil
}

// Generate creates a new issue for topicID and fills it from the content
// generator. The returned issue is draft (or approved with AutoApproveDrafts) on
// success and failed, with generation_error set, when the generator fails.
// A generator failure is recorded on the issue, not returned.
func (s *IssueService) Generate(ctx context.Context, topicID uint) (*domain.Issue, error) {
	tr := otel.Tracer("services/IssueService")
	ctx, span := tr.Start(ctx, "Generate", trace.WithAttributes(attribute.Int64("topic.id", int64(topicID))))
	defer span.End()

	if s.Generator == nil {
		return nil, ErrNoGenerator
	}
	topic, err := repo.GetTopic(ctx, s.DB, topicID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTopicNotFound
		}
		return nil, persistence("get topic", err)
	}
	issue, err := repo.CreateIssue(ctx, s.DB, topic.ID, topic.Title, domain.IssueGenerating)
	if err != nil {
		return nil, persistence("create issue", err)
	}
	return s.runGenerator(ctx, topic, issue)
}

// Regenerate retries generation of a failed issue.
func (s *IssueService) Regenerate(ctx context.Context, id uint) (*domain.Issue, error) {
	tr := otel.Tracer("services/IssueService")
	ctx, span := tr.Start(ctx, "Regenerate", trace.WithAttributes(attribute.Int64("issue.id", int64(id))))
	defer span.End()

	if s.Generator == nil {
		return nil, ErrNoGenerator
	}
	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateStatusTransition(issue.Status, domain.IssueGenerating); err != nil {
		return nil, err
	}
	topic, err := repo.GetTopic(ctx, s.DB, issue.TopicID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTopicNotFound
		}
		return nil, persistence("get topic", err)
	}
	if err := s.move(ctx, s.DB, issue, domain.IssueGenerating, map[string]any{"generation_error": ""}); err != nil {
		return nil, err
	}
	return s.runGenerator(ctx, topic, issue)
}

// runGenerator calls the generator for an issue in generating and records
// the outcome.
func (s *IssueService) runGenerator(ctx context.Context, topic *domain.Topic, issue *domain.Issue) (*domain.Issue, error) {
	content, genErr := s.Generator.Generate(ctx, *topic)
	if genErr == nil && (content == nil || (strings.TrimSpace(content.HTML) == "" && strings.TrimSpace(content.Text) == "")) {
		genErr = errors.New("generator returned empty content")
	}
	if genErr != nil {
		logFrom(ctx).Warn().Err(genErr).Uint("issue_id", issue.ID).Uint("topic_id", topic.ID).Msg("generation failed")
		if err := s.move(ctx, s.DB, issue, domain.IssueFailed, map[string]any{"generation_error": genErr.Error()}); err != nil {
			return nil, err
		}
		issue.GenerationError = genErr.Error()
		return issue, nil
	}

	extra := map[string]any{"content": datatypes.NewJSONType(content)}
	if t := strings.TrimSpace(content.Subject); t != "" {
		extra["title"] = t
		issue.Title = t
	}
	if err := s.move(ctx, s.DB, issue, domain.IssueDraft, extra); err != nil {
		return nil, err
	}
	issue.Content = datatypes.NewJSONType(content)

	if s.AutoApproveDrafts && domain.CanAutoApprove(issue.Status) {
		return s.AutoApprove(ctx, issue.ID)
	}
	return issue, nil
}

// move applies issue.Status -> to with a conditional update and updates
// issue in place on success.
func (s *IssueService) move(ctx context.Context, db *gorm.DB, issue *domain.Issue, to domain.IssueStatus, extra map[string]any) error {
	if err := domain.ValidateStatusTransition(issue.Status, to); err != nil {
		return err
	}
	if err := repo.UpdateIssueStatus(ctx, db, issue.ID, issue.Status, to, extra); err != nil {
		if errors.Is(err, repo.ErrStaleStatus) {
			return ErrIssueChanged
		}
		return persistence("update issue status", err)
	}
	issue.Status = to
	issue.UpdatedAt = time.Now().UTC()
	return nil
}
