// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for subjects,
// topics, and issues.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - When a row is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Conditional status updates return ErrStaleStatus when the row was not
//     in the expected status.
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrStaleStatus is returned by conditional updates of issues and
// subscriptions when the row's status changed underneath the caller.
var ErrStaleStatus = errors.New("status changed concurrently")

// CreateSubject inserts a subject. A taken slug returns ErrDuplicate.
func CreateSubject(ctx context.Context, db *gorm.DB, name, slug string) (*domain.Subject, error) {
	s := &domain.Subject{Name: name, Slug: slug, CreatedAt: time.Now().UTC()}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return s, nil
}

// GetSubject fetches a subject by id.
func GetSubject(ctx context.Context, db *gorm.DB, id uint) (*domain.Subject, error) {
	var s domain.Subject
	if err := db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateTopic inserts a topic at the given position of a subject's sequence.
// A position that already holds a topic returns ErrDuplicate.
func CreateTopic(ctx context.Context, db *gorm.DB, subjectID uint, seq int, title string, data datatypes.JSON) (*domain.Topic, error) {
	t := &domain.Topic{
		SubjectID:      subjectID,
		SequenceNumber: seq,
		Title:          title,
		Data:           data,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return t, nil
}

// GetTopic fetches a topic by id.
func GetTopic(ctx context.Context, db *gorm.DB, id uint) (*domain.Topic, error) {
	var t domain.Topic
	if err := db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTopicBySequence returns the topic at position seq within subjectID.
func GetTopicBySequence(ctx context.Context, db *gorm.DB, subjectID uint, seq int) (*domain.Topic, error) {
	var t domain.Topic
	err := db.WithContext(ctx).
		Where("subject_id = ? AND sequence_number = ?", subjectID, seq).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateIssue inserts an issue for topicID in the given status.
func CreateIssue(ctx context.Context, db *gorm.DB, topicID uint, title string, status domain.IssueStatus) (*domain.Issue, error) {
	now := time.Now().UTC()
	i := &domain.Issue{
		TopicID:   topicID,
		Title:     title,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(i).Error; err != nil {
		return nil, err
	}
	return i, nil
}

// GetIssue fetches an issue by id.
func GetIssue(ctx context.Context, db *gorm.DB, id uint) (*domain.Issue, error) {
	var i domain.Issue
	if err := db.WithContext(ctx).First(&i, id).Error; err != nil {
		return nil, err
	}
	return &i, nil
}

// GetLatestIssueForTopic returns the most recently created issue of topicID.
func GetLatestIssueForTopic(ctx context.Context, db *gorm.DB, topicID uint) (*domain.Issue, error) {
	var i domain.Issue
	err := db.WithContext(ctx).
		Where("topic_id = ?", topicID).
		Order("id DESC").
		First(&i).Error
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// CountIssues returns the number of issues, optionally filtered by status.
func CountIssues(ctx context.Context, db *gorm.DB, status domain.IssueStatus) (int64, error) {
	var total int64
	q := db.WithContext(ctx).Model(&domain.Issue{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Count(&total).Error
	return total, err
}

// ListIssuesPage returns a page of issues, newest first, optionally filtered
// by status.
func ListIssuesPage(ctx context.Context, db *gorm.DB, status domain.IssueStatus, offset, limit int) ([]domain.Issue, error) {
	var out []domain.Issue
	q := db.WithContext(ctx).Model(&domain.Issue{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at DESC").Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateIssueStatus moves issue id from one status to another with a
// conditional WHERE on the current status. extra carries additional columns
// to set in the same statement (e.g. approved_at, content).
func UpdateIssueStatus(ctx context.Context, db *gorm.DB, id uint, from, to domain.IssueStatus, extra map[string]any) error {
	cols := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		cols[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.Issue{}).
		Where("id = ? AND status = ?", id, from).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// UpdateIssueContent replaces the content of an issue that is still in status.
func UpdateIssueContent(ctx context.Context, db *gorm.DB, id uint, status domain.IssueStatus, title string, content *domain.IssueContent) error {
	cols := map[string]any{
		"content":    datatypes.NewJSONType(content),
		"updated_at": time.Now().UTC(),
	}
	if title != "" {
		cols["title"] = title
	}
	res := db.WithContext(ctx).
		Model(&domain.Issue{}).
		Where("id = ? AND status = ?", id, status).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// StampIssueSentAt records sentAt without touching the status.
func StampIssueSentAt(ctx context.Context, db *gorm.DB, id uint, sentAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Issue{}).
		Where("id = ?", id).
		Updates(map[string]any{"sent_at": sentAt, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
