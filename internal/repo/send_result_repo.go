// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file records the outcome of full broadcasts.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// StartSendResult opens a send-result row for a broadcast of issueID.
func StartSendResult(ctx context.Context, db *gorm.DB, issueID, subjectID uint, seq int) (*domain.NewsletterSendResult, error) {
	r := &domain.NewsletterSendResult{
		ID:             uuid.NewString(),
		IssueID:        issueID,
		SubjectID:      subjectID,
		SequenceNumber: seq,
		StartedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// FinishSendResult stores the totals of a broadcast and marks it completed.
// errMsg is empty for successful broadcasts.
func FinishSendResult(ctx context.Context, db *gorm.DB, id string, sent, failed int, failedUserIDs []string, errMsg string) error {
	if failedUserIDs == nil {
		failedUserIDs = []string{}
	}
	now := time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.NewsletterSendResult{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"completed_at":    now,
			"total_sent":      sent,
			"total_failed":    failed,
			"failed_user_ids": datatypes.NewJSONType(failedUserIDs),
			"error":           errMsg,
		}).Error
}

// CountSendResults returns the number of recorded broadcasts.
func CountSendResults(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.NewsletterSendResult{}).Count(&n).Error
	return n, err
}

// ListSendResultsPage returns broadcasts, most recent first.
func ListSendResultsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.NewsletterSendResult, error) {
	var out []domain.NewsletterSendResult
	err := db.WithContext(ctx).
		Order("started_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
