// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for subscriptions
// and their append-only audit trail.
//
// Callers that mutate a subscription are expected to write the matching
// audit row through the same *gorm.DB transaction handle.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// GetSubscription returns the subscription of userID to subjectID.
func GetSubscription(ctx context.Context, db *gorm.DB, userID string, subjectID uint) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ? AND subject_id = ?", userID, subjectID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSubscriptionsByUser returns every subscription held by userID.
func ListSubscriptionsByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Subscription, error) {
	var out []domain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("subject_id ASC").
		Find(&out).Error
	return out, err
}

// InsertActiveSubscriptions creates active subscriptions of subjectID for
// userIDs, skipping users that already have one, and returns only the rows
// created by this call (in input order).
func InsertActiveSubscriptions(ctx context.Context, db *gorm.DB, subjectID uint, userIDs []string) ([]domain.Subscription, error) {
	userIDs = uniqueStrings(userIDs)
	if len(userIDs) == 0 {
		return []domain.Subscription{}, nil
	}
	now := time.Now().UTC()
	rows := make([]domain.Subscription, 0, len(userIDs))
	ids := make([]string, 0, len(userIDs))
	for _, uid := range userIDs {
		id := uuid.NewString()
		rows = append(rows, domain.Subscription{
			ID:          id,
			UserID:      uid,
			SubjectID:   subjectID,
			Status:      domain.SubscriptionActive,
			CreatedAt:   now,
			UpdatedAt:   now,
			ActivatedAt: &now,
		})
		ids = append(ids, id)
	}

	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "subject_id"}},
		DoNothing: true,
	}).CreateInBatches(&rows, bulkChunk).Error
	if err != nil {
		return nil, err
	}

	created := make(map[string]domain.Subscription, len(ids))
	for _, part := range chunkStrings(ids, bulkChunk) {
		var got []domain.Subscription
		if err := db.WithContext(ctx).Where("id IN ?", part).Find(&got).Error; err != nil {
			return nil, err
		}
		for _, s := range got {
			created[s.ID] = s
		}
	}
	out := make([]domain.Subscription, 0, len(created))
	for _, id := range ids {
		if s, ok := created[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// SaveSubscriptionStatus persists the status and timestamp columns of s,
// provided the stored status still equals from. It returns ErrStaleStatus
// when another writer moved the row first and ErrNotFound when the row does
// not exist.
func SaveSubscriptionStatus(ctx context.Context, db *gorm.DB, s *domain.Subscription, from domain.SubscriptionStatus) error {
	s.UpdatedAt = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ? AND status = ?", s.ID, from).
		Updates(map[string]any{
			"status":       s.Status,
			"activated_at": s.ActivatedAt,
			"paused_at":    s.PausedAt,
			"cancelled_at": s.CancelledAt,
			"updated_at":   s.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := db.WithContext(ctx).Model(&domain.Subscription{}).Where("id = ?", s.ID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStaleStatus
}

// CountActiveSubscriptions returns the number of active subscribers of subjectID.
func CountActiveSubscriptions(ctx context.Context, db *gorm.DB, subjectID uint) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("subject_id = ? AND status = ?", subjectID, domain.SubscriptionActive).
		Count(&n).Error
	return n, err
}

// NewAudit builds an audit row describing the change of sub from before to
// its current state. before is nil for creations.
func NewAudit(sub *domain.Subscription, before *domain.SubscriptionSnapshot, reason domain.AuditReason) domain.SubscriptionAudit {
	return domain.SubscriptionAudit{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		SubjectID:      sub.SubjectID,
		Reason:         reason,
		Before:         datatypes.NewJSONType(before),
		After:          datatypes.NewJSONType(sub.Snapshot()),
		CreatedAt:      time.Now().UTC(),
	}
}

// InsertAudits appends audit rows.
func InsertAudits(ctx context.Context, db *gorm.DB, audits []domain.SubscriptionAudit) error {
	if len(audits) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(&audits, bulkChunk).Error
}

// ListAudits returns the audit trail of one subscription, oldest first.
func ListAudits(ctx context.Context, db *gorm.DB, subscriptionID string) ([]domain.SubscriptionAudit, error) {
	var out []domain.SubscriptionAudit
	err := db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
