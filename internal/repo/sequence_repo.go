// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the per-subject sequence counter that
// selects which topic a broadcast sends.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// ErrSequenceConflict is returned by AdvanceSequence when the counter no
// longer holds the expected value.
var ErrSequenceConflict = errors.New("subject sequence advanced concurrently")

// EnsureSequence creates the counter for subjectID at start if absent and
// returns the current row.
func EnsureSequence(ctx context.Context, db *gorm.DB, subjectID uint, start int) (*domain.SubjectSequence, error) {
	seq := &domain.SubjectSequence{SubjectID: subjectID, CurrentSequence: start, UpdatedAt: time.Now().UTC()}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "subject_id"}}, DoNothing: true}).
		Create(seq).Error
	if err != nil {
		return nil, err
	}
	return GetSequence(ctx, db, subjectID)
}

// GetSequence returns the counter of subjectID or ErrNotFound.
func GetSequence(ctx context.Context, db *gorm.DB, subjectID uint) (*domain.SubjectSequence, error) {
	var s domain.SubjectSequence
	if err := db.WithContext(ctx).Where("subject_id = ?", subjectID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// SetSequence points the counter of subjectID at seq, creating it if absent.
// Used by operators to skip or repeat a topic.
func SetSequence(ctx context.Context, db *gorm.DB, subjectID uint, seq int) (*domain.SubjectSequence, error) {
	row := &domain.SubjectSequence{SubjectID: subjectID, CurrentSequence: seq, UpdatedAt: time.Now().UTC()}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"current_sequence", "updated_at"}),
		}).
		Create(row).Error
	if err != nil {
		return nil, err
	}
	return GetSequence(ctx, db, subjectID)
}

// AdvanceSequence moves the counter from expected to expected+1. The WHERE
// on the current value makes concurrent advances of the same position fail
// with ErrSequenceConflict instead of skipping a topic.
func AdvanceSequence(ctx context.Context, db *gorm.DB, subjectID uint, expected int) error {
	res := db.WithContext(ctx).
		Model(&domain.SubjectSequence{}).
		Where("subject_id = ? AND current_sequence = ?", subjectID, expected).
		Updates(map[string]any{
			"current_sequence": expected + 1,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSequenceConflict
	}
	return nil
}
