// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the delivery ledger: the per-issue,
// per-user record of what was sent, what failed, and what is still pending.
//
// The ledger enforces at most one row per (issue_id, user_id) through a
// unique index. Inserts use ON CONFLICT DO NOTHING so concurrent callers can
// never create duplicates, and status changes for a whole batch are written
// with a single UPDATE per chunk.
//
// Functions:
//
//   - BulkCreatePending(ctx, db, issueID, userIDs) -> []domain.Delivery, error
//     Inserts pending rows for users that have none and returns only the rows
//     this call created.
//
//   - BulkUpdateStatuses(ctx, db, issueID, updates) -> error
//     Applies per-user field changes with one CASE-based UPDATE per chunk, all
//     chunks inside one transaction.
//
//   - FindActiveSubscribersWithFailedDeliveries(ctx, db, issueID) -> []domain.User, error
//     Users whose delivery is pending/failed/bounced and who still hold an
//     active subscription on the issue's subject.
//
//   - FilterEligibleRecipients(ctx, db, issueID, subjectID, userIDs) -> []string, error
//     Narrows a page of users to active subscribers that have not already
//     been processed for the issue.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// bulkChunk bounds the number of rows (and bind parameters) per statement.
const bulkChunk = 500

// retryableStatuses are the ledger states that a resend picks up again.
var retryableStatuses = []domain.DeliveryStatus{
	domain.DeliveryPending,
	domain.DeliveryFailed,
	domain.DeliveryBounced,
}

// DeliveryUpdate carries the changes for one user's ledger row. Nil pointers
// and an empty Status leave the corresponding column untouched.
type DeliveryUpdate struct {
	UserID       string
	Status       domain.DeliveryStatus
	ExternalID   *string
	ErrorMessage *string
	SentAt       *time.Time
	DeliveredAt  *time.Time
}

// BulkCreatePending inserts a pending delivery for every user in userIDs that
// does not yet have a row for issueID. Existing rows are skipped by the
// database (ON CONFLICT DO NOTHING), which makes concurrent calls safe.
//
// Row IDs are generated client-side so the exact subset created by this call
// can be read back. The result preserves the input order.
func BulkCreatePending(ctx context.Context, db *gorm.DB, issueID uint, userIDs []string) ([]domain.Delivery, error) {
	userIDs = uniqueStrings(userIDs)
	if len(userIDs) == 0 {
		return []domain.Delivery{}, nil
	}

	now := time.Now().UTC()
	rows := make([]domain.Delivery, 0, len(userIDs))
	ids := make([]string, 0, len(userIDs))
	for _, uid := range userIDs {
		id := uuid.NewString()
		rows = append(rows, domain.Delivery{
			ID:        id,
			IssueID:   issueID,
			UserID:    uid,
			Status:    domain.DeliveryPending,
			CreatedAt: now,
		})
		ids = append(ids, id)
	}

	created := make(map[string]domain.Delivery, len(rows))
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "issue_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).CreateInBatches(&rows, bulkChunk).Error
		if err != nil {
			return err
		}
		for _, part := range chunkStrings(ids, bulkChunk) {
			var got []domain.Delivery
			if err := tx.Where("id IN ?", part).Find(&got).Error; err != nil {
				return err
			}
			for _, d := range got {
				created[d.ID] = d
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Delivery, 0, len(created))
	for _, id := range ids {
		if d, ok := created[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// BulkUpdateStatuses applies updates to the ledger rows of issueID. Each chunk
// is one UPDATE statement with a CASE expression per column; all chunks run in
// a single transaction, so the call is all-or-nothing.
func BulkUpdateStatuses(ctx context.Context, db *gorm.DB, issueID uint, updates []DeliveryUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(updates); start += bulkChunk {
			end := start + bulkChunk
			if end > len(updates) {
				end = len(updates)
			}
			stmt, args := buildStatusUpdate(issueID, updates[start:end])
			if stmt == "" {
				continue
			}
			if err := tx.Exec(stmt, args...).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// buildStatusUpdate renders one UPDATE for a chunk. Columns with no changes
// in the chunk are omitted; an empty statement means nothing to do.
func buildStatusUpdate(issueID uint, chunk []DeliveryUpdate) (string, []any) {
	type column struct {
		name string
		val  func(DeliveryUpdate) (any, bool)
	}
	columns := []column{
		{"status", func(u DeliveryUpdate) (any, bool) { return string(u.Status), u.Status != "" }},
		{"external_id", func(u DeliveryUpdate) (any, bool) { return deref(u.ExternalID), u.ExternalID != nil }},
		{"error_message", func(u DeliveryUpdate) (any, bool) { return deref(u.ErrorMessage), u.ErrorMessage != nil }},
		{"sent_at", func(u DeliveryUpdate) (any, bool) { return derefTime(u.SentAt), u.SentAt != nil }},
		{"delivered_at", func(u DeliveryUpdate) (any, bool) { return derefTime(u.DeliveredAt), u.DeliveredAt != nil }},
	}

	var (
		sets []string
		args []any
	)
	for _, col := range columns {
		var b strings.Builder
		var colArgs []any
		for _, u := range chunk {
			v, ok := col.val(u)
			if !ok {
				continue
			}
			b.WriteString(" WHEN ? THEN ?")
			colArgs = append(colArgs, u.UserID, v)
		}
		if len(colArgs) == 0 {
			continue
		}
		sets = append(sets, col.name+" = CASE user_id"+b.String()+" ELSE "+col.name+" END")
		args = append(args, colArgs...)
	}
	if len(sets) == 0 {
		return "", nil
	}

	userIDs := make([]string, 0, len(chunk))
	for _, u := range chunk {
		userIDs = append(userIDs, u.UserID)
	}
	args = append(args, issueID, userIDs)
	stmt := "UPDATE deliveries SET " + strings.Join(sets, ", ") + " WHERE issue_id = ? AND user_id IN ?"
	return stmt, args
}

// FindActiveSubscribersWithFailedDeliveries returns the users whose delivery of
// issueID is pending, failed, or bounced and who still hold an active
// subscription to the subject the issue belongs to.
func FindActiveSubscribersWithFailedDeliveries(ctx context.Context, db *gorm.DB, issueID uint) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Select("users.*").
		Joins("JOIN deliveries ON deliveries.user_id = users.id").
		Joins("JOIN issues ON issues.id = deliveries.issue_id").
		Joins("JOIN topics ON topics.id = issues.topic_id").
		Joins("JOIN subscriptions ON subscriptions.user_id = users.id AND subscriptions.subject_id = topics.subject_id").
		Where("deliveries.issue_id = ? AND deliveries.status IN ? AND subscriptions.status = ?",
			issueID, retryableStatuses, domain.SubscriptionActive).
		Order("users.id ASC").
		Find(&out).Error
	return out, err
}

// ListFailedUserIDs returns the users whose delivery of issueID ended failed
// or bounced.
func ListFailedUserIDs(ctx context.Context, db *gorm.DB, issueID uint) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Delivery{}).
		Where("issue_id = ? AND status IN ?", issueID, []domain.DeliveryStatus{domain.DeliveryFailed, domain.DeliveryBounced}).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// FilterEligibleRecipients keeps the users from userIDs that hold an active
// subscription to subjectID and have no non-pending ledger row for issueID.
// Input order is preserved.
func FilterEligibleRecipients(ctx context.Context, db *gorm.DB, issueID, subjectID uint, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return []string{}, nil
	}
	active := make(map[string]struct{}, len(userIDs))
	processed := make(map[string]struct{})

	for _, part := range chunkStrings(userIDs, bulkChunk) {
		var subs []string
		if err := db.WithContext(ctx).
			Model(&domain.Subscription{}).
			Where("subject_id = ? AND status = ? AND user_id IN ?", subjectID, domain.SubscriptionActive, part).
			Pluck("user_id", &subs).Error; err != nil {
			return nil, err
		}
		for _, id := range subs {
			active[id] = struct{}{}
		}

		var done []string
		if err := db.WithContext(ctx).
			Model(&domain.Delivery{}).
			Where("issue_id = ? AND status <> ? AND user_id IN ?", issueID, domain.DeliveryPending, part).
			Pluck("user_id", &done).Error; err != nil {
			return nil, err
		}
		for _, id := range done {
			processed[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := active[id]; !ok {
			continue
		}
		if _, ok := processed[id]; ok {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// MarkBounced flags the pending or sent delivery of issueID to userID as
// bounced. It reports whether a row changed.
func MarkBounced(ctx context.Context, db *gorm.DB, issueID uint, userID, reason string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Delivery{}).
		Where("issue_id = ? AND user_id = ? AND status IN ?", issueID, userID,
			[]domain.DeliveryStatus{domain.DeliveryPending, domain.DeliverySent}).
		Updates(map[string]any{"status": domain.DeliveryBounced, "error_message": reason})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetDelivery returns the ledger row for (issueID, userID) or ErrNotFound.
func GetDelivery(ctx context.Context, db *gorm.DB, issueID uint, userID string) (*domain.Delivery, error) {
	var d domain.Delivery
	if err := db.WithContext(ctx).Where("issue_id = ? AND user_id = ?", issueID, userID).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func chunkStrings(in []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(in); start += size {
		end := start + size
		if end > len(in) {
			end = len(in)
		}
		out = append(out, in[start:end])
	}
	return out
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func derefTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
