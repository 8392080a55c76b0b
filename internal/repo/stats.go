// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate queries over the delivery
// ledger used by the admin metrics endpoints.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// IssueMetrics summarizes the ledger of one issue.
//
// Sent counts sent and delivered rows; Failed counts failed and bounced rows.
// SuccessRate is Sent/Total, or 0 when the issue has no ledger rows.
type IssueMetrics struct {
	IssueID     uint       `json:"issue_id"`
	Title       string     `json:"title"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	Total       int64      `json:"total"`
	Sent        int64      `json:"sent"`
	Pending     int64      `json:"pending"`
	Failed      int64      `json:"failed"`
	SuccessRate float64    `json:"success_rate"`
}

// FindRecentIssueMetrics returns per-issue delivery totals for the limit most
// recently sent issues, most recent first.
//
// It runs two queries: one for the issues (so timestamps scan with their
// declared type) and one grouped aggregate over the ledger.
func FindRecentIssueMetrics(ctx context.Context, db *gorm.DB, limit int) ([]IssueMetrics, error) {
	if limit <= 0 {
		limit = 10
	}

	var issues []domain.Issue
	err := db.WithContext(ctx).
		Where("sent_at IS NOT NULL").
		Order("sent_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&issues).Error
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return []IssueMetrics{}, nil
	}

	ids := make([]uint, 0, len(issues))
	for _, i := range issues {
		ids = append(ids, i.ID)
	}

	var rows []struct {
		IssueID uint
		Total   int64
		Sent    int64
		Pending int64
		Failed  int64
	}
	err = db.WithContext(ctx).
		Model(&domain.Delivery{}).
		Select(`issue_id,
			COUNT(*) AS total,
			SUM(CASE WHEN status IN ('sent','delivered') THEN 1 ELSE 0 END) AS sent,
			SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END) AS pending,
			SUM(CASE WHEN status IN ('failed','bounced') THEN 1 ELSE 0 END) AS failed`).
		Where("issue_id IN ?", ids).
		Group("issue_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	byIssue := make(map[uint]int, len(rows))
	for i, r := range rows {
		byIssue[r.IssueID] = i
	}

	out := make([]IssueMetrics, 0, len(issues))
	for _, i := range issues {
		m := IssueMetrics{IssueID: i.ID, Title: i.Title, SentAt: i.SentAt}
		if idx, ok := byIssue[i.ID]; ok {
			r := rows[idx]
			m.Total, m.Sent, m.Pending, m.Failed = r.Total, r.Sent, r.Pending, r.Failed
		}
		m.SuccessRate = successRate(m.Sent, m.Total)
		out = append(out, m)
	}
	return out, nil
}

// CountDeliveriesByStatus returns the ledger row count per status for issueID.
func CountDeliveriesByStatus(ctx context.Context, db *gorm.DB, issueID uint) (map[domain.DeliveryStatus]int64, error) {
	var rows []struct {
		Status domain.DeliveryStatus
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Delivery{}).
		Select("status, COUNT(*) AS n").
		Where("issue_id = ?", issueID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.DeliveryStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

func successRate(sent, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(sent) / float64(total)
}
