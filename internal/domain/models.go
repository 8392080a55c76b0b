// Package domain defines the persistence models for subjects, topics, issues,
// subscribers, and the delivery ledger. These types are mapped with GORM and
// form the core data layer of the newsletter backend.
package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Subject is a newsletter line that users subscribe to. Each subject owns an
// ordered series of topics and a sequence counter pointing at the next one.
type Subject struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null"`
	Slug      string    `json:"slug"       gorm:"type:varchar(128);not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Subject.
func (Subject) TableName() string { return "subjects" }

// Topic is a planned unit of content within a subject, identified by its
// position in the subject's sequence. An issue is generated from a topic.
type Topic struct {
	ID             uint           `json:"id"              gorm:"primaryKey"`
	SubjectID      uint           `json:"subject_id"      gorm:"not null;uniqueIndex:ux_topic_subject_seq,priority:1"`
	SequenceNumber int            `json:"sequence_number" gorm:"not null;uniqueIndex:ux_topic_subject_seq,priority:2"`
	Title          string         `json:"title"           gorm:"type:varchar(255);not null"`
	Data           datatypes.JSON `json:"data,omitempty" gorm:"default:'null'"`
	CreatedAt      time.Time      `json:"created_at"`

	Subject Subject `json:"-" gorm:"foreignKey:SubjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Topic.
func (Topic) TableName() string { return "topics" }

// IssueContent is the rendered body of an issue. It is stored as a JSON
// column and personalized per recipient at send time.
type IssueContent struct {
	Subject   string `json:"subject"`
	Preheader string `json:"preheader,omitempty"`
	HTML      string `json:"html"`
	Text      string `json:"text,omitempty"`
}

// Issue is a concrete, generated newsletter edition for one topic.
//
// Fields:
//   - Content: JSON body; JSON null while generating or after a failure.
//   - Status: one of the IssueStatus values, driven by the state machine.
//   - ApprovedAt: set on approval and kept when the issue is unapproved.
//   - SentAt: set by a full broadcast and by admin preview sends.
type Issue struct {
	ID              uint                              `json:"id"               gorm:"primaryKey"`
	TopicID         uint                              `json:"topic_id"         gorm:"not null;index"`
	Title           string                            `json:"title"            gorm:"type:varchar(255);not null"`
	Content         datatypes.JSONType[*IssueContent] `json:"content"          gorm:"default:'null'"`
	Status          IssueStatus                       `json:"status"           gorm:"type:varchar(16);not null;index"`
	GenerationError string                            `json:"generation_error,omitempty" gorm:"type:text"`
	CreatedAt       time.Time                         `json:"created_at"`
	UpdatedAt       time.Time                         `json:"updated_at"`
	ApprovedAt      *time.Time                        `json:"approved_at,omitempty"`
	SentAt          *time.Time                        `json:"sent_at,omitempty"       gorm:"index"`

	Topic Topic `json:"-" gorm:"foreignKey:TopicID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Issue.
func (Issue) TableName() string { return "issues" }

// HasContent reports whether the issue carries a non-empty body.
func (i *Issue) HasContent() bool {
	if i == nil {
		return false
	}
	c := i.Content.Data()
	if c == nil {
		return false
	}
	return strings.TrimSpace(c.HTML) != "" || strings.TrimSpace(c.Text) != ""
}

// User is a newsletter recipient. Admin preview recipients are ordinary
// users created on demand.
type User struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Email     string    `json:"email"      gorm:"type:varchar(320);not null;uniqueIndex"`
	Name      string    `json:"name"       gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// SubscriptionStatus enumerates subscription states.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Subscription links a user to a subject. At most one row exists per
// (user, subject); status changes are recorded in SubscriptionAudit.
type Subscription struct {
	ID          string             `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string             `json:"user_id"      gorm:"type:char(36);not null;uniqueIndex:ux_subscription_user_subject,priority:1"`
	SubjectID   uint               `json:"subject_id"   gorm:"not null;uniqueIndex:ux_subscription_user_subject,priority:2;index"`
	Status      SubscriptionStatus `json:"status"       gorm:"type:varchar(16);not null;index"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	ActivatedAt *time.Time         `json:"activated_at,omitempty"`
	PausedAt    *time.Time         `json:"paused_at,omitempty"`
	CancelledAt *time.Time         `json:"cancelled_at,omitempty"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string { return "subscriptions" }

// SubscriptionSnapshot is the audited view of a subscription at one instant.
type SubscriptionSnapshot struct {
	Status      SubscriptionStatus `json:"status"`
	ActivatedAt *time.Time         `json:"activated_at,omitempty"`
	PausedAt    *time.Time         `json:"paused_at,omitempty"`
	CancelledAt *time.Time         `json:"cancelled_at,omitempty"`
}

// Snapshot captures the audited fields of s.
func (s *Subscription) Snapshot() *SubscriptionSnapshot {
	if s == nil {
		return nil
	}
	return &SubscriptionSnapshot{
		Status:      s.Status,
		ActivatedAt: s.ActivatedAt,
		PausedAt:    s.PausedAt,
		CancelledAt: s.CancelledAt,
	}
}

// AuditReason tags why a subscription changed.
type AuditReason string

const (
	ReasonUserSignup      AuditReason = "user_signup"
	ReasonUserUnsubscribe AuditReason = "user_unsubscribe"
	ReasonAdminAction     AuditReason = "admin_action"
	ReasonSystemMigration AuditReason = "system_migration"
	ReasonBounceHandling  AuditReason = "bounce_handling"
	ReasonReactivation    AuditReason = "reactivation"
)

// SubscriptionAudit is an append-only record of a subscription state change.
// Before is JSON null for creations.
type SubscriptionAudit struct {
	ID             string                                    `json:"id"              gorm:"type:char(36);primaryKey"`
	SubscriptionID string                                    `json:"subscription_id" gorm:"type:char(36);not null;index"`
	UserID         string                                    `json:"user_id"         gorm:"type:char(36);not null;index"`
	SubjectID      uint                                      `json:"subject_id"      gorm:"not null"`
	Reason         AuditReason                               `json:"reason"          gorm:"type:varchar(32);not null"`
	Before         datatypes.JSONType[*SubscriptionSnapshot] `json:"before"          gorm:"default:'null'"`
	After          datatypes.JSONType[*SubscriptionSnapshot] `json:"after"           gorm:"default:'null'"`
	CreatedAt      time.Time                                 `json:"created_at"      gorm:"index"`
}

// TableName returns the database table name for SubscriptionAudit.
func (SubscriptionAudit) TableName() string { return "subscription_audits" }

// DeliveryStatus enumerates per-recipient delivery outcomes.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryBounced   DeliveryStatus = "bounced"
)

// Succeeded reports whether the status counts as a successful send.
func (s DeliveryStatus) Succeeded() bool {
	return s == DeliverySent || s == DeliveryDelivered
}

// Delivery is one row of the ledger: the delivery state of one issue to one
// user. The (issue_id, user_id) pair is unique.
type Delivery struct {
	ID           string         `json:"id"                      gorm:"type:char(36);primaryKey"`
	IssueID      uint           `json:"issue_id"                gorm:"not null;uniqueIndex:ux_delivery_issue_user,priority:1"`
	UserID       string         `json:"user_id"                 gorm:"type:char(36);not null;uniqueIndex:ux_delivery_issue_user,priority:2;index"`
	Status       DeliveryStatus `json:"status"                  gorm:"type:varchar(16);not null;index"`
	ExternalID   *string        `json:"external_id,omitempty"   gorm:"type:varchar(255)"`
	ErrorMessage *string        `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt    time.Time      `json:"created_at"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt  *time.Time     `json:"delivered_at,omitempty"`
}

// TableName returns the database table name for Delivery.
func (Delivery) TableName() string { return "deliveries" }

// NewsletterSendResult records the outcome of one full broadcast.
type NewsletterSendResult struct {
	ID             string                       `json:"id"              gorm:"type:char(36);primaryKey"`
	IssueID        uint                         `json:"issue_id"        gorm:"not null;index"`
	SubjectID      uint                         `json:"subject_id"      gorm:"not null;index"`
	SequenceNumber int                          `json:"sequence_number" gorm:"not null"`
	StartedAt      time.Time                    `json:"started_at"      gorm:"index"`
	CompletedAt    *time.Time                   `json:"completed_at,omitempty"`
	TotalSent      int                          `json:"total_sent"`
	TotalFailed    int                          `json:"total_failed"`
	FailedUserIDs  datatypes.JSONType[[]string] `json:"failed_user_ids" gorm:"default:'null'"`
	Error          string                       `json:"error,omitempty" gorm:"type:text"`
}

// TableName returns the database table name for NewsletterSendResult.
func (NewsletterSendResult) TableName() string { return "newsletter_send_results" }

// SubjectSequence is the per-subject pointer to the next topic to broadcast.
// It is advanced only with a compare-and-set on CurrentSequence.
type SubjectSequence struct {
	SubjectID       uint      `json:"subject_id"       gorm:"primaryKey;autoIncrement:false"`
	CurrentSequence int       `json:"current_sequence" gorm:"not null;default:1"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for SubjectSequence.
func (SubjectSequence) TableName() string { return "subject_sequences" }
