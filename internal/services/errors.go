// Package services defines the business logic for issues, subscriptions, and
// newsletter delivery. This file centralizes service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// Every specific error belongs to one category (ErrNotFound,
// ErrPreconditionFailed, ErrValidation, ErrTransport, ErrPersistence) and
// matches it through errors.Is. Translation into user-facing messages or HTTP
// status codes is performed at the handler layer.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// Error categories.
var (
	// ErrNotFound indicates that a referenced issue, topic, subject, sequence,
	// or subscription does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPreconditionFailed indicates that the target exists but is not in a
	// state that allows the operation (wrong status, empty content, ...).
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")

	// ErrTransport indicates that the email transport rejected a whole batch.
	ErrTransport = errors.New("transport failure")

	// ErrPersistence indicates a failed database round trip.
	ErrPersistence = errors.New("persistence failure")
)

// ErrInvalidTransition is the state machine violation error. Every
// *domain.TransitionError matches it.
var ErrInvalidTransition = domain.ErrInvalidTransition

// Specific errors.
var (
	ErrIssueNotFound        = kind(ErrNotFound, "issue not found")
	ErrTopicNotFound        = kind(ErrNotFound, "topic not found")
	ErrSubjectNotFound      = kind(ErrNotFound, "subject not found")
	ErrSequenceNotFound     = kind(ErrNotFound, "subject has no sequence")
	ErrSubscriptionNotFound = kind(ErrNotFound, "subscription not found")

	ErrIssueNotApproved = kind(ErrPreconditionFailed, "issue is not approved")
	ErrIssueNoContent   = kind(ErrPreconditionFailed, "issue has no content")
	ErrIssueNotSent     = kind(ErrPreconditionFailed, "issue has not been sent")
	ErrIssueChanged     = kind(ErrPreconditionFailed, "issue status changed concurrently")
	ErrSequenceConflict = kind(ErrPreconditionFailed, "subject sequence advanced concurrently")
	ErrNoGenerator      = kind(ErrPreconditionFailed, "no content generator configured")

	ErrSubscriptionChanged = kind(ErrPreconditionFailed, "subscription status changed concurrently")
	ErrSubjectExists       = kind(ErrPreconditionFailed, "subject slug already exists")
	ErrTopicExists         = kind(ErrPreconditionFailed, "subject already has a topic at this sequence")

	ErrInvalidUserID = kind(ErrValidation, "user id must be a UUID")
	ErrInvalidEmail  = kind(ErrValidation, "invalid email address")
	ErrEmptyContent  = kind(ErrValidation, "content must include html or text")

	ErrEmptyName       = kind(ErrValidation, "name is required")
	ErrEmptyTitle      = kind(ErrValidation, "title is required")
	ErrInvalidSlug     = kind(ErrValidation, "slug must be lowercase letters, digits, and single hyphens")
	ErrInvalidSequence = kind(ErrValidation, "sequence must be at least 1")
)

// categoryError is a specific error that unwraps to its category.
type categoryError struct {
	category error
	msg      string
}

func (e *categoryError) Error() string { return e.msg }

func (e *categoryError) Unwrap() error { return e.category }

func kind(category error, msg string) error {
	return &categoryError{category: category, msg: msg}
}

// persistence wraps a database error so it matches ErrPersistence while the
// driver error stays reachable through errors.Is/As.
func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
