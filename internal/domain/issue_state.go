package domain

import (
	"errors"
	"fmt"
	"strings"
)

// IssueStatus is the lifecycle state of an Issue.
type IssueStatus string

const (
	IssueGenerating IssueStatus = "generating"
	IssueDraft      IssueStatus = "draft"
	IssueFailed     IssueStatus = "failed"
	IssueApproved   IssueStatus = "approved"
	IssueSent       IssueStatus = "sent"
)

// ErrInvalidTransition is matched (via errors.Is) by every TransitionError.
var ErrInvalidTransition = errors.New("invalid issue status transition")

// issueTransitions is the complete transition table. sent is terminal.
var issueTransitions = map[IssueStatus][]IssueStatus{
	IssueGenerating: {IssueDraft, IssueFailed},
	IssueDraft:      {IssueApproved},
	IssueFailed:     {IssueGenerating},
	IssueApproved:   {IssueDraft, IssueSent},
	IssueSent:       {},
}

// Valid reports whether s is a known issue status.
func (s IssueStatus) Valid() bool {
	_, ok := issueTransitions[s]
	return ok
}

// TransitionError describes a rejected status change and the states that
// would have been accepted from From.
type TransitionError struct {
	From    IssueStatus
	To      IssueStatus
	Allowed []IssueStatus
}

func (e *TransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	next := strings.Join(allowed, ", ")
	if next == "" {
		next = "none"
	}
	return fmt.Sprintf("cannot move issue from %q to %q (allowed: %s)", e.From, e.To, next)
}

// Is makes errors.Is(err, ErrInvalidTransition) true.
func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// AllowedTransitions returns a copy of the statuses reachable from s.
// Unknown statuses have no transitions.
func AllowedTransitions(s IssueStatus) []IssueStatus {
	next := issueTransitions[s]
	out := make([]IssueStatus, len(next))
	copy(out, next)
	return out
}

// IsTransitionAllowed reports whether from -> to is in the transition table.
func IsTransitionAllowed(from, to IssueStatus) bool {
	for _, s := range issueTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateStatusTransition returns nil when from -> to is allowed and a
// *TransitionError carrying the allowed next states otherwise.
func ValidateStatusTransition(from, to IssueStatus) error {
	if IsTransitionAllowed(from, to) {
		return nil
	}
	return &TransitionError{From: from, To: to, Allowed: AllowedTransitions(from)}
}

// CanApprove reports whether an issue in status s may be approved.
func CanApprove(s IssueStatus) bool { return s == IssueDraft }

// CanUnapprove reports whether an issue in status s may go back to draft.
func CanUnapprove(s IssueStatus) bool { return s == IssueApproved }

// CanSend reports whether an issue in status s may be broadcast.
func CanSend(s IssueStatus) bool { return s == IssueApproved }

// CanAutoApprove reports whether an issue in status s may be approved
// without human review.
func CanAutoApprove(s IssueStatus) bool { return s == IssueDraft }

// CanEdit reports whether an issue's content may be edited in status s.
func CanEdit(s IssueStatus) bool { return s == IssueDraft || s == IssueFailed }
