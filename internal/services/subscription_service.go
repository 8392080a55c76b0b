// Package services – SubscriptionService
//
// This file implements subscription management. Every status change and
// every creation is written together with its audit row in one transaction,
// so the audit trail can never miss a change.
//
// The active-subscriber count per subject is cached under
// "subscribers:active:<subject_id>". The cache is advisory: read errors fall
// back to a database count, write errors are logged and ignored.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/cache"
	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// DefaultCountTTL is the cache lifetime of active-subscriber counts.
const DefaultCountTTL = 5 * time.Minute

// SubscriptionService owns subscription state and its audit trail.
type SubscriptionService struct {
	DB       *gorm.DB
	Cache    cache.Cache
	CountTTL time.Duration
}

// NewSubscriptionService constructs a SubscriptionService. A nil cache is
// replaced by cache.Nop.
func NewSubscriptionService(db *gorm.DB, c cache.Cache) *SubscriptionService {
	if c == nil {
		c = cache.Nop{}
	}
	return &SubscriptionService{DB: db, Cache: c, CountTTL: DefaultCountTTL}
}

func activeCountKey(subjectID uint) string {
	return "subscribers:active:" + strconv.FormatUint(uint64(subjectID), 10)
}

func validUserID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// EnsureSubscriptionExists returns the subscription of userID to subjectID,
// creating an active one (audited as system_migration) when absent.
func (s *SubscriptionService) EnsureSubscriptionExists(ctx context.Context, userID string, subjectID uint) (*domain.Subscription, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "EnsureSubscriptionExists",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.Int64("subject.id", int64(subjectID))),
	)
	defer span.End()

	if !validUserID(userID) {
		return nil, ErrInvalidUserID
	}

	var (
		out     *domain.Subscription
		created bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, created, err = insertAudited(ctx, tx, userID, subjectID, domain.ReasonSystemMigration)
		if err != nil || created {
			return err
		}
		out, err = repo.GetSubscription(ctx, tx, userID, subjectID)
		return err
	})
	if err != nil {
		return nil, persistence("ensure subscription", err)
	}
	if created {
		s.refreshCount(ctx, subjectID)
	}
	return out, nil
}

// Signup subscribes the reader with email to subjectID, creating the user
// when needed. A paused or cancelled subscription is reactivated. The
// boolean reports whether a new subscription row was created.
func (s *SubscriptionService) Signup(ctx context.Context, email, name string, subjectID uint) (*domain.Subscription, bool, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Signup", trace.WithAttributes(attribute.Int64("subject.id", int64(subjectID))))
	defer span.End()

	addr, err := NormalizeEmail(email)
	if err != nil {
		return nil, false, err
	}
	if _, err := repo.GetSubject(ctx, s.DB, subjectID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, ErrSubjectNotFound
		}
		return nil, false, persistence("get subject", err)
	}
	user, err := repo.EnsureUserByEmail(ctx, s.DB, addr, strings.TrimSpace(name))
	if err != nil {
		return nil, false, persistence("ensure user", err)
	}

	var (
		out              *domain.Subscription
		created, changed bool
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, created, err = insertAudited(ctx, tx, user.ID, subjectID, domain.ReasonUserSignup)
		if err != nil {
			return persistence("insert subscription", err)
		}
		if created {
			return nil
		}
		out, changed, err = transition(ctx, tx, user.ID, subjectID, domain.SubscriptionActive, domain.ReasonUserSignup)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if created || changed {
		s.refreshCount(ctx, subjectID)
	}
	logFrom(ctx).Info().Str("user_id", user.ID).Uint("subject_id", subjectID).Bool("created", created).Msg("signup")
	return out, created, nil
}

// insertAudited creates an active subscription with its audit row. It
// returns (nil, false, nil) when the user is already subscribed.
func insertAudited(ctx context.Context, tx *gorm.DB, userID string, subjectID uint, reason domain.AuditReason) (*domain.Subscription, bool, error) {
	rows, err := repo.InsertActiveSubscriptions(ctx, tx, subjectID, []string{userID})
	if err != nil || len(rows) == 0 {
		return nil, false, err
	}
	sub := &rows[0]
	if err := repo.InsertAudits(ctx, tx, []domain.SubscriptionAudit{repo.NewAudit(sub, nil, reason)}); err != nil {
		return nil, false, err
	}
	return sub, true, nil
}

// Unsubscribe cancels the subscription of userID to subjectID. Cancelling an
// already cancelled subscription returns it unchanged and writes no audit.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, userID string, subjectID uint) (*domain.Subscription, error) {
	return s.changeStatus(ctx, userID, subjectID, domain.SubscriptionCancelled, domain.ReasonUserUnsubscribe)
}

// Pause suspends an active subscription (admin action).
func (s *SubscriptionService) Pause(ctx context.Context, userID string, subjectID uint) (*domain.Subscription, error) {
	return s.changeStatus(ctx, userID, subjectID, domain.SubscriptionPaused, domain.ReasonAdminAction)
}

// Reactivate returns a paused or cancelled subscription to active.
func (s *SubscriptionService) Reactivate(ctx context.Context, userID string, subjectID uint) (*domain.Subscription, error) {
	return s.changeStatus(ctx, userID, subjectID, domain.SubscriptionActive, domain.ReasonReactivation)
}

// maxStatusAttempts bounds how often a status change re-reads a row that
// another writer moved between the read and the conditional update.
const maxStatusAttempts = 3

// changeStatus moves one subscription to status and records the audit row
// in the same transaction. A subscription already in status is returned
// as is.
func (s *SubscriptionService) changeStatus(ctx context.Context, userID string, subjectID uint, status domain.SubscriptionStatus, reason domain.AuditReason) (*domain.Subscription, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "ChangeStatus",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int64("subject.id", int64(subjectID)),
			attribute.String("status", string(status)),
			attribute.String("reason", string(reason)),
		),
	)
	defer span.End()

	if !validUserID(userID) {
		return nil, ErrInvalidUserID
	}

	var (
		out     *domain.Subscription
		changed bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, changed, err = transition(ctx, tx, userID, subjectID, status, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.refreshCount(ctx, subjectID)
	}
	return out, nil
}

// transition applies one audited status change through tx. The update is
// conditional on the status that was read; when another writer got there
// first the row is re-read, and a row that already holds status is returned
// without an audit.
func transition(ctx context.Context, tx *gorm.DB, userID string, subjectID uint, status domain.SubscriptionStatus, reason domain.AuditReason) (*domain.Subscription, bool, error) {
	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		sub, err := repo.GetSubscription(ctx, tx, userID, subjectID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, false, ErrSubscriptionNotFound
			}
			return nil, false, persistence("get subscription", err)
		}
		if sub.Status == status {
			return sub, false, nil
		}
		from := sub.Status
		before := sub.Snapshot()
		applyStatus(sub, status, time.Now().UTC())
		err = repo.SaveSubscriptionStatus(ctx, tx, sub, from)
		if errors.Is(err, repo.ErrStaleStatus) {
			logFrom(ctx).Debug().Str("subscription_id", sub.ID).Msg("subscription moved concurrently; re-reading")
			continue
		}
		if err != nil {
			return nil, false, persistence("save subscription", err)
		}
		if err := repo.InsertAudits(ctx, tx, []domain.SubscriptionAudit{repo.NewAudit(sub, before, reason)}); err != nil {
			return nil, false, persistence("insert audit", err)
		}
		return sub, true, nil
	}
	return nil, false, ErrSubscriptionChanged
}

func applyStatus(sub *domain.Subscription, status domain.SubscriptionStatus, now time.Time) {
	sub.Status = status
	switch status {
	case domain.SubscriptionActive:
		sub.ActivatedAt = &now
		sub.PausedAt = nil
		sub.CancelledAt = nil
	case domain.SubscriptionPaused:
		sub.PausedAt = &now
	case domain.SubscriptionCancelled:
		sub.CancelledAt = &now
	}
}

// BulkCreateSubscription subscribes userIDs to subjectID, skipping users that
// already hold a subscription, and audits each creation as admin_action. It
// returns only the subscriptions created by this call.
func (s *SubscriptionService) BulkCreateSubscription(ctx context.Context, userIDs []string, subjectID uint) ([]domain.Subscription, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "BulkCreateSubscription",
		trace.WithAttributes(attribute.Int64("subject.id", int64(subjectID)), attribute.Int("users", len(userIDs))),
	)
	defer span.End()

	if len(userIDs) == 0 {
		return []domain.Subscription{}, nil
	}
	for _, id := range userIDs {
		if !validUserID(id) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidUserID, id)
		}
	}
	if _, err := repo.GetSubject(ctx, s.DB, subjectID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSubjectNotFound
		}
		return nil, persistence("get subject", err)
	}

	var created []domain.Subscription
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := repo.InsertActiveSubscriptions(ctx, tx, subjectID, userIDs)
		if err != nil {
			return err
		}
		audits := make([]domain.SubscriptionAudit, 0, len(rows))
		for i := range rows {
			audits = append(audits, repo.NewAudit(&rows[i], nil, domain.ReasonAdminAction))
		}
		created = rows
		return repo.InsertAudits(ctx, tx, audits)
	})
	if err != nil {
		return nil, persistence("bulk create subscriptions", err)
	}
	if len(created) > 0 {
		s.refreshCount(ctx, subjectID)
	}
	return created, nil
}

// CancelAllForEmail cancels every non-cancelled subscription of the user
// with email, audited as bounce_handling. An unknown email cancels nothing.
func (s *SubscriptionService) CancelAllForEmail(ctx context.Context, email string) (int, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "CancelAllForEmail")
	defer span.End()

	user, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, nil
		}
		return 0, persistence("get user", err)
	}

	var touched []uint
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subs, err := repo.ListSubscriptionsByUser(ctx, tx, user.ID)
		if err != nil {
			return persistence("list subscriptions", err)
		}
		for _, sub := range subs {
			if sub.Status == domain.SubscriptionCancelled {
				continue
			}
			_, changed, err := transition(ctx, tx, user.ID, sub.SubjectID, domain.SubscriptionCancelled, domain.ReasonBounceHandling)
			if err != nil {
				return err
			}
			if changed {
				touched = append(touched, sub.SubjectID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, id := range touched {
		s.refreshCount(ctx, id)
	}
	return len(touched), nil
}

// ActiveSubscriberCount returns the number of active subscribers of
// subjectID, served from cache when possible.
func (s *SubscriptionService) ActiveSubscriberCount(ctx context.Context, subjectID uint) (int64, error) {
	key := activeCountKey(subjectID)
	if v, err := s.Cache.Get(ctx, key); err == nil {
		if n, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			return n, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		logFrom(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	n, err := repo.CountActiveSubscriptions(ctx, s.DB, subjectID)
	if err != nil {
		return 0, persistence("count subscriptions", err)
	}
	s.storeCount(ctx, key, n)
	return n, nil
}

// ListAudit returns the audit trail of one subscription, oldest first.
func (s *SubscriptionService) ListAudit(ctx context.Context, subscriptionID string) ([]domain.SubscriptionAudit, error) {
	audits, err := repo.ListAudits(ctx, s.DB, subscriptionID)
	if err != nil {
		return nil, persistence("list audits", err)
	}
	if len(audits) == 0 {
		var n int64
		if err := s.DB.WithContext(ctx).Model(&domain.Subscription{}).Where("id = ?", subscriptionID).Count(&n).Error; err != nil {
			return nil, persistence("get subscription", err)
		}
		if n == 0 {
			return nil, ErrSubscriptionNotFound
		}
	}
	return audits, nil
}

// refreshCount invalidates and repopulates the cached count of subjectID.
func (s *SubscriptionService) refreshCount(ctx context.Context, subjectID uint) {
	key := activeCountKey(subjectID)
	if err := s.Cache.Del(ctx, key); err != nil {
		logFrom(ctx).Warn().Err(err).Str("key", key).Msg("cache invalidate failed")
	}
	n, err := repo.CountActiveSubscriptions(ctx, s.DB, subjectID)
	if err != nil {
		logFrom(ctx).Warn().Err(err).Uint("subject_id", subjectID).Msg("recount subscribers")
		return
	}
	s.storeCount(ctx, key, n)
}

func (s *SubscriptionService) storeCount(ctx context.Context, key string, n int64) {
	ttl := s.CountTTL
	if ttl <= 0 {
		ttl = DefaultCountTTL
	}
	if err := s.Cache.SetEx(ctx, key, strconv.FormatInt(n, 10), ttl); err != nil {
		logFrom(ctx).Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
