// Package services – CatalogService
//
// This file manages the newsletter catalog: subjects, the ordered topics of
// each subject, and the per-subject sequence counter that selects the next
// topic to broadcast. A new subject always starts with its counter at 1.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// CatalogService creates subjects and topics and moves sequence counters.
type CatalogService struct {
	DB *gorm.DB
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{DB: db}
}

// CreateSubject inserts a subject and its sequence counter starting at 1.
func (s *CatalogService) CreateSubject(ctx context.Context, name, slug string) (*domain.Subject, error) {
	tr := otel.Tracer("services/CatalogService")
	ctx, span := tr.Start(ctx, "CreateSubject", trace.WithAttributes(attribute.String("subject.slug", slug)))
	defer span.End()

	name = strings.TrimSpace(name)
	slug = strings.TrimSpace(slug)
	if name == "" {
		return nil, ErrEmptyName
	}
	if !slugPattern.MatchString(slug) {
		return nil, ErrInvalidSlug
	}

	var out *domain.Subject
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subj, err := repo.CreateSubject(ctx, tx, name, slug)
		if err != nil {
			return err
		}
		if _, err := repo.EnsureSequence(ctx, tx, subj.ID, 1); err != nil {
			return err
		}
		out = subj
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrSubjectExists
	}
	if err != nil {
		return nil, persistence("create subject", err)
	}
	return out, nil
}

// CreateTopic adds a topic at position seq of subjectID. data is optional
// generator input.
func (s *CatalogService) CreateTopic(ctx context.Context, subjectID uint, seq int, title string, data datatypes.JSON) (*domain.Topic, error) {
	tr := otel.Tracer("services/CatalogService")
	ctx, span := tr.Start(ctx, "CreateTopic",
		trace.WithAttributes(attribute.Int64("subject.id", int64(subjectID)), attribute.Int("sequence", seq)),
	)
	defer span.End()

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if seq < 1 {
		return nil, ErrInvalidSequence
	}
	if err := s.requireSubject(ctx, subjectID); err != nil {
		return nil, err
	}

	t, err := repo.CreateTopic(ctx, s.DB, subjectID, seq, title, data)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrTopicExists
	}
	if err != nil {
		return nil, persistence("create topic", err)
	}
	return t, nil
}

// SetSequence points the counter of subjectID at seq. The next broadcast
// sends the topic at that position.
func (s *CatalogService) SetSequence(ctx context.Context, subjectID uint, seq int) (*domain.SubjectSequence, error) {
	tr := otel.Tracer("services/CatalogService")
	ctx, span := tr.Start(ctx, "SetSequence",
		trace.WithAttributes(attribute.Int64("subject.id", int64(subjectID)), attribute.Int("sequence", seq)),
	)
	defer span.End()

	if seq < 1 {
		return nil, ErrInvalidSequence
	}
	if err := s.requireSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	out, err := repo.SetSequence(ctx, s.DB, subjectID, seq)
	if err != nil {
		return nil, persistence("set sequence", err)
	}
	logFrom(ctx).Info().Uint("subject_id", subjectID).Int("sequence", seq).Msg("sequence set")
	return out, nil
}

func (s *CatalogService) requireSubject(ctx context.Context, subjectID uint) error {
	if _, err := repo.GetSubject(ctx, s.DB, subjectID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrSubjectNotFound
		}
		return persistence("get subject", err)
	}
	return nil
}
