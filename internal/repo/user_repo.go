// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for users.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// foldEmail is the stored form of an address. It matches the LOWER()
// comparison used by GetUserByEmail.
func foldEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts a user with a generated UUID. The email is stored
// lower-cased.
func CreateUser(ctx context.Context, db *gorm.DB, email, name string) (*domain.User, error) {
	u := &domain.User{
		ID:        uuid.NewString(),
		Email:     foldEmail(email),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by id.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by email address, ignoring ASCII case.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("LOWER(email) = ?", foldEmail(email)).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// EnsureUserByEmail returns the user with email, creating it when missing.
// An existing row matches regardless of case. New rows are stored folded and
// inserted with skip-on-conflict so concurrent callers converge on one row.
func EnsureUserByEmail(ctx context.Context, db *gorm.DB, email, name string) (*domain.User, error) {
	if u, err := GetUserByEmail(ctx, db, email); err == nil {
		return u, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	u := &domain.User{
		ID:        uuid.NewString(),
		Email:     foldEmail(email),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(u).Error
	if err != nil {
		return nil, err
	}
	return GetUserByEmail(ctx, db, email)
}

// ListUsersAfter returns up to limit users with id greater than afterID,
// ordered by id. It drives keyset pagination over the whole user table.
func ListUsersAfter(ctx context.Context, db *gorm.DB, afterID string, limit int) ([]domain.User, error) {
	var out []domain.User
	q := db.WithContext(ctx).Model(&domain.User{})
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	err := q.Order("id ASC").Limit(limit).Find(&out).Error
	return out, err
}
