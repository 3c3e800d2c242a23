// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Profile
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a profile is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Username uniqueness violations surface as ErrDuplicate.
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/grovechat/grove/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a uniqueness violation (duplicate username,
// duplicate membership, duplicate idempotency key).
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation recognizes unique-constraint failures from the pure-Go
// SQLite driver, which often reports them as plain-text errors.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// CreateProfile inserts a new profile row. The caller supplies the ID (it
// equals the identity provider's subject, never generated here). Returns
// ErrDuplicate when the username or ID is already taken.
func CreateProfile(ctx context.Context, db *gorm.DB, p *domain.Profile) error {
	if p.Status == "" {
		p.Status = domain.StatusOnline
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.LastSeen.IsZero() {
		p.LastSeen = now
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetProfile fetches a profile by ID, or ErrNotFound.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfileByUsername fetches a profile by unique username, or ErrNotFound.
func GetProfileByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("username = ?", username).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfiles returns all profiles ordered by username ascending. Profiles
// are globally visible, so no principal scoping applies here.
func ListProfiles(ctx context.Context, db *gorm.DB) ([]domain.Profile, error) {
	var out []domain.Profile
	err := db.WithContext(ctx).Order("username asc").Find(&out).Error
	return out, err
}

// UpdateProfile applies a partial update to the profile identified by id.
// The model carries its primary key so the change feed can capture before
// and after row images. Returns ErrNotFound when no row matched.
func UpdateProfile(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Profile{ID: id}).
		Updates(fields)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteProfile removes a profile row. Participant rows cascade at the
// engine level (PRAGMA foreign_keys=ON).
func DeleteProfile(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Delete(&domain.Profile{ID: id})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
