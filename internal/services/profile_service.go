// Package services – ProfileService
//
// This file implements the ProfileService, which owns profile provisioning
// and owner-only updates. Provisioning is the hook the identity provider
// fires once per new principal: it derives a username from the requested
// handle or the email local-part, creates exactly one profile row, and
// surfaces a conflict when the derived username is already taken. Updates
// are policy-checked partial writes.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"golang.org/x/text/cases"

	"github.com/grovechat/grove/internal/authz"
	"github.com/grovechat/grove/internal/domain"
	"github.com/grovechat/grove/internal/repo"
	"github.com/grovechat/grove/pkg/apperr"
)

// ProfileService provides profile provisioning, lookup, and owner updates.
type ProfileService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Policy decides row-level access for every write.
	Policy *authz.Evaluator
}

// NewProfileService constructs a ProfileService.
func NewProfileService(db *gorm.DB, policy *authz.Evaluator) *ProfileService {
	return &ProfileService{DB: db, Policy: policy}
}

// usernameFolder lowercases usernames with full Unicode case folding so that
// handles compare caselessly regardless of script.
var usernameFolder = cases.Fold()

// Provision creates the profile row for a newly created principal.
//
// Username resolution: requestedUsername when present, otherwise the email
// local-part. The derived handle is case-folded. DisplayName defaults to the
// same value. A duplicate handle fails with ErrUsernameTaken; the identity
// provider is expected to surface that to the registrant.
func (s *ProfileService) Provision(ctx context.Context, principalID, email, requestedUsername string) (*domain.Profile, error) {
	if principalID == authz.Anonymous {
		return nil, ErrUnauthorized
	}

	username := strings.TrimSpace(requestedUsername)
	if username == "" {
		username = localPart(email)
	}
	username = usernameFolder.String(username)
	if username == "" {
		return nil, ErrEmptyUsername
	}

	p := &domain.Profile{
		ID:          principalID,
		Username:    username,
		DisplayName: username,
		Status:      domain.StatusOnline,
	}

	if ok, err := s.Policy.CanInsertProfile(ctx, principalID, p); err != nil {
		return nil, apperr.Internal("policy check failed", err)
	} else if !ok {
		return nil, ErrUnauthorized
	}

	if err := repo.CreateProfile(ctx, s.DB, p); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return p, nil
}

// Get fetches a profile by ID. Profile reads are unconditional.
func (s *ProfileService) Get(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := repo.GetProfile(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return p, nil
}

// List returns all profiles. Globally visible, no principal scoping.
func (s *ProfileService) List(ctx context.Context) ([]domain.Profile, error) {
	return repo.ListProfiles(ctx, s.DB)
}

// ProfilePatch carries the owner-updatable profile fields. Nil pointers
// leave the stored value untouched.
type ProfilePatch struct {
	DisplayName *string
	AvatarURL   *string
	Status      *string
}

// Update applies a partial update to profileID on behalf of principal.
// Only the owning principal may write; a status change also bumps LastSeen.
func (s *ProfileService) Update(ctx context.Context, principal, profileID string, patch ProfilePatch) (*domain.Profile, error) {
	p, err := repo.GetProfile(ctx, s.DB, profileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	if ok, err := s.Policy.CanUpdateProfile(ctx, principal, p); err != nil {
		return nil, apperr.Internal("policy check failed", err)
	} else if !ok {
		return nil, ErrUnauthorized
	}

	fields := map[string]any{}
	if patch.DisplayName != nil {
		fields["display_name"] = strings.TrimSpace(*patch.DisplayName)
	}
	if patch.AvatarURL != nil {
		fields["avatar_url"] = strings.TrimSpace(*patch.AvatarURL)
	}
	if patch.Status != nil {
		if !domain.ValidStatus(*patch.Status) {
			return nil, ErrInvalidStatus
		}
		fields["status"] = *patch.Status
		fields["last_seen"] = nowUTC()
	}
	if len(fields) == 0 {
		return p, nil
	}

	if err := withRetry(ctx, func() error {
		return repo.UpdateProfile(ctx, s.DB, profileID, fields)
	}); err != nil {
		return nil, err
	}
	return repo.GetProfile(ctx, s.DB, profileID)
}

// localPart extracts the part of an email address before '@'.
func localPart(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return ""
}
