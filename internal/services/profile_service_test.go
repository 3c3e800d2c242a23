package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/grovechat/grove/internal/authz"
	"github.com/grovechat/grove/internal/domain"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.Profile{}, &domain.Conversation{}, &domain.Participant{}, &domain.Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newProfileService(t *testing.T) *ProfileService {
	t.Helper()
	db := newServiceDB(t)
	return NewProfileService(db, authz.NewEvaluator(db))
}

func strPtr(s string) *string { return &s }

func TestProvision_DerivesUsernameFromEmail(t *testing.T) {
	s := newProfileService(t)

	p, err := s.Provision(context.Background(), "u1", "Alice@example.com", "")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if p.Username != "alice" {
		t.Fatalf("expected case-folded local-part username, got %q", p.Username)
	}
	if p.DisplayName != "alice" {
		t.Fatalf("display name should default to the username, got %q", p.DisplayName)
	}
	if p.Status != domain.StatusOnline {
		t.Fatalf("expected initial status online, got %q", p.Status)
	}
}

func TestProvision_RequestedUsernameWins(t *testing.T) {
	s := newProfileService(t)

	p, err := s.Provision(context.Background(), "u1", "alice@example.com", "WonderLand")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if p.Username != "wonderland" {
		t.Fatalf("expected folded requested handle, got %q", p.Username)
	}
}

func TestProvision_DuplicateUsername(t *testing.T) {
	s := newProfileService(t)

	if _, err := s.Provision(context.Background(), "u1", "alice@example.com", ""); err != nil {
		t.Fatalf("first provision: %v", err)
	}
	_, err := s.Provision(context.Background(), "u2", "alice@other.org", "")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestProvision_AnonymousAndEmptyInputs(t *testing.T) {
	s := newProfileService(t)

	if _, err := s.Provision(context.Background(), authz.Anonymous, "a@b.c", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for anonymous, got %v", err)
	}
	if _, err := s.Provision(context.Background(), "u1", "", ""); !errors.Is(err, ErrEmptyUsername) {
		t.Fatalf("expected ErrEmptyUsername, got %v", err)
	}
	// "@domain" has no local-part.
	if _, err := s.Provision(context.Background(), "u1", "@example.com", ""); !errors.Is(err, ErrEmptyUsername) {
		t.Fatalf("expected ErrEmptyUsername for missing local-part, got %v", err)
	}
}

func TestProfileUpdate_OwnerOnly(t *testing.T) {
	s := newProfileService(t)
	if _, err := s.Provision(context.Background(), "u1", "alice@example.com", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := s.Update(context.Background(), "u2", "u1", ProfilePatch{DisplayName: strPtr("Hax")})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-owner, got %v", err)
	}
	_, err = s.Update(context.Background(), authz.Anonymous, "u1", ProfilePatch{DisplayName: strPtr("Hax")})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for anonymous, got %v", err)
	}

	p, err := s.Update(context.Background(), "u1", "u1", ProfilePatch{DisplayName: strPtr("Alice L.")})
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if p.DisplayName != "Alice L." {
		t.Fatalf("display name not applied: %+v", p)
	}
}

func TestProfileUpdate_StatusBumpsLastSeen(t *testing.T) {
	s := newProfileService(t)
	seeded, err := s.Provision(context.Background(), "u1", "alice@example.com", "")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	p, err := s.Update(context.Background(), "u1", "u1", ProfilePatch{Status: strPtr(domain.StatusAway)})
	if err != nil {
		t.Fatalf("status update: %v", err)
	}
	if p.Status != domain.StatusAway {
		t.Fatalf("status not applied: %+v", p)
	}
	if !p.LastSeen.After(seeded.LastSeen) {
		t.Fatalf("LastSeen should advance on status change: was %v, now %v", seeded.LastSeen, p.LastSeen)
	}

	if _, err := s.Update(context.Background(), "u1", "u1", ProfilePatch{Status: strPtr("invisible")}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestProfileUpdate_EmptyPatchIsANoOp(t *testing.T) {
	s := newProfileService(t)
	if _, err := s.Provision(context.Background(), "u1", "alice@example.com", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	p, err := s.Update(context.Background(), "u1", "u1", ProfilePatch{})
	if err != nil || p.Username != "alice" {
		t.Fatalf("empty patch should return the row unchanged, got (%+v, %v)", p, err)
	}
}

func TestProfileGet_NotFound(t *testing.T) {
	s := newProfileService(t)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	if _, err := s.Update(context.Background(), "u1", "missing", ProfilePatch{}); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound on update, got %v", err)
	}
}

func TestProfileList_GloballyVisible(t *testing.T) {
	s := newProfileService(t)
	_, _ = s.Provision(context.Background(), "u1", "zoe@example.com", "")
	_, _ = s.Provision(context.Background(), "u2", "alice@example.com", "")

	out, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out) != 2 || out[0].Username != "alice" {
		t.Fatalf("unexpected listing: %+v", out)
	}
}
