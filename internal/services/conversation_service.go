// Package services – ConversationService
//
// This file implements the ConversationService, which manages conversation
// lifecycle and membership. Creating a conversation and seeding the creator's
// participant row happens in one transaction, so a crash cannot leave a
// conversation without its creator. Additional members are evaluated and
// inserted row by row: a batch may partially succeed, and each failure is
// reported per member rather than aborting the rest.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/grovechat/grove/internal/authz"
	"github.com/grovechat/grove/internal/domain"
	"github.com/grovechat/grove/internal/repo"
	"github.com/grovechat/grove/pkg/apperr"
)

// ConversationService provides conversation creation, listing, DM
// de-duplication, and membership management.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Policy decides row-level access.
	Policy *authz.Evaluator

	// NameMaxLen caps group names by rune length.
	NameMaxLen int
}

// NewConversationService constructs a ConversationService with defaults.
func NewConversationService(db *gorm.DB, policy *authz.Evaluator) *ConversationService {
	return &ConversationService{DB: db, Policy: policy, NameMaxLen: 255}
}

// MemberResult reports the outcome of one member insert from a batch.
type MemberResult struct {
	UserID string `json:"user_id"`
	Err    error  `json:"-"`
}

// Create opens a new conversation of the given type on behalf of principal.
//
// The conversation row and the creator's participant row are written in a
// single transaction. memberIDs are then added one by one under the
// participant-insert policy; failures (denied, duplicate, unknown profile)
// are reported per member in the second return value and do not roll back
// the conversation.
//
// DM conversations require exactly one other member and carry no name.
func (s *ConversationService) Create(ctx context.Context, principal, convType string, name string, memberIDs []string) (*domain.Conversation, []MemberResult, error) {
	if !domain.ValidConversationType(convType) {
		return nil, nil, ErrInvalidConversationType
	}

	members := dedupeMembers(memberIDs, principal)
	if convType == domain.ConversationDM && len(members) != 1 {
		return nil, nil, ErrDMMembers
	}

	var namePtr *string
	if convType == domain.ConversationGroup {
		if n := s.clipName(strings.TrimSpace(name)); n != "" {
			namePtr = &n
		}
	}

	candidate := &domain.Conversation{Type: convType, Name: namePtr, CreatedBy: &principal}
	if ok, err := s.Policy.CanInsertConversation(ctx, principal, candidate); err != nil {
		return nil, nil, apperr.Internal("policy check failed", err)
	} else if !ok {
		return nil, nil, ErrUnauthorized
	}

	var conv *domain.Conversation
	err := repo.Transact(ctx, s.DB, func(ctx context.Context, tx *gorm.DB) error {
		c, err := repo.CreateConversation(ctx, tx, convType, namePtr, principal)
		if err != nil {
			return err
		}
		if _, err := repo.AddParticipant(ctx, tx, c.ID, principal); err != nil {
			return err
		}
		conv = c
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	// Per-row evaluation: the batch is not atomic by design.
	results := make([]MemberResult, 0, len(members))
	for _, uid := range members {
		results = append(results, MemberResult{
			UserID: uid,
			Err:    s.addMember(ctx, principal, conv.ID, uid),
		})
	}
	return conv, results, nil
}

// AddParticipant adds userID to a conversation on behalf of principal.
// Policy: a principal may insert its own membership, or the conversation's
// creator may add anyone.
func (s *ConversationService) AddParticipant(ctx context.Context, principal, conversationID, userID string) (*domain.Participant, error) {
	if _, err := repo.GetConversation(ctx, s.DB, conversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if err := s.addMember(ctx, principal, conversationID, userID); err != nil {
		return nil, err
	}
	parts, err := repo.ListParticipants(ctx, s.DB, conversationID)
	if err != nil {
		return nil, err
	}
	for i := range parts {
		if parts[i].UserID == userID {
			return &parts[i], nil
		}
	}
	return nil, ErrConversationNotFound
}

// addMember runs the policy check and insert for one membership row.
func (s *ConversationService) addMember(ctx context.Context, principal, conversationID, userID string) error {
	row := &domain.Participant{ConversationID: conversationID, UserID: userID}
	if ok, err := s.Policy.CanInsertParticipant(ctx, principal, row); err != nil {
		return apperr.Internal("policy check failed", err)
	} else if !ok {
		return ErrUnauthorized
	}
	if _, err := repo.AddParticipant(ctx, s.DB, conversationID, userID); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrAlreadyParticipant
		}
		return err
	}
	return nil
}

// Get fetches a conversation visible to principal. A conversation the
// principal does not participate in reports not-found, never a permission
// error, so its existence is not leaked.
func (s *ConversationService) Get(ctx context.Context, principal, id string) (*domain.Conversation, error) {
	c, err := repo.GetConversation(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if ok, err := s.Policy.CanReadConversation(ctx, principal, c); err != nil {
		return nil, apperr.Internal("policy check failed", err)
	} else if !ok {
		return nil, ErrConversationNotFound
	}
	return c, nil
}

// List returns the conversations principal participates in, most recently
// active first. The membership join is the read policy applied as a filter.
func (s *ConversationService) List(ctx context.Context, principal string) ([]domain.Conversation, error) {
	if principal == authz.Anonymous {
		return []domain.Conversation{}, nil
	}
	return repo.ListConversationsForUser(ctx, s.DB, principal)
}

// Participants lists the membership of a conversation. Non-members get an
// empty slice, not an error: participant reads deny silently.
func (s *ConversationService) Participants(ctx context.Context, principal, conversationID string) ([]domain.Participant, error) {
	member, err := repo.IsParticipant(ctx, s.DB, conversationID, principal)
	if err != nil {
		return nil, err
	}
	if !member {
		return []domain.Participant{}, nil
	}
	return repo.ListParticipants(ctx, s.DB, conversationID)
}

// FindDM looks up the existing DM between principal and otherID before a new
// one is created: membership rows of both principals are grouped by
// conversation, and the dm conversation whose complete participant set is
// exactly the pair wins. Returns ErrConversationNotFound when no such
// conversation exists. Concurrent creation by both parties can still race
// and produce duplicates; this lookup is best-effort de-duplication, not a
// constraint.
func (s *ConversationService) FindDM(ctx context.Context, principal, otherID string) (*domain.Conversation, error) {
	if principal == authz.Anonymous || otherID == "" || otherID == principal {
		return nil, ErrConversationNotFound
	}

	mine, err := repo.ListParticipationsByUser(ctx, s.DB, principal)
	if err != nil {
		return nil, err
	}
	theirs, err := repo.ListParticipationsByUser(ctx, s.DB, otherID)
	if err != nil {
		return nil, err
	}

	other := make(map[string]struct{}, len(theirs))
	for _, p := range theirs {
		other[p.ConversationID] = struct{}{}
	}

	for _, p := range mine {
		if _, shared := other[p.ConversationID]; !shared {
			continue
		}
		conv, err := repo.GetConversation(ctx, s.DB, p.ConversationID)
		if err != nil {
			continue
		}
		if conv.Type != domain.ConversationDM {
			continue
		}
		n, err := repo.CountParticipants(ctx, s.DB, conv.ID)
		if err != nil {
			return nil, err
		}
		if n == 2 {
			return conv, nil
		}
	}
	return nil, ErrConversationNotFound
}

// clipName truncates a group name to the configured maximum rune length.
func (s *ConversationService) clipName(name string) string {
	if s.NameMaxLen > 0 && len([]rune(name)) > s.NameMaxLen {
		return string([]rune(name)[:s.NameMaxLen])
	}
	return name
}

// dedupeMembers drops duplicates and the principal itself from a member
// list, preserving order.
func dedupeMembers(ids []string, principal string) []string {
	seen := map[string]struct{}{principal: {}}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
