// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation and Participant models.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grovechat/grove/internal/domain"
)

// CreateConversation inserts a new conversation row with a generated UUID
// primary key and UTC timestamp.
func CreateConversation(ctx context.Context, db *gorm.DB, convType string, name *string, createdBy string) (*domain.Conversation, error) {
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      convType,
		CreatedBy: &createdBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetConversation fetches a conversation by ID, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversationsForUser returns the conversations the user participates
// in, most recently active first.
func ListConversationsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Joins("JOIN participants ON participants.conversation_id = conversations.id").
		Where("participants.user_id = ?", userID).
		Order("conversations.updated_at desc").
		Find(&out).Error
	return out, err
}

// TouchConversation bumps updated_at on a message append. The model carries
// its primary key so the change feed can capture row images.
func TouchConversation(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{ID: id}).
		Update("updated_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AddParticipant inserts a membership row. Returns ErrDuplicate when the
// (conversation, user) pair already exists.
func AddParticipant(ctx context.Context, db *gorm.DB, conversationID, userID string) (*domain.Participant, error) {
	p := &domain.Participant{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		UserID:         userID,
		JoinedAt:       time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return p, nil
}

// ListParticipants returns the membership rows of a conversation ordered by
// join time.
func ListParticipants(ctx context.Context, db *gorm.DB, conversationID string) ([]domain.Participant, error) {
	var out []domain.Participant
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("joined_at asc").
		Find(&out).Error
	return out, err
}

// ListParticipationsByUser returns every membership row of one user.
func ListParticipationsByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Participant, error) {
	var out []domain.Participant
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&out).Error
	return out, err
}

// IsParticipant reports whether userID is a member of conversationID. This
// is the privileged membership lookup used by the authorization layer; it
// queries the participants table directly and is never itself subject to a
// policy check.
func IsParticipant(ctx context.Context, db *gorm.DB, conversationID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&n).Error
	return n > 0, err
}

// CountParticipants returns the membership size of a conversation.
func CountParticipants(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Participant{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	return n, err
}
