// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model. Messages are soft-deleted only: rows are flagged is_deleted and
// filtered at read time, never removed.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grovechat/grove/internal/domain"
)

// CreateMessage inserts a new message row with a generated UUID primary key.
// CreatedAt is set server-side in UTC.
func CreateMessage(ctx context.Context, db *gorm.DB, conversationID, senderID, content, msgType string) (*domain.Message, error) {
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           msgType,
		CreatedAt:      time.Now().UTC(),
	}
	return m, db.WithContext(ctx).Create(m).Error
}

// GetMessage fetches a message by ID, or ErrNotFound. Soft-deleted rows are
// still returned here: callers that must hide them filter on IsDeleted.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages returns the number of visible (not soft-deleted) messages in
// a conversation. A raw COUNT is used so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND is_deleted = ?", conversationID, false).
		Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice of visible messages ordered
// deterministically (CreatedAt ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, conversationID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateMessageContent replaces the content of a message and stamps
// edited_at. The model carries its primary key so the change feed can
// capture before and after row images. Returns ErrNotFound when no row
// matched.
func UpdateMessageContent(ctx context.Context, db *gorm.DB, id, content string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{ID: id}).
		Updates(map[string]any{
			"content":   content,
			"edited_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SoftDeleteMessage flags a message deleted. The write is idempotent: a row
// already flagged is matched again and left otherwise unchanged, so calling
// twice is safe and both calls report success.
func SoftDeleteMessage(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{ID: id}).
		Update("is_deleted", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish "missing" from "already deleted": an existing row
		// matches the update even when the flag is already set, so zero
		// rows here means the id does not exist.
		return gorm.ErrRecordNotFound
	}
	return nil
}
