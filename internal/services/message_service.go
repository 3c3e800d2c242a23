// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the lifecycle of messages. It validates content, runs the policy
// evaluator before every write, persists the message and the conversation
// activity bump in one transaction, and filters soft-deleted rows at read
// time.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// conversation/principal identifiers and pagination parameters where
// applicable.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/grovechat/grove/internal/authz"
	"github.com/grovechat/grove/internal/domain"
	"github.com/grovechat/grove/internal/repo"
	"github.com/grovechat/grove/pkg/apperr"
)

// MessageService coordinates message persistence and policy enforcement.
type MessageService struct {
	DB     *gorm.DB
	Policy *authz.Evaluator

	// MaxContentRunes caps message content length; 0 disables the check.
	MaxContentRunes int
}

// NewMessageService constructs a MessageService with defaults.
func NewMessageService(db *gorm.DB, policy *authz.Evaluator) *MessageService {
	return &MessageService{DB: db, Policy: policy, MaxContentRunes: 4000}
}

// Send appends a message to a conversation on behalf of principal.
//
// The policy requires the acting principal to equal the sender AND to be a
// current participant, so a non-member cannot forge a member's sender id.
// The policy check, the message insert, and the conversation updated_at bump
// share one transaction: the membership the evaluator sees is the membership
// the insert commits against. CreatedAt is set server-side.
func (s *MessageService) Send(ctx context.Context, principal, conversationID, content, msgType string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("principal.id", principal),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrContentTooLong
	}
	if msgType == "" {
		msgType = domain.MessageText
	}
	if !domain.ValidMessageType(msgType) {
		return nil, ErrInvalidMessageType
	}

	if _, err := repo.GetConversation(ctx, s.DB, conversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	var msg *domain.Message
	err := withRetry(ctx, func() error {
		return repo.Transact(ctx, s.DB, func(ctx context.Context, tx *gorm.DB) error {
			candidate := &domain.Message{ConversationID: conversationID, SenderID: principal}
			if ok, err := s.Policy.WithDB(tx).CanInsertMessage(ctx, principal, candidate); err != nil {
				return apperr.Internal("policy check failed", err)
			} else if !ok {
				return ErrUnauthorized
			}
			m, err := repo.CreateMessage(ctx, tx, conversationID, principal, content, msgType)
			if err != nil {
				return err
			}
			if err := repo.TouchConversation(ctx, tx, conversationID, m.CreatedAt); err != nil {
				return err
			}
			msg = m
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListPage returns a page of visible messages in creation order. A principal
// that is not a participant gets an empty page and a zero total, never an
// authorization error: unauthorized reads are silent.
func (s *MessageService) ListPage(ctx context.Context, principal, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	member, err := repo.IsParticipant(ctx, s.DB, conversationID, principal)
	if err != nil {
		return nil, 0, err
	}
	if !member {
		return []domain.Message{}, 0, nil
	}

	total, err := repo.CountMessages(ctx, s.DB, conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := repo.ListMessagesPage(ctx, s.DB, conversationID, offset, pageSize)
	return items, total, err
}

// Edit replaces the content of a message. Only the original sender may edit;
// EditedAt is stamped, and no edit history is retained.
func (s *MessageService) Edit(ctx context.Context, principal, messageID, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrContentTooLong
	}

	msg, err := s.visibleMessage(ctx, principal, messageID)
	if err != nil {
		return nil, err
	}

	if ok, err := s.Policy.CanUpdateMessage(ctx, principal, msg); err != nil {
		return nil, apperr.Internal("policy check failed", err)
	} else if !ok {
		return nil, ErrUnauthorized
	}

	if err := withRetry(ctx, func() error {
		return repo.UpdateMessageContent(ctx, s.DB, messageID, content, nowUTC())
	}); err != nil {
		return nil, err
	}
	return repo.GetMessage(ctx, s.DB, messageID)
}

// Delete soft-deletes a message. Only the sender may delete; repeating the
// call is a no-op that still succeeds, and other fields are untouched.
func (s *MessageService) Delete(ctx context.Context, principal, messageID string) error {
	msg, err := repo.GetMessage(ctx, s.DB, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return err
	}

	if ok, err := s.Policy.CanUpdateMessage(ctx, principal, msg); err != nil {
		return apperr.Internal("policy check failed", err)
	} else if !ok {
		return ErrUnauthorized
	}

	return withRetry(ctx, func() error {
		return repo.SoftDeleteMessage(ctx, s.DB, messageID)
	})
}

// visibleMessage loads a message and hides it (not-found) from principals
// outside its conversation or when soft-deleted.
func (s *MessageService) visibleMessage(ctx context.Context, principal, messageID string) (*domain.Message, error) {
	msg, err := repo.GetMessage(ctx, s.DB, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if msg.IsDeleted {
		return nil, ErrMessageNotFound
	}
	if ok, err := s.Policy.CanReadMessage(ctx, principal, msg); err != nil {
		return nil, apperr.Internal("policy check failed", err)
	} else if !ok {
		return nil, ErrMessageNotFound
	}
	return msg, nil
}
