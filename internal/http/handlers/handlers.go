// Handler wiring.
//
// Handlers groups the HTTP endpoints for profiles, conversations,
// participants, and messages. It depends on abstract service interfaces to
// keep transport concerns separate from business logic. All service methods
// take the acting principal explicitly; handlers never consult ambient
// identity state beyond the middleware-resolved principal.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/grovechat/grove/internal/authz"
	"github.com/grovechat/grove/internal/domain"
	"github.com/grovechat/grove/internal/http/middleware"
	"github.com/grovechat/grove/internal/notifier"
	"github.com/grovechat/grove/internal/services"
)

// ProfileService defines profile provisioning and identity operations
// consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ProfileService interface {
	// Provision creates the profile row for a newly created principal.
	Provision(ctx context.Context, principalID, email, requestedUsername string) (*domain.Profile, error)
	// Get fetches a profile by id.
	Get(ctx context.Context, id string) (*domain.Profile, error)
	// List returns all profiles.
	List(ctx context.Context) ([]domain.Profile, error)
	// Update applies a partial, owner-only update.
	Update(ctx context.Context, principal, profileID string, patch services.ProfilePatch) (*domain.Profile, error)
}

// ConversationService defines conversation lifecycle and membership
// operations consumed by HTTP handlers.
type ConversationService interface {
	// Create opens a conversation and seeds its membership.
	Create(ctx context.Context, principal, convType, name string, memberIDs []string) (*domain.Conversation, []services.MemberResult, error)
	// Get fetches a conversation visible to the principal.
	Get(ctx context.Context, principal, id string) (*domain.Conversation, error)
	// List returns the principal's conversations.
	List(ctx context.Context, principal string) ([]domain.Conversation, error)
	// FindDM returns the existing DM between principal and another user.
	FindDM(ctx context.Context, principal, otherID string) (*domain.Conversation, error)
	// AddParticipant adds a member to a conversation.
	AddParticipant(ctx context.Context, principal, conversationID, userID string) (*domain.Participant, error)
	// Participants lists a conversation's membership.
	Participants(ctx context.Context, principal, conversationID string) ([]domain.Participant, error)
}

// MessageService defines message operations consumed by HTTP handlers.
type MessageService interface {
	// Send appends a message to a conversation.
	Send(ctx context.Context, principal, conversationID, content, msgType string) (*domain.Message, error)
	// ListPage returns a page of visible messages and the total count.
	ListPage(ctx context.Context, principal, conversationID string, page, pageSize int) ([]domain.Message, int64, error)
	// Edit replaces message content (sender only).
	Edit(ctx context.Context, principal, messageID, content string) (*domain.Message, error)
	// Delete soft-deletes a message (sender only).
	Delete(ctx context.Context, principal, messageID string) error
}

// Handlers groups HTTP endpoints for the chat API.
type Handlers struct {
	profileSvc ProfileService
	convSvc    ConversationService
	msgSvc     MessageService
	hub        *notifier.Hub
	policy     *authz.Evaluator
}

// New constructs a Handlers instance bound to the given services, the
// change-feed hub used by the subscribe endpoint, and the policy evaluator
// used to filter streamed events per principal.
func New(profileSvc ProfileService, convSvc ConversationService, msgSvc MessageService, hub *notifier.Hub, policy *authz.Evaluator) *Handlers {
	return &Handlers{profileSvc: profileSvc, convSvc: convSvc, msgSvc: msgSvc, hub: hub, policy: policy}
}

// principal returns the acting principal id resolved by the auth middleware,
// or the empty string for unauthenticated callers. The policy layer treats
// the empty principal as anonymous: all writes deny.
func principal(c *gin.Context) string {
	return middleware.PrincipalFrom(c)
}
