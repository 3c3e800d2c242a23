// Package authz is the access-control core: it decides ALLOW or DENY for
// every (principal, operation, row) triple before the service layer touches
// the store.
//
// The package is built as two tiers. The public Evaluator surface holds the
// per-entity rules; the unexported privileged predicates (memberOf,
// creatorOf) answer "is this principal a member of that conversation" by
// querying the participants table directly. That split is deliberate: if a
// membership test were expressed as a policy-filtered read of the
// participants table, the participant read rule would need to evaluate
// itself on an overlapping row set and recurse without bound. The privileged
// lookups bypass the policy surface for exactly that one query and expose
// only a boolean, which keeps every rule non-reentrant.
//
// Decisions are side-effect-free. The acting principal is always passed in
// explicitly; there is no ambient "current user" state, which keeps the
// evaluator pure and testable.
package authz

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/grovechat/grove/internal/domain"
	"github.com/grovechat/grove/internal/repo"
)

// Anonymous is the principal of an unauthenticated caller. All writes DENY
// for it; reads behave as a principal that participates in nothing.
const Anonymous = ""

// Evaluator decides row-level access. The embedded DB handle is used only by
// the privileged predicates; rule methods never mutate state.
type Evaluator struct {
	db *gorm.DB
}

// NewEvaluator returns an Evaluator backed by the given store handle.
func NewEvaluator(db *gorm.DB) *Evaluator {
	return &Evaluator{db: db}
}

// WithDB returns an Evaluator bound to a different handle, typically a
// transaction, so decisions inside a transaction see its uncommitted rows.
func (e *Evaluator) WithDB(db *gorm.DB) *Evaluator {
	return &Evaluator{db: db}
}

//
// Privileged predicates. Direct table lookups, never policy-filtered, never
// exported. The boolean result is all that crosses back into rule code.
//

// memberOf reports whether principal currently participates in the
// conversation.
func (e *Evaluator) memberOf(ctx context.Context, conversationID, principal string) (bool, error) {
	if principal == Anonymous || conversationID == "" {
		return false, nil
	}
	return repo.IsParticipant(ctx, e.db, conversationID, principal)
}

// creatorOf reports whether principal created the conversation. A missing
// conversation or a NULL creator is simply "no".
func (e *Evaluator) creatorOf(ctx context.Context, conversationID, principal string) (bool, error) {
	if principal == Anonymous || conversationID == "" {
		return false, nil
	}
	conv, err := repo.GetConversation(ctx, e.db, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return conv.CreatedBy != nil && *conv.CreatedBy == principal, nil
}

//
// Profile rules. Profiles are globally visible; only the owner writes.
//

// CanReadProfile always allows: profiles are public identity.
func (e *Evaluator) CanReadProfile(context.Context, string, *domain.Profile) (bool, error) {
	return true, nil
}

// CanInsertProfile allows a principal to create only its own profile row.
func (e *Evaluator) CanInsertProfile(_ context.Context, principal string, row *domain.Profile) (bool, error) {
	return principal != Anonymous && row.ID == principal, nil
}

// CanUpdateProfile allows only the owning principal.
func (e *Evaluator) CanUpdateProfile(_ context.Context, principal string, row *domain.Profile) (bool, error) {
	return principal != Anonymous && row.ID == principal, nil
}

//
// Conversation rules.
//

// CanReadConversation allows current participants only. The membership test
// goes through the privileged lookup, not through the participant read rule.
func (e *Evaluator) CanReadConversation(ctx context.Context, principal string, row *domain.Conversation) (bool, error) {
	return e.memberOf(ctx, row.ID, principal)
}

// CanInsertConversation allows a principal to create a conversation only
// naming itself as creator.
func (e *Evaluator) CanInsertConversation(_ context.Context, principal string, row *domain.Conversation) (bool, error) {
	return principal != Anonymous && row.CreatedBy != nil && *row.CreatedBy == principal, nil
}

//
// Participant rules.
//

// CanReadParticipant allows principals that participate in the row's
// conversation, evaluated via the privileged lookup rather than by
// re-invoking this same rule.
func (e *Evaluator) CanReadParticipant(ctx context.Context, principal string, row *domain.Participant) (bool, error) {
	return e.memberOf(ctx, row.ConversationID, principal)
}

// CanInsertParticipant allows a principal to add itself, or the conversation
// creator to add anyone.
func (e *Evaluator) CanInsertParticipant(ctx context.Context, principal string, row *domain.Participant) (bool, error) {
	if principal == Anonymous {
		return false, nil
	}
	if row.UserID == principal {
		return true, nil
	}
	return e.creatorOf(ctx, row.ConversationID, principal)
}

//
// Message rules.
//

// CanReadMessage allows current participants of the message's conversation.
// Membership is tested at read time only: a removed participant's past
// messages remain visible to remaining members.
func (e *Evaluator) CanReadMessage(ctx context.Context, principal string, row *domain.Message) (bool, error) {
	return e.memberOf(ctx, row.ConversationID, principal)
}

// CanInsertMessage requires both conditions: the acting principal is the
// named sender AND currently participates in the conversation. Sender
// equality alone is not enough, so a non-participant cannot forge a
// participant's sender id.
func (e *Evaluator) CanInsertMessage(ctx context.Context, principal string, row *domain.Message) (bool, error) {
	if principal == Anonymous || row.SenderID != principal {
		return false, nil
	}
	return e.memberOf(ctx, row.ConversationID, principal)
}

// CanUpdateMessage allows only the original sender (edits and soft deletes).
func (e *Evaluator) CanUpdateMessage(_ context.Context, principal string, row *domain.Message) (bool, error) {
	return principal != Anonymous && row.SenderID == principal, nil
}
