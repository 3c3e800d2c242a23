// Conversation HTTP handlers.
//
// This file exposes REST endpoints for conversation and participant
// resources:
//   - POST   /conversations                        (create)
//   - GET    /conversations                        (list, membership-scoped)
//   - GET    /conversations/{id}                   (fetch)
//   - GET    /conversations/dm/{user_id}           (DM lookup)
//   - POST   /conversations/{id}/participants      (add member)
//   - GET    /conversations/{id}/participants      (list members)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Visibility is enforced below the
// transport: non-members receive empty lists or 404s, never 403s, so the
// existence of a conversation is not leaked.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/grovechat/grove/internal/domain"
)

//
// DTOs
//

// CreateConversationRequest is the JSON payload for opening a conversation.
type CreateConversationRequest struct {
	// Type selects the conversation kind: "dm" or "group".
	Type string `json:"type" binding:"required" example:"group"`
	// Name optionally labels a group conversation; ignored for DMs.
	Name string `json:"name,omitempty" example:"Platform team"`
	// MemberIDs lists the other principals to seed as participants. A DM
	// requires exactly one entry.
	MemberIDs []string `json:"member_ids" example:"bob,carol"`
}

// MemberOutcome reports the per-member result of seeding a conversation.
type MemberOutcome struct {
	UserID string `json:"user_id"`
	Added  bool   `json:"added"`
	Error  string `json:"error,omitempty"`
}

// CreateConversationResponse wraps the created conversation and the outcome
// of each requested membership.
type CreateConversationResponse struct {
	Conversation *domain.Conversation `json:"conversation"`
	Members      []MemberOutcome      `json:"members,omitempty"`
}

// AddParticipantRequest is the JSON payload for adding a member.
type AddParticipantRequest struct {
	// UserID is the principal to add to the conversation.
	UserID string `json:"user_id" binding:"required" example:"bob"`
}

//
// Handlers
//

// CreateConversation godoc
// @ID          createConversation
// @Summary     Create a conversation
// @Description Opens a DM or group conversation. The caller becomes the creator and first participant; remaining members are added individually and reported per entry.
// @Tags        Conversations
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateConversationRequest  true  "Create conversation payload"
//
// @Success     201  {object}  handlers.CreateConversationResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    BearerAuth
// @Router      /conversations [post]
func (h *Handlers) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	conv, results, err := h.convSvc.Create(c.Request.Context(), principal(c), strings.TrimSpace(req.Type), strings.TrimSpace(req.Name), req.MemberIDs)
	if err != nil {
		failErr(c, err)
		return
	}

	resp := CreateConversationResponse{Conversation: conv}
	for _, r := range results {
		out := MemberOutcome{UserID: r.UserID, Added: r.Err == nil}
		if r.Err != nil {
			out.Error = r.Err.Error()
		}
		resp.Members = append(resp.Members, out)
	}
	ok(c, http.StatusCreated, resp)
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations
// @Description Returns the conversations the caller participates in, most recently active first. Anonymous callers receive an empty list.
// @Tags        Conversations
// @Produce     json
//
// @Success     200  {array}   domain.Conversation
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    BearerAuth
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	items, err := h.convSvc.List(c.Request.Context(), principal(c))
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.Conversation{}
	}
	ok(c, http.StatusOK, items)
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Get a conversation
// @Description Returns a conversation the caller participates in. Non-members receive 404 rather than 403.
// @Tags        Conversations
// @Produce     json
//
// @Param       id  path  string  true  "Conversation ID"
//
// @Success     200  {object}  domain.Conversation
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    BearerAuth
// @Router      /conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	conv, err := h.convSvc.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// FindDM godoc
// @ID          findDM
// @Summary     Find an existing DM
// @Description Returns the direct-message conversation between the caller and another user, if one exists. Used by clients to reuse a DM instead of opening a duplicate.
// @Tags        Conversations
// @Produce     json
//
// @Param       user_id  path  string  true  "Other participant's user ID"
//
// @Success     200  {object}  domain.Conversation
// @Failure     404  {object}  handlers.ErrorResponse  "No DM exists"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    BearerAuth
// @Router      /conversations/dm/{user_id} [get]
func (h *Handlers) FindDM(c *gin.Context) {
	conv, err := h.convSvc.FindDM(c.Request.Context(), principal(c), c.Param("user_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// AddParticipant godoc
// @ID          addParticipant
// @Summary     Add a participant
// @Description Adds a user to a conversation. Permitted for the conversation's creator, or for a user adding themselves.
// @Tags        Conversations
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                            true  "Conversation ID"
// @Param       body  body  handlers.AddParticipantRequest    true  "Add participant payload"
//
// @Success     201  {object}  domain.Participant
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Failure     409  {object}  handlers.ErrorResponse  "Already a participant"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    BearerAuth
// @Router      /conversations/{id}/participants [post]
func (h *Handlers) AddParticipant(c *gin.Context) {
	var req AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	p, err := h.convSvc.AddParticipant(c.Request.Context(), principal(c), c.Param("id"), strings.TrimSpace(req.UserID))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

// ListParticipants godoc
// @ID          listParticipants
// @Summary     List participants
// @Description Returns the members of a conversation. Non-members receive an empty list.
// @Tags        Conversations
// @Produce     json
//
// @Param       id  path  string  true  "Conversation ID"
//
// @Success     200  {array}   domain.Participant
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    BearerAuth
// @Router      /conversations/{id}/participants [get]
func (h *Handlers) ListParticipants(c *gin.Context) {
	items, err := h.convSvc.Participants(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.Participant{}
	}
	ok(c, http.StatusOK, items)
}
