package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grovechat/grove/internal/domain"
	"github.com/grovechat/grove/internal/services"
)

type stubConvSvc struct {
	create       func(ctx context.Context, principal, convType, name string, memberIDs []string) (*domain.Conversation, []services.MemberResult, error)
	get          func(ctx context.Context, principal, id string) (*domain.Conversation, error)
	list         func(ctx context.Context, principal string) ([]domain.Conversation, error)
	findDM       func(ctx context.Context, principal, otherID string) (*domain.Conversation, error)
	addPart      func(ctx context.Context, principal, conversationID, userID string) (*domain.Participant, error)
	participants func(ctx context.Context, principal, conversationID string) ([]domain.Participant, error)
}

func (s stubConvSvc) Create(ctx context.Context, principal, convType, name string, memberIDs []string) (*domain.Conversation, []services.MemberResult, error) {
	return s.create(ctx, principal, convType, name, memberIDs)
}

func (s stubConvSvc) Get(ctx context.Context, principal, id string) (*domain.Conversation, error) {
	return s.get(ctx, principal, id)
}

func (s stubConvSvc) List(ctx context.Context, principal string) ([]domain.Conversation, error) {
	return s.list(ctx, principal)
}

func (s stubConvSvc) FindDM(ctx context.Context, principal, otherID string) (*domain.Conversation, error) {
	return s.findDM(ctx, principal, otherID)
}

func (s stubConvSvc) AddParticipant(ctx context.Context, principal, conversationID, userID string) (*domain.Participant, error) {
	return s.addPart(ctx, principal, conversationID, userID)
}

func (s stubConvSvc) Participants(ctx context.Context, principal, conversationID string) ([]domain.Participant, error) {
	return s.participants(ctx, principal, conversationID)
}

// ---------- CreateConversation ----------

func TestCreateConversation_ReportsMemberOutcomes(t *testing.T) {
	conv := &domain.Conversation{ID: uuid.NewString(), Type: domain.ConversationGroup, CreatedBy: strPtr("alice")}
	svc := stubConvSvc{
		create: func(ctx context.Context, principal, convType, name string, memberIDs []string) (*domain.Conversation, []services.MemberResult, error) {
			if principal != "alice" || convType != "group" || name != "platform" {
				t.Fatalf("bad args: %q %q %q", principal, convType, name)
			}
			return conv, []services.MemberResult{
				{UserID: "bob"},
				{UserID: "carol", Err: errors.New("already a participant")},
			}, nil
		},
	}
	r := newRouter()
	h := New(nil, svc, nil, nil, nil)
	r.POST("/conversations", h.CreateConversation)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/conversations", bytes.NewBufferString(`{"type":" group ","name":" platform ","member_ids":["bob","carol"]}`))
	req.Header.Set("X-User-ID", "alice")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create -> %d body=%s", w.Code, w.Body.String())
	}

	var resp CreateConversationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Conversation == nil || resp.Conversation.ID != conv.ID {
		t.Fatalf("conversation missing: %#v", resp)
	}
	if len(resp.Members) != 2 || !resp.Members[0].Added || resp.Members[1].Added || resp.Members[1].Error == "" {
		t.Fatalf("member outcomes wrong: %#v", resp.Members)
	}
}

func TestCreateConversation_ErrorMappings(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"anonymous_write", services.ErrUnauthorized, http.StatusForbidden},
		{"bad_type", services.ErrInvalidConversationType, http.StatusBadRequest},
		{"dm_members", services.ErrDMMembers, http.StatusBadRequest},
		{"generic_500", gorm.ErrInvalidField, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := stubConvSvc{
				create: func(ctx context.Context, principal, convType, name string, memberIDs []string) (*domain.Conversation, []services.MemberResult, error) {
					return nil, nil, tc.err
				},
			}
			r := newRouter()
			h := New(nil, svc, nil, nil, nil)
			r.POST("/conversations", h.CreateConversation)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/conversations", bytes.NewBufferString(`{"type":"dm"}`))
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("want %d, got %d body=%s", tc.want, w.Code, w.Body.String())
			}
		})
	}

	// binding error (missing type)
	svc := stubConvSvc{}
	r := newRouter()
	h := New(nil, svc, nil, nil, nil)
	r.POST("/conversations", h.CreateConversation)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/conversations", bytes.NewBufferString(`{}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("binding -> %d", w.Code)
	}
}

// ---------- ListConversations / GetConversation ----------

func TestListConversations_EmptyForAnonymous(t *testing.T) {
	svc := stubConvSvc{
		list: func(ctx context.Context, principal string) ([]domain.Conversation, error) {
			if principal != "" {
				t.Fatalf("expected anonymous principal, got %q", principal)
			}
			return nil, nil
		},
	}
	r := newRouter()
	h := New(nil, svc, nil, nil, nil)
	r.GET("/conversations", h.ListConversations)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list -> %d", w.Code)
	}
	if w.Body.String() != "[]" {
		t.Fatalf("expected empty array, got %s", w.Body.String())
	}
}

func TestGetConversation_NotFoundHidesExistence(t *testing.T) {
	svc := stubConvSvc{
		get: func(ctx context.Context, principal, id string) (*domain.Conversation, error) {
			return nil, services.ErrConversationNotFound
		},
	}
	r := newRouter()
	h := New(nil, svc, nil, nil, nil)
	r.GET("/conversations/:id", h.GetConversation)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/conversations/"+uuid.NewString(), nil)
	req.Header.Set("X-User-ID", "mallory")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("non-member must see 404, got %d", w.Code)
	}
	var out ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Code != ErrCodeNotFound {
		t.Fatalf("expected %q, got %q", ErrCodeNotFound, out.Code)
	}
}

// ---------- FindDM ----------

func TestFindDM_PassesPrincipalAndOther(t *testing.T) {
	conv := &domain.Conversation{ID: uuid.NewString(), Type: domain.ConversationDM}
	svc := stubConvSvc{
		findDM: func(ctx context.Context, principal, otherID string) (*domain.Conversation, error) {
			if principal != "alice" || otherID != "bob" {
				t.Fatalf("bad args: %q %q", principal, otherID)
			}
			return conv, nil
		},
	}
	r := newRouter()
	h := New(nil, svc, nil, nil, nil)
	r.GET("/conversations/dm/:user_id", h.FindDM)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/conversations/dm/bob", nil)
	req.Header.Set("X-User-ID", "alice")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("find dm -> %d", w.Code)
	}

	// no DM -> 404
	svc404 := stubConvSvc{
		findDM: func(ctx context.Context, principal, otherID string) (*domain.Conversation, error) {
			return nil, services.ErrConversationNotFound
		},
	}
	r2 := newRouter()
	h2 := New(nil, svc404, nil, nil, nil)
	r2.GET("/conversations/dm/:user_id", h2.FindDM)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/conversations/dm/bob", nil)
	r2.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("no dm -> %d", w.Code)
	}
}

// ---------- Participants ----------

func TestAddParticipant_StatusAndConflict(t *testing.T) {
	part := &domain.Participant{ID: uuid.NewString(), ConversationID: "c1", UserID: "bob"}
	svc := stubConvSvc{
		addPart: func(ctx context.Context, principal, conversationID, userID string) (*domain.Participant, error) {
			if userID != "bob" {
				t.Fatalf("user_id not trimmed: %q", userID)
			}
			return part, nil
		},
	}
	r := newRouter()
	h := New(nil, svc, nil, nil, nil)
	r.POST("/conversations/:id/participants", h.AddParticipant)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/conversations/c1/participants", bytes.NewBufferString(`{"user_id":" bob "}`))
	req.Header.Set("X-User-ID", "alice")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("add -> %d body=%s", w.Code, w.Body.String())
	}

	// duplicate membership -> 409
	svc409 := stubConvSvc{
		addPart: func(ctx context.Context, principal, conversationID, userID string) (*domain.Participant, error) {
			return nil, services.ErrAlreadyParticipant
		},
	}
	r2 := newRouter()
	h2 := New(nil, svc409, nil, nil, nil)
	r2.POST("/conversations/:id/participants", h2.AddParticipant)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/conversations/c1/participants", bytes.NewBufferString(`{"user_id":"bob"}`))
	r2.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("conflict -> %d", w.Code)
	}

	// binding error
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/conversations/c1/participants", bytes.NewBufferString(`{}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("binding -> %d", w.Code)
	}
}

func TestListParticipants_NilBecomesEmptyArray(t *testing.T) {
	svc := stubConvSvc{
		participants: func(ctx context.Context, principal, conversationID string) ([]domain.Participant, error) {
			return nil, nil
		},
	}
	r := newRouter()
	h := New(nil, svc, nil, nil, nil)
	r.GET("/conversations/:id/participants", h.ListParticipants)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/conversations/c1/participants", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("participants -> %d body=%s", w.Code, w.Body.String())
	}
}
