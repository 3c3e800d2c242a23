// Change-feed streaming handler.
//
// This file exposes the live subscription endpoint:
//   - GET /subscribe   (Server-Sent Events)
//
// Clients receive one "change" event per committed row mutation they are
// allowed to see. Visibility is re-checked per event against the caller's
// principal at delivery time, so a subscriber never observes rows the read
// policy would hide from a direct query. Row images may arrive either as
// typed structs (inserts) or as column maps (update/delete snapshots); the
// visibility check handles both shapes.
package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/grovechat/grove/internal/domain"
	"github.com/grovechat/grove/internal/http/middleware"
	"github.com/grovechat/grove/internal/notifier"
)

// heartbeatInterval is how often an SSE comment is sent to keep intermediate
// proxies from timing out an idle stream.
const heartbeatInterval = 25 * time.Second

// allTables lists every table exposed on the change feed.
var allTables = []string{
	notifier.TableProfiles,
	notifier.TableConversations,
	notifier.TableParticipants,
	notifier.TableMessages,
}

// Subscribe godoc
// @ID          subscribe
// @Summary     Subscribe to the change feed
// @Description Streams committed row changes as Server-Sent Events. Each event carries the table, operation, and full before/after row images. Events the caller is not allowed to read are silently withheld.
// @Tags        Stream
// @Produce     text/event-stream
//
// @Param       tables  query  string  false  "Comma-separated subset of tables (profiles, conversations, participants, messages); defaults to all"
//
// @Success     200  {string}  string  "event stream"
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown table"
// @Security    BearerAuth
// @Router      /subscribe [get]
func (h *Handlers) Subscribe(c *gin.Context) {
	tables, err := requestedTables(c.Query("tables"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	uid := principal(c)

	middleware.StreamOpened()
	defer middleware.StreamClosed()

	// One hub subscription per table, fanned into a single channel so the
	// stream preserves per-table publish order.
	merged := make(chan notifier.Event, 64)
	var wg sync.WaitGroup
	subs := make([]*notifier.Subscription, 0, len(tables))
	for _, t := range tables {
		sub := h.hub.Subscribe(t, nil)
		subs = append(subs, sub)
		wg.Add(1)
		go func(s *notifier.Subscription) {
			defer wg.Done()
			for ev := range s.C {
				select {
				case merged <- ev:
				case <-ctx.Done():
					return
				}
			}
		}(sub)
	}
	defer func() {
		for _, s := range subs {
			s.Close()
		}
	}()
	go func() {
		wg.Wait()
		close(merged)
	}()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.SSEvent("ready", gin.H{"tables": tables})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case ev, open := <-merged:
			if !open {
				return false
			}
			if !h.eventVisible(ctx, uid, ev) {
				return true
			}
			c.SSEvent("change", ev)
			return true
		}
	})
}

// requestedTables parses the tables query parameter into a validated list,
// defaulting to every feed table when empty.
func requestedTables(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return allTables, nil
	}
	known := map[string]bool{}
	for _, t := range allTables {
		known[t] = true
	}
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		t := strings.TrimSpace(part)
		if t == "" || seen[t] {
			continue
		}
		if !known[t] {
			return nil, fmt.Errorf("unknown table: %s", t)
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return allTables, nil
	}
	return out, nil
}

// eventVisible applies the read policy to a change event for the given
// principal. Deny answers (and evaluation errors) withhold the event; the
// stream never surfaces policy failures to the client.
func (h *Handlers) eventVisible(ctx context.Context, uid string, ev notifier.Event) bool {
	if h.policy == nil {
		return false
	}
	row := ev.After
	if row == nil {
		row = ev.Before
	}
	if row == nil {
		return false
	}

	switch ev.Table {
	case notifier.TableProfiles:
		allowed, err := h.policy.CanReadProfile(ctx, uid, nil)
		return err == nil && allowed
	case notifier.TableConversations:
		id := rowString(row, "id", func(v any) string {
			if conv, ok := conversationOf(v); ok {
				return conv.ID
			}
			return ""
		})
		if id == "" {
			return false
		}
		allowed, err := h.policy.CanReadConversation(ctx, uid, &domain.Conversation{ID: id})
		return err == nil && allowed
	case notifier.TableParticipants:
		cid := rowConversationID(row)
		if cid == "" {
			return false
		}
		allowed, err := h.policy.CanReadParticipant(ctx, uid, &domain.Participant{ConversationID: cid})
		return err == nil && allowed
	case notifier.TableMessages:
		cid := rowConversationID(row)
		if cid == "" {
			return false
		}
		allowed, err := h.policy.CanReadMessage(ctx, uid, &domain.Message{ConversationID: cid})
		return err == nil && allowed
	}
	return false
}

// rowConversationID extracts the owning conversation id from a row image in
// either shape (typed struct or column map).
func rowConversationID(row any) string {
	switch v := row.(type) {
	case *domain.Message:
		return v.ConversationID
	case domain.Message:
		return v.ConversationID
	case *domain.Participant:
		return v.ConversationID
	case domain.Participant:
		return v.ConversationID
	case map[string]any:
		if s, ok := v["conversation_id"].(string); ok {
			return s
		}
	}
	return ""
}

// rowString reads a string column from a map image, or falls back to the
// typed extractor for struct images.
func rowString(row any, column string, fromStruct func(any) string) string {
	if m, ok := row.(map[string]any); ok {
		if s, ok := m[column].(string); ok {
			return s
		}
		return ""
	}
	return fromStruct(row)
}

// conversationOf unwraps a conversation row image in struct shape.
func conversationOf(row any) (*domain.Conversation, bool) {
	switch v := row.(type) {
	case *domain.Conversation:
		return v, true
	case domain.Conversation:
		return &v, true
	}
	return nil, false
}
