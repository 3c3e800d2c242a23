package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/grovechat/grove/internal/domain"
	"github.com/grovechat/grove/internal/notifier"
)

// recvEvent pulls one event off a subscription or fails the test.
func recvEvent(t *testing.T, sub *notifier.Subscription) notifier.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change event")
	}
	return notifier.Event{}
}

func TestChangeFeed_InsertPublishesRowImage(t *testing.T) {
	db := newRepoDB(t, allModels()...)
	hub := notifier.NewHub(zerolog.Nop())
	if err := RegisterChangeFeed(db, hub); err != nil {
		t.Fatalf("RegisterChangeFeed: %v", err)
	}

	sub := hub.Subscribe(notifier.TableProfiles, nil)
	defer sub.Close()

	p := &domain.Profile{ID: "u1", Username: "alice"}
	if err := CreateProfile(context.Background(), db, p); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}

	ev := recvEvent(t, sub)
	if ev.Op != notifier.OpInsert || ev.Table != notifier.TableProfiles {
		t.Fatalf("unexpected event: %+v", ev)
	}
	after, ok := ev.After.(*domain.Profile)
	if !ok || after.ID != "u1" {
		t.Fatalf("expected full after image, got %#v", ev.After)
	}
	if ev.Before != nil {
		t.Fatalf("insert must carry no before image, got %#v", ev.Before)
	}
}

func TestChangeFeed_UpdateCarriesBeforeAndAfter(t *testing.T) {
	db := newRepoDB(t, allModels()...)
	hub := notifier.NewHub(zerolog.Nop())
	if err := RegisterChangeFeed(db, hub); err != nil {
		t.Fatalf("RegisterChangeFeed: %v", err)
	}

	if err := CreateProfile(context.Background(), db, &domain.Profile{ID: "u1", Username: "alice"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sub := hub.Subscribe(notifier.TableProfiles, nil)
	defer sub.Close()

	if err := UpdateProfile(context.Background(), db, "u1", map[string]any{"status": domain.StatusAway}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	ev := recvEvent(t, sub)
	if ev.Op != notifier.OpUpdate {
		t.Fatalf("unexpected op: %+v", ev)
	}
	before, ok := ev.Before.(map[string]any)
	if !ok {
		t.Fatalf("expected before image map, got %#v", ev.Before)
	}
	after, ok := ev.After.(map[string]any)
	if !ok {
		t.Fatalf("expected after image map, got %#v", ev.After)
	}
	if before["status"] != domain.StatusOnline || after["status"] != domain.StatusAway {
		t.Fatalf("row images wrong: before=%v after=%v", before["status"], after["status"])
	}
}

func TestChangeFeed_SoftDeleteIsAnUpdateEvent(t *testing.T) {
	db := newRepoDB(t, allModels()...)
	hub := notifier.NewHub(zerolog.Nop())
	if err := RegisterChangeFeed(db, hub); err != nil {
		t.Fatalf("RegisterChangeFeed: %v", err)
	}

	c, _ := CreateConversation(context.Background(), db, domain.ConversationDM, nil, "u1")
	m, err := CreateMessage(context.Background(), db, c.ID, "u1", "hi", domain.MessageText)
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}

	sub := hub.Subscribe(notifier.TableMessages, nil)
	defer sub.Close()

	if err := SoftDeleteMessage(context.Background(), db, m.ID); err != nil {
		t.Fatalf("SoftDeleteMessage: %v", err)
	}

	ev := recvEvent(t, sub)
	if ev.Op != notifier.OpUpdate || ev.Table != notifier.TableMessages {
		t.Fatalf("soft delete should publish an update event, got %+v", ev)
	}
}

func TestChangeFeed_DeletePublishesBeforeImage(t *testing.T) {
	db := newRepoDB(t, allModels()...)
	hub := notifier.NewHub(zerolog.Nop())
	if err := RegisterChangeFeed(db, hub); err != nil {
		t.Fatalf("RegisterChangeFeed: %v", err)
	}

	if err := CreateProfile(context.Background(), db, &domain.Profile{ID: "u1", Username: "alice"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sub := hub.Subscribe(notifier.TableProfiles, nil)
	defer sub.Close()

	if err := DeleteProfile(context.Background(), db, "u1"); err != nil {
		t.Fatalf("DeleteProfile: %v", err)
	}

	ev := recvEvent(t, sub)
	if ev.Op != notifier.OpDelete {
		t.Fatalf("unexpected op: %+v", ev)
	}
	before, ok := ev.Before.(map[string]any)
	if !ok || before["id"] != "u1" {
		t.Fatalf("expected before image of deleted row, got %#v", ev.Before)
	}
	if ev.After != nil {
		t.Fatalf("delete must carry no after image, got %#v", ev.After)
	}
}

func TestChangeFeed_RolledBackTransactionPublishesNothing(t *testing.T) {
	db := newRepoDB(t, allModels()...)
	hub := notifier.NewHub(zerolog.Nop())
	if err := RegisterChangeFeed(db, hub); err != nil {
		t.Fatalf("RegisterChangeFeed: %v", err)
	}

	sub := hub.Subscribe(notifier.TableProfiles, nil)
	defer sub.Close()

	boom := errors.New("boom")
	err := Transact(context.Background(), db, func(ctx context.Context, tx *gorm.DB) error {
		if err := CreateProfile(ctx, tx, &domain.Profile{ID: "ghost", Username: "ghost"}); err != nil {
			t.Fatalf("CreateProfile in tx: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transact: want boom, got %v", err)
	}

	// The row must not survive the rollback.
	if _, err := GetProfile(context.Background(), db, "ghost"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("rolled-back profile still readable, err = %v", err)
	}

	// And no event may reach subscribers for work that never committed.
	select {
	case ev := <-sub.C:
		t.Fatalf("received event for rolled-back write: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestChangeFeed_TransactEventsArriveAfterCommitInOrder(t *testing.T) {
	db := newRepoDB(t, allModels()...)
	hub := notifier.NewHub(zerolog.Nop())
	if err := RegisterChangeFeed(db, hub); err != nil {
		t.Fatalf("RegisterChangeFeed: %v", err)
	}

	sub := hub.Subscribe(notifier.TableProfiles, nil)
	defer sub.Close()

	err := Transact(context.Background(), db, func(ctx context.Context, tx *gorm.DB) error {
		if err := CreateProfile(ctx, tx, &domain.Profile{ID: "u1", Username: "alice"}); err != nil {
			return err
		}
		if err := CreateProfile(ctx, tx, &domain.Profile{ID: "u2", Username: "bob"}); err != nil {
			return err
		}
		// Nothing is visible to subscribers while the transaction is open.
		select {
		case ev := <-sub.C:
			t.Fatalf("event delivered before commit: %+v", ev)
		case <-time.After(100 * time.Millisecond):
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}

	// After commit both events fan out, in statement order.
	for i, wantID := range []string{"u1", "u2"} {
		ev := recvEvent(t, sub)
		if ev.Op != notifier.OpInsert {
			t.Fatalf("event %d: unexpected op %+v", i, ev)
		}
		after, ok := ev.After.(*domain.Profile)
		if !ok || after.ID != wantID {
			t.Fatalf("event %d: want after image for %q, got %#v", i, wantID, ev.After)
		}
	}
}
