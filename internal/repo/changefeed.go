// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file wires the change feed: GORM callbacks that
// publish a full before/after row image to the notifier hub after every
// committed create, update, and delete. Events never fire for rolled-back
// work: statements inside a transaction are staged and flushed only once the
// transaction commits.
package repo

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/grovechat/grove/internal/notifier"
)

// Context keys used to hand the before image from the before-update callback
// to the after-update callback of the same statement.
const (
	beforeImageKey = "grove:before_image"
	feedOps        = "grove:changefeed"
)

// txEventsKey carries the per-transaction event buffer through the statement
// context.
type txEventsKey struct{}

// txEvents collects the change events of one transaction until it commits.
type txEvents struct {
	mu     sync.Mutex
	hub    *notifier.Hub
	events []notifier.Event
}

func (b *txEvents) add(hub *notifier.Hub, ev notifier.Event) {
	b.mu.Lock()
	b.hub = hub
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

// flush publishes the buffered events in statement order.
func (b *txEvents) flush() {
	b.mu.Lock()
	hub, events := b.hub, b.events
	b.events = nil
	b.mu.Unlock()
	for _, ev := range events {
		hub.Publish(ev)
	}
}

// Transact runs fn inside one transaction on db and publishes the change
// events of fn's statements only after the transaction commits. A rollback
// discards them. fn receives the derived context and must pass it to the
// repository helpers it calls, or their events miss the buffer.
//
// Multi-statement mutations must run through Transact: the feed cannot
// observe the commit of a transaction opened any other way, so events from
// such statements are dropped rather than published early.
func Transact(ctx context.Context, db *gorm.DB, fn func(ctx context.Context, tx *gorm.DB) error) error {
	buf := &txEvents{}
	ctx = context.WithValue(ctx, txEventsKey{}, buf)
	if err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx)
	}); err != nil {
		return err
	}
	buf.flush()
	return nil
}

// emit routes one event. Statements running under Transact stage into its
// buffer; plain statements publish directly, their own per-statement
// transaction having committed by the time the feed's callbacks run; a
// statement inside a transaction the feed does not manage is dropped, since
// nothing could observe its commit.
func emit(tx *gorm.DB, hub *notifier.Hub, ev notifier.Event) {
	if buf, ok := tx.Statement.Context.Value(txEventsKey{}).(*txEvents); ok {
		buf.add(hub, ev)
		return
	}
	if inForeignTx(tx) {
		return
	}
	hub.Publish(ev)
}

// inForeignTx reports whether the statement runs inside a transaction the
// feed does not manage. GORM's default per-statement transaction marks
// itself with "gorm:started_transaction" and has already committed when the
// feed's callbacks run, so it does not count as foreign.
func inForeignTx(tx *gorm.DB) bool {
	if _, started := tx.InstanceGet("gorm:started_transaction"); started {
		return false
	}
	_, ok := tx.Statement.ConnPool.(gorm.TxCommitter)
	return ok
}

// RegisterChangeFeed installs callbacks on db that publish change events to
// hub. Events fire once per mutating statement, carrying the full row image
// before and after the write; consumers re-derive their views from those
// images rather than from deltas. The publishing callbacks are registered
// after gorm's commit callback, so a statement's own transaction is already
// committed when its event goes out.
//
// Engine-level cascades (FK ON DELETE CASCADE) bypass GORM and therefore do
// not emit events; callers that need cascade visibility delete dependents
// explicitly.
func RegisterChangeFeed(db *gorm.DB, hub *notifier.Hub) error {
	if err := db.Callback().Create().After("gorm:commit_or_rollback_transaction").Register(feedOps+":create", func(tx *gorm.DB) {
		if tx.Error != nil || tx.RowsAffected == 0 {
			return
		}
		table := statementTable(tx)
		if table == "" {
			return
		}
		emit(tx, hub, notifier.Event{
			Table: table,
			Op:    notifier.OpInsert,
			After: tx.Statement.Dest,
		})
	}); err != nil {
		return err
	}

	if err := db.Callback().Update().Before("gorm:update").Register(feedOps+":before_update", func(tx *gorm.DB) {
		table := statementTable(tx)
		if table == "" {
			return
		}
		if before, ok := snapshotRow(tx, table); ok {
			tx.InstanceSet(beforeImageKey, before)
		}
	}); err != nil {
		return err
	}

	if err := db.Callback().Update().After("gorm:commit_or_rollback_transaction").Register(feedOps+":update", func(tx *gorm.DB) {
		if tx.Error != nil || tx.RowsAffected == 0 {
			return
		}
		table := statementTable(tx)
		if table == "" {
			return
		}
		var before any
		if v, ok := tx.InstanceGet(beforeImageKey); ok {
			before = v
		}
		after, ok := snapshotRow(tx, table)
		if !ok {
			return
		}
		emit(tx, hub, notifier.Event{
			Table:  table,
			Op:     notifier.OpUpdate,
			Before: before,
			After:  after,
		})
	}); err != nil {
		return err
	}

	if err := db.Callback().Delete().Before("gorm:delete").Register(feedOps+":before_delete", func(tx *gorm.DB) {
		table := statementTable(tx)
		if table == "" {
			return
		}
		if before, ok := snapshotRow(tx, table); ok {
			tx.InstanceSet(beforeImageKey, before)
		}
	}); err != nil {
		return err
	}

	return db.Callback().Delete().After("gorm:commit_or_rollback_transaction").Register(feedOps+":delete", func(tx *gorm.DB) {
		if tx.Error != nil || tx.RowsAffected == 0 {
			return
		}
		table := statementTable(tx)
		if table == "" {
			return
		}
		var before any
		if v, ok := tx.InstanceGet(beforeImageKey); ok {
			before = v
		}
		emit(tx, hub, notifier.Event{
			Table:  table,
			Op:     notifier.OpDelete,
			Before: before,
		})
	})
}

// statementTable resolves the table name for the current statement.
func statementTable(tx *gorm.DB) string {
	if tx.Statement == nil {
		return ""
	}
	return tx.Statement.Table
}

// snapshotRow loads the current image of the row addressed by the statement's
// primary key into a generic map. Mutating helpers in this package address
// rows through a model carrying its primary key, which is what makes this
// lookup possible; statements without a resolvable key yield no image.
func snapshotRow(tx *gorm.DB, table string) (map[string]any, bool) {
	stmt := tx.Statement
	if stmt == nil || stmt.Schema == nil {
		return nil, false
	}
	pk := stmt.Schema.PrioritizedPrimaryField
	if pk == nil {
		return nil, false
	}
	id, zero := pk.ValueOf(stmt.Context, stmt.ReflectValue)
	if zero {
		return nil, false
	}

	row := map[string]any{}
	err := tx.Session(&gorm.Session{NewDB: true, SkipHooks: true}).
		Table(table).
		Where(pk.DBName+" = ?", id).
		Take(&row).Error
	if err != nil {
		return nil, false
	}
	return row, true
}
