// Package storage implements the database semantic model of spec.md
// §4.1: tables, row identifiers, multi-version visibility under the
// active transaction set, unique/foreign-key constraint enforcement,
// and row-level locking with deadlock detection. It is the teacher's
// mvcc.Database/Connection/Transaction trio (mukeshjc/mvcc-isolation)
// generalized from a single-key-value store with one isolation level
// selectable per database to a multi-table, multi-column row store
// fixed at read-committed, per spec.md §1 ("isolation levels beyond
// read-committed" are out of scope).
package storage

import (
	"github.com/entremets/entremets/internal/errs"
	"github.com/entremets/entremets/internal/model"
	"github.com/entremets/entremets/internal/ordset"
)

// Engine is the mutable database state: tables and their live
// transactions. Per spec.md §4.2, the executor built on top of Engine
// is stateless across calls; Engine itself is the piece of a WorldState
// that gets cloned before every hypothetical micro-step the explorer
// tries, so in-place mutation here is safe — callers clone first.
type Engine struct {
	Tables       *ordset.Map[string, *model.Table]
	Transactions *ordset.Map[model.TxID, *model.Transaction]
	nextTxID     model.TxID
}

func NewEngine() *Engine {
	return &Engine{
		Tables:       ordset.NewMap[string, *model.Table](),
		Transactions: ordset.NewMap[model.TxID, *model.Transaction](),
	}
}

// Clone deep-copies the engine, the unit of work the explorer forks
// before trying a micro-step (spec.md §4.2/§4.4).
func (e *Engine) Clone() *Engine {
	out := &Engine{
		Tables:       ordset.NewMap[string, *model.Table](),
		Transactions: ordset.NewMap[model.TxID, *model.Transaction](),
		nextTxID:     e.nextTxID,
	}
	e.Tables.ForEach(func(name string, t *model.Table) {
		out.Tables.Set(name, t.Clone())
	})
	e.Transactions.ForEach(func(id model.TxID, tx *model.Transaction) {
		out.Transactions.Set(id, tx.Clone())
	})
	return out
}

func (e *Engine) table(name string) *model.Table {
	t, ok := e.Tables.Get(name)
	if !ok {
		t = model.NewTable(name)
		e.Tables.Set(name, t)
	}
	return t
}

// Table exposes a table read-only for callers (the row, lock and
// lock-holder operations in this package); callers must not mutate the
// returned table.
func (e *Engine) Table(name string) (*model.Table, bool) {
	return e.Tables.Get(name)
}

// Begin registers a Running transaction, per spec.md §4.1 `begin`.
func (e *Engine) Begin(isolation model.Isolation) model.TxID {
	e.nextTxID++
	id := e.nextTxID
	tx := model.NewTransaction(id, isolation)
	e.Transactions.Set(id, tx)
	return id
}

func (e *Engine) Tx(id model.TxID) (*model.Transaction, bool) {
	return e.Transactions.Get(id)
}

// Commit validates deferred foreign-key constraints and, on success,
// promotes every pending value this transaction owns to committed and
// releases its locks, per spec.md §4.1 `commit`. On failure it behaves
// like Abort and returns an error wrapping errs.ErrConstraintViolation.
func (e *Engine) Commit(id model.TxID) error {
	tx, ok := e.Tx(id)
	if !ok {
		return errs.Wrapf(errs.ErrEvaluation, "commit: unknown transaction %d", id)
	}

	if err := e.checkForeignKeysAtCommit(id); err != nil {
		e.Abort(id)
		return err
	}

	e.Tables.ForEach(func(_ string, t *model.Table) {
		t.Cells.ForEach(func(rid model.RowID, c *model.Cell) {
			if c.Pending != nil && c.PendingBy == id {
				c.Committed = c.Pending
				c.HasCommitted = true
				c.CommittedBy = id
				c.Pending = nil
			}
			if c.Locked && c.LockedBy == id {
				c.Locked = false
			}
		})
	})

	tx.State = model.Committed
	tx.WriteLocks = map[model.RowKey]struct{}{}
	tx.ReadLocks = map[model.RowKey]struct{}{}
	return nil
}

// Abort discards every pending value this transaction owns and
// releases its locks, per spec.md §4.1 `abort`.
func (e *Engine) Abort(id model.TxID) {
	tx, ok := e.Tx(id)
	if !ok {
		return
	}

	e.Tables.ForEach(func(_ string, t *model.Table) {
		t.Cells.ForEach(func(rid model.RowID, c *model.Cell) {
			if c.Pending != nil && c.PendingBy == id {
				c.Pending = nil
			}
			if c.Locked && c.LockedBy == id {
				c.Locked = false
			}
		})
	})

	tx.State = model.Aborted
	tx.WriteLocks = map[model.RowKey]struct{}{}
	tx.ReadLocks = map[model.RowKey]struct{}{}
}
